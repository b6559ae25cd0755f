package world

import (
	"bartershops/internal/core"
	apperrors "bartershops/pkg/errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddItemsRespectsSlotCapacity(t *testing.T) {
	w := NewInventories(2, 64)
	alice := core.PlayerInventory("alice")

	require.NoError(t, w.AddItems(alice, "DIRT", 100))

	// 100 dirt uses both slots; another kind does not fit and nothing changes
	err := w.AddItems(alice, "EMERALD", 1)
	assert.ErrorIs(t, err, apperrors.ErrInventoryFull)
	assert.Equal(t, map[core.ItemKind]int{"DIRT": 100}, w.Snapshot(alice))

	// topping up the partial stack still fits
	require.NoError(t, w.AddItems(alice, "DIRT", 28))
	err = w.AddItems(alice, "DIRT", 1)
	assert.ErrorIs(t, err, apperrors.ErrInventoryFull)

	stock, err := w.GetStock(alice, "DIRT")
	require.NoError(t, err)
	assert.Equal(t, 128, stock)
}

func TestRemoveItems(t *testing.T) {
	w := NewInventories(0, 0)
	bob := core.PlayerInventory("bob")
	require.NoError(t, w.AddItems(bob, "DIAMOND", 5))

	err := w.RemoveItems(bob, "DIAMOND", 6)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientItems)

	require.NoError(t, w.RemoveItems(bob, "DIAMOND", 5))
	assert.Empty(t, w.Snapshot(bob))
}

func TestContainersMustBePlaced(t *testing.T) {
	w := NewInventories(0, 0)
	loc := core.Location{World: "world", X: 3, Y: 60, Z: -2}
	ref := core.ContainerInventory(loc)

	_, err := w.GetStock(ref, "EMERALD")
	assert.ErrorIs(t, err, apperrors.ErrInventoryMissing)
	assert.ErrorIs(t, w.AddItems(ref, "EMERALD", 1), apperrors.ErrInventoryMissing)

	placed := w.PlaceContainer(loc, 1)
	assert.Equal(t, ref, placed)
	require.NoError(t, w.AddItems(ref, "EMERALD", 64))
	assert.ErrorIs(t, w.AddItems(ref, "EMERALD", 1), apperrors.ErrInventoryFull)

	w.BreakContainer(loc)
	_, err = w.GetStock(ref, "EMERALD")
	assert.ErrorIs(t, err, apperrors.ErrInventoryMissing)
}

func TestGetStockOfUnknownPlayerIsZero(t *testing.T) {
	w := NewInventories(0, 0)
	n, err := w.GetStock(core.PlayerInventory("ghost"), "DIAMOND")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.Refs())
}
