// Package world keeps the in-process item inventories of players and shop
// containers. Mutations are expected on the owner loop; reads may come from
// anywhere.
package world

import (
	"bartershops/internal/core"
	apperrors "bartershops/pkg/errors"
	"fmt"
	"sort"
	"sync"
)

const (
	// DefaultMaxStack is the largest quantity a single slot holds
	DefaultMaxStack = 64
	// DefaultPlayerSlots is the storage size of a player inventory
	DefaultPlayerSlots = 36
	// DefaultContainerSlots is the size of a single chest
	DefaultContainerSlots = 27
)

type inventory struct {
	slots int
	items map[core.ItemKind]int
}

func (inv *inventory) usedSlots(maxStack int) int {
	used := 0
	for _, n := range inv.items {
		used += (n + maxStack - 1) / maxStack
	}
	return used
}

// Inventories implements core.IContainerAccess over slot-limited inventories
type Inventories struct {
	mu          sync.RWMutex
	invs        map[core.InventoryRef]*inventory
	maxStack    int
	playerSlots int
}

// NewInventories creates an empty world. Player inventories are created on
// first use; containers must be placed with PlaceContainer.
func NewInventories(playerSlots, maxStack int) *Inventories {
	if playerSlots <= 0 {
		playerSlots = DefaultPlayerSlots
	}
	if maxStack <= 0 {
		maxStack = DefaultMaxStack
	}
	return &Inventories{
		invs:        make(map[core.InventoryRef]*inventory),
		maxStack:    maxStack,
		playerSlots: playerSlots,
	}
}

// PlaceContainer registers a container block with the given slot count
func (w *Inventories) PlaceContainer(loc core.Location, slots int) core.InventoryRef {
	if slots <= 0 {
		slots = DefaultContainerSlots
	}
	ref := core.ContainerInventory(loc)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.invs[ref]; !ok {
		w.invs[ref] = &inventory{slots: slots, items: make(map[core.ItemKind]int)}
	}
	return ref
}

// BreakContainer removes a container and everything in it
func (w *Inventories) BreakContainer(loc core.Location) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.invs, core.ContainerInventory(loc))
}

func (w *Inventories) lookup(ref core.InventoryRef, create bool) (*inventory, error) {
	inv, ok := w.invs[ref]
	if ok {
		return inv, nil
	}
	if ref.Kind == core.InventoryPlayer && create {
		inv = &inventory{slots: w.playerSlots, items: make(map[core.ItemKind]int)}
		w.invs[ref] = inv
		return inv, nil
	}
	if ref.Kind == core.InventoryPlayer {
		return &inventory{slots: w.playerSlots, items: map[core.ItemKind]int{}}, nil
	}
	return nil, fmt.Errorf("%s: %w", ref, apperrors.ErrInventoryMissing)
}

func (w *Inventories) GetStock(ref core.InventoryRef, kind core.ItemKind) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	inv, err := w.lookup(ref, false)
	if err != nil {
		return 0, err
	}
	return inv.items[kind], nil
}

func (w *Inventories) RemoveItems(ref core.InventoryRef, kind core.ItemKind, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("remove %d %s: %w", quantity, kind, apperrors.ErrInvalidQuantity)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	inv, err := w.lookup(ref, true)
	if err != nil {
		return err
	}
	have := inv.items[kind]
	if have < quantity {
		return fmt.Errorf("%s has %d %s, need %d: %w", ref, have, kind, quantity, apperrors.ErrInsufficientItems)
	}
	if have == quantity {
		delete(inv.items, kind)
	} else {
		inv.items[kind] = have - quantity
	}
	return nil
}

// AddItems adds all items or none. A full inventory yields ErrInventoryFull.
func (w *Inventories) AddItems(ref core.InventoryRef, kind core.ItemKind, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("add %d %s: %w", quantity, kind, apperrors.ErrInvalidQuantity)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	inv, err := w.lookup(ref, true)
	if err != nil {
		return err
	}
	before := inv.items[kind]
	inv.items[kind] = before + quantity
	if inv.usedSlots(w.maxStack) > inv.slots {
		if before == 0 {
			delete(inv.items, kind)
		} else {
			inv.items[kind] = before
		}
		return fmt.Errorf("%s cannot fit %d %s: %w", ref, quantity, kind, apperrors.ErrInventoryFull)
	}
	if inv.items[kind] == 0 {
		delete(inv.items, kind)
	}
	return nil
}

// Snapshot returns a copy of the inventory contents
func (w *Inventories) Snapshot(ref core.InventoryRef) map[core.ItemKind]int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[core.ItemKind]int)
	if inv, ok := w.invs[ref]; ok {
		for k, v := range inv.items {
			out[k] = v
		}
	}
	return out
}

// Refs lists every known inventory, sorted for stable output
func (w *Inventories) Refs() []core.InventoryRef {
	w.mu.RLock()
	defer w.mu.RUnlock()
	refs := make([]core.InventoryRef, 0, len(w.invs))
	for ref := range w.invs {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
	return refs
}
