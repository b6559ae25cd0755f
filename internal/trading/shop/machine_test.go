package shop

import (
	"bartershops/internal/core"
	apperrors "bartershops/pkg/errors"
	"bartershops/pkg/logging"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const owner = "owner-1"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newShop(t *testing.T, mode Mode, configured bool) Record {
	t.Helper()
	p := RecordParams{
		ID:        "shop-1",
		OwnerID:   owner,
		Location:  core.Location{World: "world", X: 1, Y: 64, Z: 1},
		Mode:      mode,
		Container: core.Location{World: "world", X: 1, Y: 63, Z: 1},
	}
	if configured {
		p.Offering = core.ItemStack{Kind: "EMERALD", Quantity: 1}
		p.Payments = []Payment{ItemPayment("DIAMOND", 5)}
		p.Stackable = true
	}
	r, err := NewRecord(p)
	require.NoError(t, err)
	return r
}

func newMachine(t *testing.T, r Record) (*ModeMachine, *Directory, *fakeClock) {
	t.Helper()
	dir := NewDirectory()
	dir.Put(r)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := NewModeMachine(dir, DefaultDeleteTimeout, logging.NewNop())
	m.SetClock(clock.Now)
	return m, dir, clock
}

func TestOwnerRightClickCyclesExactly(t *testing.T) {
	m, _, _ := newMachine(t, newShop(t, ModeSetup, true))

	want := []Mode{ModeType, ModeBoard, ModeDelete, ModeSetup, ModeType}
	for _, expected := range want {
		got, err := m.OwnerRightClick(owner, "shop-1")
		require.NoError(t, err)
		assert.Equal(t, expected, got)
	}
}

func TestOwnerLeftClickAbortsToSetup(t *testing.T) {
	for _, start := range []Mode{ModeType, ModeBoard, ModeDelete} {
		t.Run(start.String(), func(t *testing.T) {
			m, _, _ := newMachine(t, newShop(t, start, true))
			got, err := m.OwnerLeftClick(owner, "shop-1")
			require.NoError(t, err)
			assert.Equal(t, ModeSetup, got)
		})
	}
}

func TestNonOwnerCannotChangeMode(t *testing.T) {
	m, _, _ := newMachine(t, newShop(t, ModeBoard, true))

	_, err := m.OwnerRightClick("stranger", "shop-1")
	assert.ErrorIs(t, err, apperrors.ErrNotOwner)

	mode, err := m.Mode("shop-1")
	require.NoError(t, err)
	assert.Equal(t, ModeBoard, mode)
}

func TestConfirmDeleteWithinWindowRemovesShop(t *testing.T) {
	m, dir, clock := newMachine(t, newShop(t, ModeBoard, true))

	mode, err := m.OwnerRightClick(owner, "shop-1")
	require.NoError(t, err)
	require.Equal(t, ModeDelete, mode)

	clock.Advance(4 * time.Second)
	require.NoError(t, m.ConfirmDelete(owner, "shop-1"))

	_, ok := dir.Get("shop-1")
	assert.False(t, ok)
}

func TestDeleteWindowLapseRevertsAndDiscardsIntent(t *testing.T) {
	tests := []struct {
		name       string
		configured bool
		want       Mode
	}{
		{"configured shop returns to BOARD", true, ModeBoard},
		{"unconfigured shop returns to SETUP", false, ModeSetup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, dir, clock := newMachine(t, newShop(t, ModeBoard, tt.configured))
			_, err := m.OwnerRightClick(owner, "shop-1")
			require.NoError(t, err)

			clock.Advance(DefaultDeleteTimeout + time.Millisecond)

			err = m.ConfirmDelete(owner, "shop-1")
			assert.ErrorIs(t, err, apperrors.ErrDeleteWindowElapsed)

			r, ok := dir.Get("shop-1")
			require.True(t, ok)
			assert.Equal(t, tt.want, r.Mode())
		})
	}
}

func TestLateConfirmAfterObservedRevert(t *testing.T) {
	m, dir, clock := newMachine(t, newShop(t, ModeBoard, true))
	_, err := m.OwnerRightClick(owner, "shop-1")
	require.NoError(t, err)

	clock.Advance(DefaultDeleteTimeout)
	mode, err := m.Mode("shop-1")
	require.NoError(t, err)
	assert.Equal(t, ModeBoard, mode)

	assert.ErrorIs(t, m.ConfirmDelete(owner, "shop-1"), apperrors.ErrDeleteWindowElapsed)
	// The late intent is consumed; a second attempt is just a wrong-mode click.
	assert.ErrorIs(t, m.ConfirmDelete(owner, "shop-1"), apperrors.ErrInvalidTransition)
	_, ok := dir.Get("shop-1")
	assert.True(t, ok)
}

func TestRevertExpired(t *testing.T) {
	m, dir, clock := newMachine(t, newShop(t, ModeBoard, true))
	_, err := m.OwnerRightClick(owner, "shop-1")
	require.NoError(t, err)

	assert.Equal(t, 0, m.RevertExpired())
	clock.Advance(10 * time.Second)
	assert.Equal(t, 1, m.RevertExpired())

	r, _ := dir.Get("shop-1")
	assert.Equal(t, ModeBoard, r.Mode())
	assert.Equal(t, 0, m.RevertExpired())
}

func TestAuthorizeTradeOnlyInBoard(t *testing.T) {
	for _, mode := range []Mode{ModeSetup, ModeType, ModeBoard, ModeDelete} {
		t.Run(mode.String(), func(t *testing.T) {
			m, dir, _ := newMachine(t, newShop(t, mode, true))
			if mode == ModeDelete {
				// arm the window so the shop stays in DELETE
				dir.Put(newShop(t, ModeBoard, true))
				_, err := m.OwnerRightClick(owner, "shop-1")
				require.NoError(t, err)
			}

			_, err := m.AuthorizeTrade("shop-1")
			if mode == ModeBoard {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperrors.ErrShopConfiguring)
			}

			after, _ := m.Mode("shop-1")
			assert.Equal(t, mode, after)
		})
	}
}

func TestUnknownModeIsLoggedAndCoercedToBoard(t *testing.T) {
	zcore, logs := observer.New(zapcore.DebugLevel)
	dir := NewDirectory()
	dir.Put(newShop(t, Mode(42), true))
	m := NewModeMachine(dir, 0, logging.NewFromZap(zap.New(zcore)))

	r, err := m.AuthorizeTrade("shop-1")
	require.NoError(t, err)
	assert.Equal(t, ModeBoard, r.Mode())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestNewRecordValidation(t *testing.T) {
	base := RecordParams{OwnerID: owner, Container: core.Location{World: "w", X: 1}}

	_, err := NewRecord(RecordParams{Container: base.Container})
	assert.ErrorIs(t, err, apperrors.ErrInvalidShopParameter)

	_, err = NewRecord(RecordParams{OwnerID: owner})
	assert.ErrorIs(t, err, apperrors.ErrInvalidShopParameter)

	bad := base
	bad.Payments = []Payment{ItemPayment("DIAMOND", 0)}
	_, err = NewRecord(bad)
	assert.ErrorIs(t, err, apperrors.ErrInvalidShopParameter)

	admin, err := NewRecord(RecordParams{OwnerID: owner, Admin: true})
	require.NoError(t, err)
	assert.NotEmpty(t, admin.ID())
	assert.False(t, admin.Configured())
}

func TestConfiguredDependsOnStacking(t *testing.T) {
	chest := core.Location{World: "w", X: 1}
	pay := []Payment{ItemPayment("DIAMOND", 5)}

	loose, err := NewRecord(RecordParams{OwnerID: owner, Container: chest, Payments: pay})
	require.NoError(t, err)
	assert.False(t, loose.Stackable())
	assert.True(t, loose.Configured(), "non-stackable shops sell whatever the container holds")

	stacked, err := NewRecord(RecordParams{OwnerID: owner, Container: chest, Payments: pay, Stackable: true})
	require.NoError(t, err)
	assert.False(t, stacked.Configured())

	admin, err := NewRecord(RecordParams{OwnerID: owner, Admin: true, Payments: pay})
	require.NoError(t, err)
	assert.False(t, admin.Configured(), "admin shops always need an offering")

	noPay, err := NewRecord(RecordParams{OwnerID: owner, Container: chest})
	require.NoError(t, err)
	assert.False(t, noPay.Configured())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("board")
	require.NoError(t, err)
	assert.Equal(t, ModeBoard, m)

	_, err = ParseMode("help")
	assert.Error(t, err)
}
