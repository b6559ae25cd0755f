package shop

import (
	"bartershops/internal/core"
	apperrors "bartershops/pkg/errors"
	"fmt"
	"sync"
	"time"
)

// DefaultDeleteTimeout is how long a shop stays in DELETE waiting for confirmation
const DefaultDeleteTimeout = 5 * time.Second

// ModeMachine drives owner mode transitions and authorizes customer trades.
// Only BOARD services trades.
type ModeMachine struct {
	dir           *Directory
	deleteTimeout time.Duration
	now           func() time.Time
	logger        core.ILogger

	mu          sync.Mutex
	deleteArmed map[string]time.Time
	// lapsed remembers recent delete-window reverts so a late confirmation
	// can be told apart from one on a shop that never entered DELETE
	lapsed map[string]time.Time
}

// NewModeMachine creates a mode machine over dir
func NewModeMachine(dir *Directory, deleteTimeout time.Duration, logger core.ILogger) *ModeMachine {
	if deleteTimeout <= 0 {
		deleteTimeout = DefaultDeleteTimeout
	}
	return &ModeMachine{
		dir:           dir,
		deleteTimeout: deleteTimeout,
		now:           time.Now,
		logger:        logger.WithField("component", "mode_machine"),
		deleteArmed:   make(map[string]time.Time),
		lapsed:        make(map[string]time.Time),
	}
}

// SetClock replaces the time source
func (m *ModeMachine) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Mode returns the effective mode of a shop after coercion and delete expiry
func (m *ModeMachine) Mode(shopID string) (Mode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.current(shopID)
	if err != nil {
		return ModeBoard, err
	}
	return r.Mode(), nil
}

// OwnerRightClick advances SETUP → TYPE → BOARD → DELETE → SETUP
func (m *ModeMachine) OwnerRightClick(playerID, shopID string) (Mode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.ownedShop(playerID, shopID)
	if err != nil {
		return ModeBoard, err
	}
	delete(m.lapsed, shopID)
	next := r.Mode().Next()
	if next == ModeDelete {
		m.deleteArmed[shopID] = m.now()
	} else {
		delete(m.deleteArmed, shopID)
	}
	if _, err := m.dir.SetMode(shopID, next); err != nil {
		return r.Mode(), err
	}
	m.logger.Debug("Shop mode advanced", "shop_id", shopID, "from", r.Mode().String(), "to", next.String())
	return next, nil
}

// OwnerLeftClick aborts configuration and returns the shop to SETUP
func (m *ModeMachine) OwnerLeftClick(playerID, shopID string) (Mode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.ownedShop(playerID, shopID)
	if err != nil {
		return ModeBoard, err
	}
	if r.Mode() == ModeSetup {
		return ModeSetup, nil
	}
	delete(m.deleteArmed, shopID)
	delete(m.lapsed, shopID)
	if _, err := m.dir.SetMode(shopID, ModeSetup); err != nil {
		return r.Mode(), err
	}
	m.logger.Debug("Shop configuration aborted", "shop_id", shopID, "from", r.Mode().String())
	return ModeSetup, nil
}

// ConfirmDelete removes the shop if it is in DELETE and the window is still open.
// A lapsed window reverts the shop and discards the intent.
func (m *ModeMachine) ConfirmDelete(playerID, shopID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.dir.Get(shopID)
	if !ok {
		return fmt.Errorf("shop %s: %w", shopID, apperrors.ErrShopNotFound)
	}
	r, err := m.ownedShop(playerID, shopID)
	if err != nil {
		return err
	}
	if r.Mode() != ModeDelete {
		_, late := m.lapsed[shopID]
		if late || raw.Mode() == ModeDelete {
			delete(m.lapsed, shopID)
			return apperrors.ErrDeleteWindowElapsed
		}
		return fmt.Errorf("shop %s is in %s, not DELETE: %w", shopID, r.Mode(), apperrors.ErrInvalidTransition)
	}
	delete(m.deleteArmed, shopID)
	delete(m.lapsed, shopID)
	m.dir.Remove(shopID)
	m.logger.Info("Shop deleted", "shop_id", shopID, "owner_id", playerID)
	return nil
}

// Shop returns the record with its effective mode, whatever that mode is
func (m *ModeMachine) Shop(shopID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current(shopID)
}

// AuthorizeTrade returns the shop if it is in BOARD. Any other mode yields
// ErrShopConfiguring and changes nothing.
func (m *ModeMachine) AuthorizeTrade(shopID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.current(shopID)
	if err != nil {
		return Record{}, err
	}
	switch r.Mode() {
	case ModeBoard:
		return r, nil
	case ModeSetup, ModeType, ModeDelete:
		return r, apperrors.ErrShopConfiguring
	default:
		return r, apperrors.ErrShopConfiguring
	}
}

// RevertExpired reverts every shop whose delete window has lapsed and returns
// how many were reverted
func (m *ModeMachine) RevertExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for shopID, at := range m.lapsed {
		if now.Sub(at) >= m.deleteTimeout {
			delete(m.lapsed, shopID)
		}
	}

	reverted := 0
	for shopID := range m.deleteArmed {
		before, ok := m.dir.Get(shopID)
		if !ok || before.Mode() != ModeDelete {
			delete(m.deleteArmed, shopID)
			continue
		}
		if r, err := m.current(shopID); err == nil && r.Mode() != ModeDelete {
			reverted++
		}
	}
	return reverted
}

func (m *ModeMachine) ownedShop(playerID, shopID string) (Record, error) {
	r, err := m.current(shopID)
	if err != nil {
		return Record{}, err
	}
	if !r.IsOwner(playerID) {
		return Record{}, apperrors.ErrNotOwner
	}
	return r, nil
}

// current loads the record, coerces unknown modes and applies delete expiry.
// Caller holds m.mu.
func (m *ModeMachine) current(shopID string) (Record, error) {
	r, ok := m.dir.Get(shopID)
	if !ok {
		return Record{}, fmt.Errorf("shop %s: %w", shopID, apperrors.ErrShopNotFound)
	}

	if !r.Mode().Valid() {
		m.logger.Error("Unknown shop mode, coercing to BOARD", "shop_id", shopID, "mode", int(r.Mode()))
		return m.dir.SetMode(shopID, ModeBoard)
	}

	if r.Mode() != ModeDelete {
		return r, nil
	}
	armedAt, armed := m.deleteArmed[shopID]
	if armed && m.now().Sub(armedAt) < m.deleteTimeout {
		return r, nil
	}

	target := ModeSetup
	if r.Configured() {
		target = ModeBoard
	}
	m.logger.Info("Delete confirmation window lapsed", "shop_id", shopID, "revert_to", target.String())
	delete(m.deleteArmed, shopID)
	m.lapsed[shopID] = m.now()
	return m.dir.SetMode(shopID, target)
}
