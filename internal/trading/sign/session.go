// Package sign holds per-player sign interaction state and routes shop clicks
// to the mode machine or the trade engine.
package sign

import (
	"bartershops/internal/core"
	"sync"
	"time"
)

const (
	// DefaultPurchaseCooldown debounces repeated customer clicks
	DefaultPurchaseCooldown = 300 * time.Millisecond

	firstPanel = 1
	panelCount = 3
)

type sessionKey struct {
	playerID string
	location core.Location
}

// Session is UI state for one player at one shop sign. It carries no
// economic state and is never persisted.
type Session struct {
	PlayerID     string
	Location     core.Location
	Panel        int
	CustomerInfo bool
	LastPurchase time.Time
}

// SessionManager keeps sign sessions keyed by player and sign location
type SessionManager struct {
	mu       sync.Mutex
	sessions map[sessionKey]*Session
	cooldown time.Duration
	now      func() time.Time
}

// NewSessionManager creates a manager. A non-positive cooldown uses the default.
func NewSessionManager(cooldown time.Duration) *SessionManager {
	if cooldown <= 0 {
		cooldown = DefaultPurchaseCooldown
	}
	return &SessionManager{
		sessions: make(map[sessionKey]*Session),
		cooldown: cooldown,
		now:      time.Now,
	}
}

// SetClock replaces the time source
func (m *SessionManager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *SessionManager) getOrCreateLocked(playerID string, loc core.Location) *Session {
	k := sessionKey{playerID: playerID, location: loc}
	s, ok := m.sessions[k]
	if !ok {
		s = &Session{PlayerID: playerID, Location: loc, Panel: firstPanel}
		m.sessions[k] = s
	}
	return s
}

// GetOrCreate returns a copy of the session, creating it on first access
func (m *SessionManager) GetOrCreate(playerID string, loc core.Location) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.getOrCreateLocked(playerID, loc)
}

// Get returns a copy of an existing session
func (m *SessionManager) Get(playerID string, loc core.Location) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey{playerID: playerID, location: loc}]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// TryBeginPurchase records a purchase attempt. It returns false when the
// previous attempt at this sign is inside the cooldown window.
func (m *SessionManager) TryBeginPurchase(playerID string, loc core.Location) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getOrCreateLocked(playerID, loc)
	now := m.now()
	if !s.LastPurchase.IsZero() && now.Sub(s.LastPurchase) < m.cooldown {
		return false
	}
	s.LastPurchase = now
	return true
}

// CyclePanel advances the owner preview panel 1 → 2 → 3 → 1
func (m *SessionManager) CyclePanel(playerID string, loc core.Location) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getOrCreateLocked(playerID, loc)
	s.Panel = s.Panel%panelCount + 1
	return s.Panel
}

// ToggleCustomerInfo flips the customer info view
func (m *SessionManager) ToggleCustomerInfo(playerID string, loc core.Location) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getOrCreateLocked(playerID, loc)
	s.CustomerInfo = !s.CustomerInfo
	return s.CustomerInfo
}

// CleanupPlayer drops every session of a player
func (m *SessionManager) CleanupPlayer(playerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.sessions {
		if k.playerID == playerID {
			delete(m.sessions, k)
			n++
		}
	}
	return n
}

// CleanupLocation drops every session at a sign, e.g. after the shop is deleted
func (m *SessionManager) CleanupLocation(loc core.Location) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.sessions {
		if k.location == loc {
			delete(m.sessions, k)
			n++
		}
	}
	return n
}

// Cleanup drops everything
func (m *SessionManager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[sessionKey]*Session)
}

// Len is the number of live sign sessions
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
