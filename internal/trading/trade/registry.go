package trade

import (
	"bartershops/internal/core"
	apperrors "bartershops/pkg/errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionParams describe a session to create
type SessionParams struct {
	BuyerID      string
	ShopID       string
	Quantity     int
	PaymentIndex int
	Offering     core.ItemStack
	Source       core.TradeSource
}

// Registry holds at most one live session per buyer. Safe for concurrent use;
// state transitions are still expected to come from the owner loop only.
type Registry struct {
	ttl    time.Duration
	logger core.ILogger

	mu      sync.RWMutex
	byID    map[string]*Session
	byBuyer map[string]string
	closed  bool
	now     func() time.Time
}

// NewRegistry creates a registry whose sessions live for ttl
func NewRegistry(ttl time.Duration, logger core.ILogger) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Registry{
		ttl:     ttl,
		logger:  logger.WithField("component", "session_registry"),
		byID:    make(map[string]*Session),
		byBuyer: make(map[string]string),
		now:     time.Now,
	}
}

// SetClock replaces the time source
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// TTL returns the session lifetime
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// GetOrCreate returns the buyer's live session if there is one, even when it
// targets another shop or quantity. Otherwise it runs validate and, if that
// passes, inserts a new INITIATED session. created reports which happened.
func (r *Registry) GetOrCreate(p SessionParams, validate func() error) (s Session, created bool, err error) {
	r.mu.Lock()
	existing, ok := r.liveForBuyerLocked(p.BuyerID)
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return Session{}, false, apperrors.ErrRegistryShutdown
	}
	if ok {
		return existing, false, nil
	}

	if validate != nil {
		if err := validate(); err != nil {
			return Session{}, false, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Session{}, false, apperrors.ErrRegistryShutdown
	}
	if existing, ok := r.liveForBuyerLocked(p.BuyerID); ok {
		return existing, false, nil
	}

	now := r.now()
	sess := &Session{
		ID:           uuid.NewString(),
		BuyerID:      p.BuyerID,
		ShopID:       p.ShopID,
		Quantity:     p.Quantity,
		PaymentIndex: p.PaymentIndex,
		Offering:     p.Offering,
		Source:       p.Source,
		State:        StateInitiated,
		CreatedAt:    now,
		ExpiresAt:    now.Add(r.ttl),
	}
	r.byID[sess.ID] = sess
	r.byBuyer[sess.BuyerID] = sess.ID
	return *sess, true, nil
}

// Get returns a session by id. An expired session is removed and reported as
// ErrSessionExpired; an unknown id as ErrSessionNotFound.
func (r *Registry) Get(sessionID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.byID[sessionID]
	if !ok {
		return Session{}, fmt.Errorf("session %s: %w", sessionID, apperrors.ErrSessionNotFound)
	}
	if lapsed(sess, r.now()) {
		r.removeLocked(sess)
		return *sess, fmt.Errorf("session %s: %w", sessionID, apperrors.ErrSessionExpired)
	}
	return *sess, nil
}

// GetForBuyer returns the buyer's live session
func (r *Registry) GetForBuyer(buyerID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveForBuyerLocked(buyerID)
}

// HasSession reports whether the buyer has a live session
func (r *Registry) HasSession(buyerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byBuyer[buyerID]
	if !ok {
		return false
	}
	sess, ok := r.byID[id]
	return ok && !lapsed(sess, r.now())
}

// Exists reports whether sessionID is still registered and unexpired
func (r *Registry) Exists(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byID[sessionID]
	return ok && !lapsed(sess, r.now())
}

// Transition moves a live session to state to if it is currently in one of from
func (r *Registry) Transition(sessionID string, to State, from ...State) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.byID[sessionID]
	if !ok {
		return Session{}, fmt.Errorf("session %s: %w", sessionID, apperrors.ErrSessionNotFound)
	}
	if lapsed(sess, r.now()) {
		r.removeLocked(sess)
		return *sess, fmt.Errorf("session %s: %w", sessionID, apperrors.ErrSessionExpired)
	}
	allowed := false
	for _, f := range from {
		if sess.State == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return *sess, fmt.Errorf("session %s %s -> %s: %w", sessionID, sess.State, to, apperrors.ErrInvalidTransition)
	}
	sess.State = to
	return *sess, nil
}

// Remove deletes a session. ok is false if it was not registered.
func (r *Registry) Remove(sessionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.byID[sessionID]
	if !ok {
		return Session{}, false
	}
	r.removeLocked(sess)
	return *sess, true
}

// RemoveForBuyer deletes the buyer's session, expired or not
func (r *Registry) RemoveForBuyer(buyerID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byBuyer[buyerID]
	if !ok {
		return Session{}, false
	}
	sess, ok := r.byID[id]
	if !ok {
		delete(r.byBuyer, buyerID)
		return Session{}, false
	}
	r.removeLocked(sess)
	return *sess, true
}

// RemoveForShop deletes every session targeting shopID
func (r *Registry) RemoveForShop(shopID string) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []Session
	for _, sess := range r.byID {
		if sess.ShopID == shopID {
			removed = append(removed, *sess)
		}
	}
	for i := range removed {
		r.removeLocked(r.byID[removed[i].ID])
	}
	return removed
}

// SweepExpired removes all expired sessions and returns them. Sessions in
// EXECUTING are left alone.
func (r *Registry) SweepExpired() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var expired []Session
	for _, sess := range r.byID {
		if lapsed(sess, now) {
			expired = append(expired, *sess)
		}
	}
	for i := range expired {
		r.removeLocked(r.byID[expired[i].ID])
	}
	if len(expired) > 0 {
		r.logger.Debug("Swept expired sessions", "count", len(expired))
	}
	return expired
}

// ActiveCount returns the number of unexpired sessions
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	n := 0
	for _, sess := range r.byID {
		if !lapsed(sess, now) {
			n++
		}
	}
	return n
}

// Shutdown drops every session and rejects further creation
func (r *Registry) Shutdown() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.byID)
	r.byID = make(map[string]*Session)
	r.byBuyer = make(map[string]string)
	r.closed = true
	r.logger.Info("Session registry shut down", "dropped", n)
	return n
}

func (r *Registry) liveForBuyerLocked(buyerID string) (Session, bool) {
	id, ok := r.byBuyer[buyerID]
	if !ok {
		return Session{}, false
	}
	sess, ok := r.byID[id]
	if !ok {
		delete(r.byBuyer, buyerID)
		return Session{}, false
	}
	if lapsed(sess, r.now()) {
		r.removeLocked(sess)
		return Session{}, false
	}
	return *sess, true
}

func (r *Registry) removeLocked(sess *Session) {
	delete(r.byID, sess.ID)
	if r.byBuyer[sess.BuyerID] == sess.ID {
		delete(r.byBuyer, sess.BuyerID)
	}
}

// lapsed reports TTL expiry. A session in EXECUTING never expires underneath
// its settlement.
func lapsed(sess *Session, now time.Time) bool {
	return sess.State != StateExecuting && sess.Expired(now)
}
