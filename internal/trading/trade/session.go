package trade

import (
	"bartershops/internal/core"
	"fmt"
	"time"
)

// DefaultSessionTTL bounds how long a session may wait before execution
const DefaultSessionTTL = 5 * time.Minute

// State is the lifecycle state of a trade session. EXPIRED is never stored:
// an expired session is simply absent from the registry.
type State int

const (
	StateInitiated State = iota
	StateAwaitingConfirm
	StateExecuting
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateInitiated:
		return "INITIATED"
	case StateAwaitingConfirm:
		return "AWAITING_BUYER_CONFIRM"
	case StateExecuting:
		return "EXECUTING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Session is a snapshot of an in-flight trade. The registry owns the live copy.
type Session struct {
	ID           string
	BuyerID      string
	ShopID       string
	Quantity     int
	PaymentIndex int
	// Offering is the unit fixed at initiate. Execute only uses it for
	// non-stackable shops.
	Offering  core.ItemStack
	Source    core.TradeSource
	State     State
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the TTL has lapsed at now
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
