package apperrors

import (
	"errors"
	"fmt"
)

// Standardized trade errors
var (
	ErrSelfTrade            = errors.New("cannot trade with own shop")
	ErrShopConfiguring      = errors.New("shop is being configured")
	ErrServiceDegraded      = errors.New("trading temporarily unavailable")
	ErrOutOfStock           = errors.New("shop is out of stock")
	ErrInsufficientPayment  = errors.New("insufficient payment items")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidQuantity      = errors.New("invalid trade quantity")
	ErrInvalidPayment       = errors.New("invalid payment option")
	ErrShopNotFound         = errors.New("shop not found")
	ErrSessionNotFound      = errors.New("trade session not found")
	ErrSessionExpired       = errors.New("trade session expired")
	ErrSessionCancelled     = errors.New("trade session cancelled")
	ErrInvalidTransition    = errors.New("invalid session state transition")
	ErrInventoryFull        = errors.New("inventory full")
	ErrInsufficientItems    = errors.New("not enough items in inventory")
	ErrInventoryMissing     = errors.New("inventory not found")
	ErrEconomyUnavailable   = errors.New("economy unavailable")
	ErrNotOwner             = errors.New("player does not own shop")
	ErrDeleteWindowElapsed  = errors.New("delete confirmation window elapsed")
	ErrRegistryShutdown     = errors.New("session registry shut down")
	ErrOwnerLoopStopped     = errors.New("owner loop stopped")
	ErrRecordNotFound       = errors.New("trade record not found")
	ErrChecksumMismatch     = errors.New("trade record checksum mismatch")
	ErrInvalidShopParameter = errors.New("invalid shop parameter")
)

// ValidationError is a business-rule rejection. Nothing was mutated.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ExecutionError is a settlement step failure that was fully compensated.
type ExecutionError struct {
	Step string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("settlement step %s failed: %v", e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ReconciliationError is a compensation failure. State may be inconsistent
// and needs manual reconciliation.
type ReconciliationError struct {
	SessionID string
	Step      string
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation required for session %s: compensation of %s failed: %v", e.SessionID, e.Step, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// PersistenceError is a failed write of a trade record. Never fatal.
type PersistenceError struct {
	TransactionID string
	Err           error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist trade record %s: %v", e.TransactionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsReconciliation reports whether err is a ReconciliationError.
func IsReconciliation(err error) bool {
	var r *ReconciliationError
	return errors.As(err, &r)
}
