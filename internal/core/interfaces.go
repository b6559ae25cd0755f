// Package core defines the core interfaces shared by the trading components
package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// IEconomyService is the currency provider. Failures come back as errors,
// never panics.
type IEconomyService interface {
	Enabled() bool
	Affordable(ctx context.Context, playerID string, amount decimal.Decimal) (bool, error)
	Withdraw(ctx context.Context, playerID string, amount decimal.Decimal) (TransactionResult, error)
	Deposit(ctx context.Context, playerID string, amount decimal.Decimal) (TransactionResult, error)
	CalculateTax(amount decimal.Decimal) decimal.Decimal
}

// IContainerAccess reads and mutates item inventories. Only the owner loop
// may call the mutating methods.
type IContainerAccess interface {
	GetStock(ref InventoryRef, kind ItemKind) (int, error)
	RemoveItems(ref InventoryRef, kind ItemKind, quantity int) error
	AddItems(ref InventoryRef, kind ItemKind, quantity int) error
	Snapshot(ref InventoryRef) map[ItemKind]int
}

// ITradeRecordStore persists completed trades
type ITradeRecordStore interface {
	SaveTradeRecord(ctx context.Context, record *TradeRecord) error
	GetTradeRecord(ctx context.Context, transactionID string) (*TradeRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*TradeRecord, error)
	ListByShop(ctx context.Context, shopID string, limit int) ([]*TradeRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

// IFallbackTracker reports whether collaborators are degraded
type IFallbackTracker interface {
	IsDegraded() bool
	RecordFailure(component string, err error)
	RecordSuccess(component string)
}

// IHealthMonitor defines the interface for system health monitoring
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// AlertLevel grades operator alerts
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// IAlerter notifies operators about conditions that need a human. Alert
// must not block the caller on delivery.
type IAlerter interface {
	Alert(ctx context.Context, level AlertLevel, title, message string, fields map[string]string)
}
