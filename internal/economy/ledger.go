// Package economy provides the in-process currency ledger and trade tax rules.
package economy

import (
	"bartershops/internal/core"
	apperrors "bartershops/pkg/errors"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// VolumeDiscount lowers the tax on trades of at least Threshold by multiplying it with Multiplier
type VolumeDiscount struct {
	Threshold  decimal.Decimal
	Multiplier decimal.Decimal
}

// DefaultVolumeDiscounts are the stock tax tiers
func DefaultVolumeDiscounts() []VolumeDiscount {
	return []VolumeDiscount{
		{Threshold: decimal.NewFromInt(10000), Multiplier: decimal.RequireFromString("0.75")},
		{Threshold: decimal.NewFromInt(5000), Multiplier: decimal.RequireFromString("0.85")},
		{Threshold: decimal.NewFromInt(1000), Multiplier: decimal.RequireFromString("0.95")},
	}
}

// Config configures the ledger
type Config struct {
	Enabled         bool
	TaxesEnabled    bool
	TaxRate         decimal.Decimal
	StartingBalance decimal.Decimal
	VolumeDiscounts []VolumeDiscount
}

// Ledger implements core.IEconomyService with in-memory balances
type Ledger struct {
	cfg      Config
	logger   core.ILogger
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
}

// NewLedger creates a ledger. Discount tiers are sorted from highest threshold down.
func NewLedger(cfg Config, logger core.ILogger) *Ledger {
	tiers := append([]VolumeDiscount(nil), cfg.VolumeDiscounts...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Threshold.GreaterThan(tiers[j].Threshold) })
	cfg.VolumeDiscounts = tiers
	return &Ledger{
		cfg:      cfg,
		logger:   logger.WithField("component", "economy"),
		balances: make(map[string]decimal.Decimal),
	}
}

func (l *Ledger) Enabled() bool {
	return l.cfg.Enabled
}

func (l *Ledger) balanceLocked(playerID string) decimal.Decimal {
	if b, ok := l.balances[playerID]; ok {
		return b
	}
	return l.cfg.StartingBalance
}

// Balance returns a player's balance
func (l *Ledger) Balance(playerID string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(playerID)
}

// SetBalance overwrites a player's balance
func (l *Ledger) SetBalance(playerID string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[playerID] = amount
}

func (l *Ledger) Affordable(ctx context.Context, playerID string, amount decimal.Decimal) (bool, error) {
	if !l.cfg.Enabled {
		return false, apperrors.ErrEconomyUnavailable
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return l.Balance(playerID).GreaterThanOrEqual(amount), nil
}

func (l *Ledger) Withdraw(ctx context.Context, playerID string, amount decimal.Decimal) (core.TransactionResult, error) {
	if !l.cfg.Enabled {
		return core.TransactionResult{}, apperrors.ErrEconomyUnavailable
	}
	if amount.IsNegative() {
		return core.TransactionResult{}, fmt.Errorf("withdraw %s: %w", amount, apperrors.ErrInvalidPayment)
	}
	if err := ctx.Err(); err != nil {
		return core.TransactionResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balanceLocked(playerID)
	if bal.LessThan(amount) {
		return core.TransactionResult{Balance: bal}, fmt.Errorf("balance %s below %s: %w", bal, amount, apperrors.ErrInsufficientFunds)
	}
	bal = bal.Sub(amount)
	l.balances[playerID] = bal
	return core.TransactionResult{Amount: amount, Balance: bal}, nil
}

func (l *Ledger) Deposit(ctx context.Context, playerID string, amount decimal.Decimal) (core.TransactionResult, error) {
	if !l.cfg.Enabled {
		return core.TransactionResult{}, apperrors.ErrEconomyUnavailable
	}
	if amount.IsNegative() {
		return core.TransactionResult{}, fmt.Errorf("deposit %s: %w", amount, apperrors.ErrInvalidPayment)
	}
	if err := ctx.Err(); err != nil {
		return core.TransactionResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balanceLocked(playerID).Add(amount)
	l.balances[playerID] = bal
	return core.TransactionResult{Amount: amount, Balance: bal}, nil
}

// CalculateTax applies the tax rate and the best matching volume discount,
// rounded to cents. Zero when taxes are off.
func (l *Ledger) CalculateTax(amount decimal.Decimal) decimal.Decimal {
	if !l.cfg.Enabled || !l.cfg.TaxesEnabled || !amount.IsPositive() {
		return decimal.Zero
	}
	tax := amount.Mul(l.cfg.TaxRate)
	for _, tier := range l.cfg.VolumeDiscounts {
		if amount.GreaterThanOrEqual(tier.Threshold) {
			tax = tax.Mul(tier.Multiplier)
			break
		}
	}
	return tax.Round(2)
}
