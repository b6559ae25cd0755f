package economy

import (
	apperrors "bartershops/pkg/errors"
	"bartershops/pkg/logging"
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(taxes bool) *Ledger {
	return NewLedger(Config{
		Enabled:         true,
		TaxesEnabled:    taxes,
		TaxRate:         decimal.RequireFromString("0.05"),
		VolumeDiscounts: DefaultVolumeDiscounts(),
	}, logging.NewNop())
}

func TestWithdrawAndDeposit(t *testing.T) {
	ctx := context.Background()
	l := newLedger(false)
	l.SetBalance("alice", decimal.NewFromInt(100))

	ok, err := l.Affordable(ctx, "alice", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, ok)

	res, err := l.Withdraw(ctx, "alice", decimal.NewFromInt(30))
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(decimal.NewFromInt(70)))

	_, err = l.Withdraw(ctx, "alice", decimal.NewFromInt(71))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	assert.True(t, l.Balance("alice").Equal(decimal.NewFromInt(70)))

	_, err = l.Deposit(ctx, "bob", decimal.NewFromInt(30))
	require.NoError(t, err)
	assert.True(t, l.Balance("bob").Equal(decimal.NewFromInt(30)))
}

func TestDisabledEconomyIsUnavailable(t *testing.T) {
	l := NewLedger(Config{}, logging.NewNop())
	_, err := l.Affordable(context.Background(), "alice", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, apperrors.ErrEconomyUnavailable)
	_, err = l.Deposit(context.Background(), "alice", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, apperrors.ErrEconomyUnavailable)
	assert.True(t, l.CalculateTax(decimal.NewFromInt(100)).IsZero())
}

func TestCalculateTaxVolumeDiscounts(t *testing.T) {
	l := newLedger(true)
	tests := []struct {
		amount string
		want   string
	}{
		{"500", "25"},
		{"1000", "47.5"},
		{"5000", "212.5"},
		{"10000", "375"},
		{"0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got := l.CalculateTax(decimal.RequireFromString(tt.amount))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}

	assert.True(t, newLedger(false).CalculateTax(decimal.NewFromInt(500)).IsZero())
}
