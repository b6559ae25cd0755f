package trade

import (
	"bartershops/internal/core"
	"bartershops/internal/economy"
	"bartershops/pkg/concurrency"
	"bartershops/pkg/logging"
	"bartershops/pkg/retry"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveTradeRecord(ctx context.Context, record *core.TradeRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockStore) GetTradeRecord(ctx context.Context, id string) (*core.TradeRecord, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*core.TradeRecord)
	return rec, args.Error(1)
}

func (m *mockStore) ListRecent(ctx context.Context, limit int) ([]*core.TradeRecord, error) {
	args := m.Called(ctx, limit)
	recs, _ := args.Get(0).([]*core.TradeRecord)
	return recs, args.Error(1)
}

func (m *mockStore) ListByShop(ctx context.Context, shopID string, limit int) ([]*core.TradeRecord, error) {
	args := m.Called(ctx, shopID, limit)
	recs, _ := args.Get(0).([]*core.TradeRecord)
	return recs, args.Error(1)
}

func (m *mockStore) Ping(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockStore) Close() error                   { return m.Called().Error(0) }

type countingFallback struct {
	failures  map[string]int
	successes map[string]int
}

func newCountingFallback() *countingFallback {
	return &countingFallback{failures: map[string]int{}, successes: map[string]int{}}
}

func (f *countingFallback) IsDegraded() bool                      { return false }
func (f *countingFallback) RecordFailure(component string, _ error) { f.failures[component]++ }
func (f *countingFallback) RecordSuccess(component string)        { f.successes[component]++ }

func fastPolicy() retry.RetryPolicy {
	return retry.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func newTestPool() *concurrency.WorkerPool {
	return concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "recorder", MaxWorkers: 1, MaxCapacity: 8}, logging.NewNop())
}

func currencyRecord() core.TradeRecord {
	return core.TradeRecord{
		TransactionID: "tx-1",
		SessionID:     "sess-1",
		ShopID:        "shop-1",
		BuyerID:       buyer,
		SellerID:      shopOwner,
		Offering:      core.ItemStack{Kind: "DIAMOND", Quantity: 2},
		PricePaid:     decimal.NewFromInt(500),
		Units:         2,
		Source:        core.SourceGUIConfirmation,
		Status:        core.StatusCompleted,
		CompletedAt:   time.Unix(1_700_000_000, 0),
	}
}

func TestRecorderCollectsTaxAndPersists(t *testing.T) {
	ledger := economy.NewLedger(economy.Config{
		Enabled:      true,
		TaxesEnabled: true,
		TaxRate:      decimal.RequireFromString("0.05"),
	}, logging.NewNop())
	ledger.SetBalance(buyer, decimal.NewFromInt(100))

	store := new(mockStore)
	store.On("SaveTradeRecord", mock.Anything, mock.MatchedBy(func(r *core.TradeRecord) bool {
		return r.TransactionID == "tx-1" && r.Tax.Equal(decimal.NewFromInt(25))
	})).Return(nil).Once()

	fb := newCountingFallback()
	pool := newTestPool()
	rec := NewRecorder(store, ledger, fb, pool, fastPolicy(), logging.NewNop())

	rec.Record(currencyRecord())
	pool.Stop()

	store.AssertExpectations(t)
	assert.True(t, ledger.Balance(buyer).Equal(decimal.NewFromInt(75)))
	assert.Equal(t, 1, fb.successes[componentStore])
}

func TestRecorderSkipsTaxForBarter(t *testing.T) {
	ledger := economy.NewLedger(economy.Config{Enabled: true, TaxesEnabled: true, TaxRate: decimal.RequireFromString("0.05")}, logging.NewNop())
	ledger.SetBalance(buyer, decimal.NewFromInt(100))

	store := new(mockStore)
	store.On("SaveTradeRecord", mock.Anything, mock.MatchedBy(func(r *core.TradeRecord) bool {
		return r.Tax.IsZero()
	})).Return(nil).Once()

	pool := newTestPool()
	rec := NewRecorder(store, ledger, nil, pool, fastPolicy(), logging.NewNop())

	barter := currencyRecord()
	barter.PaymentItem = core.ItemStack{Kind: "EMERALD", Quantity: 2}
	rec.Record(barter)
	pool.Stop()

	store.AssertExpectations(t)
	assert.True(t, ledger.Balance(buyer).Equal(decimal.NewFromInt(100)))
}

func TestRecorderRetriesTransientStoreErrors(t *testing.T) {
	store := new(mockStore)
	store.On("SaveTradeRecord", mock.Anything, mock.Anything).Return(errors.New("database is locked")).Twice()
	store.On("SaveTradeRecord", mock.Anything, mock.Anything).Return(nil).Once()

	fb := newCountingFallback()
	pool := newTestPool()
	rec := NewRecorder(store, nil, fb, pool, fastPolicy(), logging.NewNop())

	rec.Record(currencyRecord())
	pool.Stop()

	store.AssertNumberOfCalls(t, "SaveTradeRecord", 3)
	assert.Equal(t, 0, fb.failures[componentStore])
	assert.Equal(t, 1, fb.successes[componentStore])
}

func TestRecorderGivesUpWithoutFailingTrade(t *testing.T) {
	obsCore, logs := observer.New(zapcore.WarnLevel)
	store := new(mockStore)
	store.On("SaveTradeRecord", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	fb := newCountingFallback()
	pool := newTestPool()
	rec := NewRecorder(store, nil, fb, pool, fastPolicy(), logging.NewFromZap(zap.New(obsCore)))

	rec.Record(currencyRecord())
	pool.Stop()

	store.AssertNumberOfCalls(t, "SaveTradeRecord", 3)
	assert.Equal(t, 1, fb.failures[componentStore])
	require.Equal(t, 1, logs.FilterMessage("Trade record lost").Len())
	assert.Equal(t, 2, logs.FilterMessage("Retrying trade record save").Len())
}

func TestEngineHandsCompletedTradesToRecorder(t *testing.T) {
	store := new(mockStore)
	saved := make(chan *core.TradeRecord, 1)
	store.On("SaveTradeRecord", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved <- args.Get(1).(*core.TradeRecord)
	}).Return(nil)

	pool := newTestPool()
	defer pool.Stop()
	h := newHarness(t, func(o *harnessOptions) {
		o.recorder = func(h *harness) *Recorder {
			return NewRecorder(store, h.ledger, h.tracker, pool, fastPolicy(), logging.NewNop())
		}
	})
	h.currencyShop(t, "shop-1", "250", false)
	h.give(t, shopInv, "DIAMOND", 4)
	h.ledger.SetBalance(buyer, decimal.NewFromInt(1000))

	init := h.engine.Initiate(context.Background(), request("shop-1", 2))
	require.True(t, init.OK())
	res := h.engine.Execute(context.Background(), init.Session.ID)
	require.True(t, res.OK())

	select {
	case rec := <-saved:
		assert.Equal(t, res.Record.TransactionID, rec.TransactionID)
		assert.True(t, rec.PricePaid.Equal(decimal.NewFromInt(500)))
		assert.True(t, rec.Tax.Equal(decimal.NewFromInt(25)))
	case <-time.After(2 * time.Second):
		t.Fatal("trade record never persisted")
	}
}
