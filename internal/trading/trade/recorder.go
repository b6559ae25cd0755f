package trade

import (
	"bartershops/internal/core"
	"bartershops/pkg/concurrency"
	apperrors "bartershops/pkg/errors"
	"bartershops/pkg/retry"
	"bartershops/pkg/telemetry"
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
)

const (
	componentStore   = "trade_store"
	componentEconomy = "economy"
)

// Recorder persists settled trades and collects trade tax off the owner loop.
// Nothing it does can fail a trade.
type Recorder struct {
	store    core.ITradeRecordStore
	economy  core.IEconomyService
	fallback core.IFallbackTracker
	pool     *concurrency.WorkerPool
	policy   retry.RetryPolicy
	timeout  time.Duration
	logger   core.ILogger

	persistFailures metric.Int64Counter
	taxCollected    metric.Float64Counter
}

// NewRecorder creates a recorder. economy and fallback may be nil.
func NewRecorder(
	store core.ITradeRecordStore,
	economy core.IEconomyService,
	fallback core.IFallbackTracker,
	pool *concurrency.WorkerPool,
	policy retry.RetryPolicy,
	logger core.ILogger,
) *Recorder {
	meter := telemetry.GetMeter("trade_recorder")
	persistFailures, _ := meter.Int64Counter(telemetry.MetricPersistenceFailuresTotal,
		metric.WithDescription("Trade records that could not be persisted after retries"))
	taxCollected, _ := meter.Float64Counter("bartershops_tax_collected_total",
		metric.WithDescription("Trade tax withdrawn from buyers"))

	return &Recorder{
		store:           store,
		economy:         economy,
		fallback:        fallback,
		pool:            pool,
		policy:          policy,
		timeout:         30 * time.Second,
		logger:          logger.WithField("component", "trade_recorder"),
		persistFailures: persistFailures,
		taxCollected:    taxCollected,
	}
}

// Record schedules tax collection and persistence for a settled trade.
// It never blocks the caller on I/O.
func (r *Recorder) Record(rec core.TradeRecord) {
	err := r.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		rec.Tax = r.collectTax(ctx, rec)
		r.persist(ctx, &rec)
	})
	if err != nil {
		r.logger.Warn("Could not schedule trade record", "transaction_id", rec.TransactionID, "error", err)
	}
}

func (r *Recorder) collectTax(ctx context.Context, rec core.TradeRecord) decimal.Decimal {
	if r.economy == nil || !rec.IsCurrency() || !r.economy.Enabled() {
		return decimal.Zero
	}
	tax := r.economy.CalculateTax(rec.PricePaid)
	if !tax.IsPositive() {
		return decimal.Zero
	}
	if _, err := r.economy.Withdraw(ctx, rec.BuyerID, tax); err != nil {
		r.logger.Warn("Trade tax not collected", "transaction_id", rec.TransactionID, "buyer_id", rec.BuyerID, "tax", tax.String(), "error", err)
		return decimal.Zero
	}
	f, _ := tax.Float64()
	r.taxCollected.Add(ctx, f)
	return tax
}

func (r *Recorder) persist(ctx context.Context, rec *core.TradeRecord) {
	if r.store == nil {
		return
	}
	policy := r.policy
	policy.OnRetry = func(attempt int, err error) {
		r.logger.Warn("Retrying trade record save", "transaction_id", rec.TransactionID, "attempt", attempt, "error", err)
	}

	err := retry.Do(ctx, policy, retry.Always, func() error {
		return r.store.SaveTradeRecord(ctx, rec)
	})
	if err != nil {
		perr := &apperrors.PersistenceError{TransactionID: rec.TransactionID, Err: err}
		r.logger.Warn("Trade record lost", "transaction_id", rec.TransactionID, "error", perr)
		r.persistFailures.Add(ctx, 1)
		if r.fallback != nil {
			r.fallback.RecordFailure(componentStore, err)
		}
		return
	}
	if r.fallback != nil {
		r.fallback.RecordSuccess(componentStore)
	}
}
