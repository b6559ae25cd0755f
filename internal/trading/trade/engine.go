package trade

import (
	"bartershops/internal/core"
	"bartershops/internal/trading/shop"
	"bartershops/pkg/concurrency"
	apperrors "bartershops/pkg/errors"
	"bartershops/pkg/telemetry"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ShopSource resolves a shop with its effective mode
type ShopSource interface {
	Shop(shopID string) (shop.Record, error)
}

// DefaultMaxQuantity is a full 36-slot inventory of 64-item stacks
const DefaultMaxQuantity = 64 * 36

// Config tunes the engine
type Config struct {
	SweepInterval             time.Duration
	BlockInitiateWhenDegraded bool
	// MaxQuantity caps the trade units of one request
	MaxQuantity int
}

// InitiateRequest asks to open a trade
type InitiateRequest struct {
	BuyerID      string
	ShopID       string
	Quantity     int
	PaymentIndex int
	Source       core.TradeSource
}

// InitiateResult carries the session, or the reason none was opened
type InitiateResult struct {
	Session Session
	Created bool
	Reason  Reason
	Err     error
}

// OK reports whether a session is available
func (r InitiateResult) OK() bool { return r.Reason == ReasonNone }

// ExecutionResult is the outcome of Execute
type ExecutionResult struct {
	SessionID string
	State     State
	Reason    Reason
	Err       error
	Record    *core.TradeRecord
}

// OK reports whether the trade completed
func (r ExecutionResult) OK() bool { return r.State == StateCompleted }

// Engine runs the trade session lifecycle. Every method except the *Async
// variants, ActiveSessionCount, HasSession and Session must be called on the
// owner loop.
type Engine struct {
	shops      ShopSource
	registry   *Registry
	validator  Validator
	containers core.IContainerAccess
	economy    core.IEconomyService
	fallback   core.IFallbackTracker
	recorder   *Recorder
	alerts     core.IAlerter
	owner      *concurrency.OwnerLoop
	pool       *concurrency.WorkerPool
	cfg        Config
	logger     core.ILogger
	now        func() time.Time

	tracer                 trace.Tracer
	initiated              metric.Int64Counter
	rejected               metric.Int64Counter
	completed              metric.Int64Counter
	failed                 metric.Int64Counter
	expired                metric.Int64Counter
	rollbacks              metric.Int64Counter
	reconciliationFailures metric.Int64Counter
	settleLatency          metric.Float64Histogram
}

// Deps are the engine collaborators. Economy, Fallback, Recorder and Alerts may be nil.
type Deps struct {
	Shops      ShopSource
	Registry   *Registry
	Containers core.IContainerAccess
	Economy    core.IEconomyService
	Fallback   core.IFallbackTracker
	Recorder   *Recorder
	Alerts     core.IAlerter
	Owner      *concurrency.OwnerLoop
	Pool       *concurrency.WorkerPool
}

// NewEngine creates a trade engine
func NewEngine(deps Deps, cfg Config, logger core.ILogger) *Engine {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = DefaultMaxQuantity
	}
	tracer := telemetry.GetTracer("trade_engine")
	meter := telemetry.GetMeter("trade_engine")

	initiated, _ := meter.Int64Counter(telemetry.MetricTradesInitiatedTotal,
		metric.WithDescription("Trade sessions opened"))
	rejected, _ := meter.Int64Counter(telemetry.MetricTradesRejectedTotal,
		metric.WithDescription("Initiate requests rejected by validation"))
	completed, _ := meter.Int64Counter(telemetry.MetricTradesCompletedTotal,
		metric.WithDescription("Trades settled"))
	failed, _ := meter.Int64Counter(telemetry.MetricTradesFailedTotal,
		metric.WithDescription("Trades that failed at execute time"))
	expired, _ := meter.Int64Counter(telemetry.MetricSessionsExpiredTotal,
		metric.WithDescription("Sessions removed by TTL sweep"))
	rollbacks, _ := meter.Int64Counter(telemetry.MetricRollbacksTotal,
		metric.WithDescription("Settlements rolled back"))
	reconciliation, _ := meter.Int64Counter(telemetry.MetricReconciliationFailures,
		metric.WithDescription("Compensation steps that failed"))
	latency, _ := meter.Float64Histogram(telemetry.MetricSettlementLatency,
		metric.WithDescription("Settlement duration"), metric.WithUnit("ms"))

	return &Engine{
		shops:                  deps.Shops,
		registry:               deps.Registry,
		containers:             deps.Containers,
		economy:                deps.Economy,
		fallback:               deps.Fallback,
		recorder:               deps.Recorder,
		alerts:                 deps.Alerts,
		owner:                  deps.Owner,
		pool:                   deps.Pool,
		cfg:                    cfg,
		logger:                 logger.WithField("component", "trade_engine"),
		now:                    time.Now,
		tracer:                 tracer,
		initiated:              initiated,
		rejected:               rejected,
		completed:              completed,
		failed:                 failed,
		expired:                expired,
		rollbacks:              rollbacks,
		reconciliationFailures: reconciliation,
		settleLatency:          latency,
	}
}

// affordability is a pre-fetched economy answer
type affordability struct {
	ok  bool
	err error
}

// Initiate opens a session for the buyer, or returns the buyer's existing one
func (e *Engine) Initiate(ctx context.Context, req InitiateRequest) InitiateResult {
	return e.initiate(ctx, req, nil)
}

// InitiateAsync checks affordability on the worker pool, then finishes the
// initiate on the owner loop and hands the result to done there. Requests
// that need no balance lookup go straight to the owner loop. May be called
// from any goroutine.
func (e *Engine) InitiateAsync(ctx context.Context, req InitiateRequest, done func(InitiateResult)) error {
	price, lookup := e.pendingPrice(req.ShopID, req.PaymentIndex, req.Quantity)
	if !lookup {
		return e.owner.Post(func() { done(e.initiate(ctx, req, nil)) })
	}
	return concurrency.Async(e.pool, e.owner, func() (bool, error) {
		return e.economy.Affordable(ctx, req.BuyerID, price)
	}, func(ok bool, err error) {
		done(e.initiate(ctx, req, &affordability{ok: ok, err: err}))
	})
}

// pendingPrice returns the currency total a trade would charge, and whether
// the economy must be asked about it at all.
func (e *Engine) pendingPrice(shopID string, paymentIndex, quantity int) (decimal.Decimal, bool) {
	if e.economy == nil || !e.economy.Enabled() || quantity <= 0 || quantity > e.cfg.MaxQuantity {
		return decimal.Zero, false
	}
	s, err := e.shops.Shop(shopID)
	if err != nil {
		return decimal.Zero, false
	}
	pay, ok := s.Payment(paymentIndex)
	if !ok || !pay.IsCurrency() {
		return decimal.Zero, false
	}
	return pay.Amount.Mul(decimalUnits(quantity)), true
}

// unitOffering resolves what one trade unit delivers. A non-stackable shop
// sells one of the first kind its container holds, by name. A session pins
// the unit chosen at initiate.
func (e *Engine) unitOffering(s shop.Record, sess *Session) core.ItemStack {
	if s.Stackable() || s.Admin() {
		return s.Offering()
	}
	if sess != nil && sess.Offering.Kind != "" {
		return sess.Offering
	}
	contents := e.containers.Snapshot(s.Container())
	kinds := make([]core.ItemKind, 0, len(contents))
	for kind, n := range contents {
		if n > 0 {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		return core.ItemStack{}
	}
	slices.Sort(kinds)
	return core.ItemStack{Kind: kinds[0], Quantity: 1}
}

func (e *Engine) initiate(ctx context.Context, req InitiateRequest, pre *affordability) InitiateResult {
	if req.Source == "" {
		req.Source = core.SourceGUIConfirmation
	}
	logger := e.logger.WithFields(map[string]interface{}{"buyer_id": req.BuyerID, "shop_id": req.ShopID})

	s, err := e.shops.Shop(req.ShopID)
	if err != nil {
		return e.reject(ctx, logger, invalid(ReasonShopNotFound, "%v", err))
	}

	// Self-trade and mode are checked before the registry so that an owner
	// or a configuring shop can never surface a session.
	if r := e.validator.checkIdentity(req.BuyerID, s); !r.Valid {
		return e.reject(ctx, logger, r)
	}

	var verdict ValidationResult
	unit := e.unitOffering(s, nil)
	sess, created, err := e.registry.GetOrCreate(SessionParams{
		BuyerID:      req.BuyerID,
		ShopID:       req.ShopID,
		Quantity:     req.Quantity,
		PaymentIndex: req.PaymentIndex,
		Offering:     unit,
		Source:       req.Source,
	}, func() error {
		verdict = e.validator.Validate(e.gather(ctx, PhaseInitiate, req.BuyerID, s, unit, req.Quantity, req.PaymentIndex, pre))
		return verdict.Err()
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrRegistryShutdown) {
			return InitiateResult{Reason: ReasonShutdown, Err: err}
		}
		return e.reject(ctx, logger, verdict)
	}

	if created {
		e.initiated.Add(ctx, 1)
		telemetry.GetGlobalMetrics().SetSessionsActive(e.registry.ActiveCount())
		logger.Debug("Trade session initiated", "session_id", sess.ID, "quantity", sess.Quantity)
	} else {
		logger.Debug("Reusing existing trade session", "session_id", sess.ID, "session_shop_id", sess.ShopID)
	}
	return InitiateResult{Session: sess, Created: created}
}

func (e *Engine) reject(ctx context.Context, logger core.ILogger, r ValidationResult) InitiateResult {
	e.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", r.Reason.String())))
	logger.Debug("Trade initiate rejected", "reason", r.Reason.String(), "detail", r.Detail)
	return InitiateResult{Reason: r.Reason, Err: r.Err()}
}

// gather collects the facts the validator needs for one shop and buyer.
// unit is the resolved per-unit offering.
func (e *Engine) gather(ctx context.Context, phase Phase, buyerID string, s shop.Record, unit core.ItemStack, quantity, paymentIndex int, pre *affordability) ValidationInput {
	in := ValidationInput{
		Phase:                     phase,
		BuyerID:                   buyerID,
		Shop:                      s,
		Quantity:                  quantity,
		PaymentIndex:              paymentIndex,
		Offering:                  unit,
		MaxQuantity:               e.cfg.MaxQuantity,
		BlockInitiateWhenDegraded: e.cfg.BlockInitiateWhenDegraded,
	}
	if e.fallback != nil {
		in.Degraded = e.fallback.IsDegraded()
	}

	if !s.Admin() && unit.Kind != "" {
		stock, err := e.containers.GetStock(s.Container(), unit.Kind)
		if err != nil {
			e.logger.Warn("Shop container unreadable", "shop_id", s.ID(), "error", err)
		}
		in.ShopStock = stock
	}

	pay, ok := s.Payment(paymentIndex)
	if !ok || quantity <= 0 || quantity > e.cfg.MaxQuantity {
		return in
	}
	if !pay.IsCurrency() {
		in.BuyerItems, _ = e.containers.GetStock(core.PlayerInventory(buyerID), pay.Item.Kind)
		return in
	}

	switch {
	case e.economy == nil || !e.economy.Enabled():
		in.AffordErr = apperrors.ErrEconomyUnavailable
	case pre != nil:
		in.CanAfford, in.AffordErr = pre.ok, pre.err
	default:
		in.CanAfford, in.AffordErr = e.economy.Affordable(ctx, buyerID, pay.Amount.Mul(decimalUnits(quantity)))
	}
	if in.AffordErr != nil && e.fallback != nil && !errors.Is(in.AffordErr, context.Canceled) {
		e.fallback.RecordFailure(componentEconomy, in.AffordErr)
	}
	return in
}

// Confirm moves a session from INITIATED to AWAITING_BUYER_CONFIRM
func (e *Engine) Confirm(sessionID string) error {
	_, err := e.registry.Transition(sessionID, StateAwaitingConfirm, StateInitiated)
	return err
}

// Execute re-validates and settles a session. It never panics into the caller;
// the outcome is in the result.
func (e *Engine) Execute(ctx context.Context, sessionID string) ExecutionResult {
	return e.tracedExecute(ctx, sessionID, nil)
}

func (e *Engine) tracedExecute(ctx context.Context, sessionID string, pre *affordability) ExecutionResult {
	ctx, span := e.tracer.Start(ctx, "Execute", trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	res := e.execute(ctx, sessionID, pre)
	span.SetAttributes(attribute.String("state", res.State.String()), attribute.String("reason", res.Reason.String()))
	if res.Err != nil {
		span.SetStatus(codes.Error, res.Reason.String())
	}
	return res
}

// ExecuteAsync re-checks the buyer's balance on the worker pool for currency
// trades, then executes on the owner loop and hands the result to done there.
// May be called from any goroutine.
func (e *Engine) ExecuteAsync(ctx context.Context, sessionID string, done func(ExecutionResult)) error {
	// Execute reports missing and expired sessions itself.
	if !e.registry.Exists(sessionID) {
		return e.owner.Post(func() { done(e.Execute(ctx, sessionID)) })
	}
	sess, err := e.registry.Get(sessionID)
	if err != nil {
		return e.owner.Post(func() { done(e.Execute(ctx, sessionID)) })
	}
	price, lookup := e.pendingPrice(sess.ShopID, sess.PaymentIndex, sess.Quantity)
	if !lookup {
		return e.owner.Post(func() { done(e.Execute(ctx, sessionID)) })
	}
	return concurrency.Async(e.pool, e.owner, func() (bool, error) {
		return e.economy.Affordable(ctx, sess.BuyerID, price)
	}, func(ok bool, err error) {
		done(e.tracedExecute(ctx, sessionID, &affordability{ok: ok, err: err}))
	})
}

func (e *Engine) execute(ctx context.Context, sessionID string, pre *affordability) ExecutionResult {
	sess, err := e.registry.Get(sessionID)
	if err != nil {
		reason := ReasonSessionNotFound
		if errors.Is(err, apperrors.ErrSessionExpired) {
			reason = ReasonSessionExpired
		}
		return ExecutionResult{SessionID: sessionID, State: StateFailed, Reason: reason, Err: &apperrors.ValidationError{Err: reason.Err(), Reason: err.Error()}}
	}
	if sess.State != StateInitiated && sess.State != StateAwaitingConfirm {
		return ExecutionResult{SessionID: sessionID, State: sess.State, Reason: ReasonInvalidState, Err: apperrors.ErrInvalidTransition}
	}

	logger := e.logger.WithFields(map[string]interface{}{
		"session_id": sess.ID,
		"buyer_id":   sess.BuyerID,
		"shop_id":    sess.ShopID,
	})

	s, err := e.shops.Shop(sess.ShopID)
	if err != nil {
		return e.fail(ctx, logger, sess, ReasonShopNotFound, &apperrors.ValidationError{Reason: err.Error(), Err: apperrors.ErrShopNotFound})
	}

	unit := e.unitOffering(s, &sess)
	verdict := e.validator.Validate(e.gather(ctx, PhaseExecute, sess.BuyerID, s, unit, sess.Quantity, sess.PaymentIndex, pre))
	if !verdict.Valid {
		return e.fail(ctx, logger, sess, verdict.Reason, verdict.Err())
	}

	if _, err := e.registry.Transition(sess.ID, StateExecuting, StateInitiated, StateAwaitingConfirm); err != nil {
		reason := ReasonCancelled
		if errors.Is(err, apperrors.ErrSessionExpired) {
			reason = ReasonSessionExpired
		}
		e.registry.Remove(sess.ID)
		return ExecutionResult{SessionID: sess.ID, State: StateFailed, Reason: reason, Err: err}
	}

	pay, _ := s.Payment(sess.PaymentIndex)
	t := newTerms(sess, s, unit, pay)
	start := e.now()
	outcome := e.settle(ctx, sess.ID, e.settlementSteps(t), func() error {
		if !e.registry.Exists(sess.ID) {
			return apperrors.ErrSessionCancelled
		}
		return nil
	})
	e.settleLatency.Record(ctx, float64(e.now().Sub(start).Milliseconds()))

	if !outcome.ok() {
		reason := ReasonSettlementFailed
		if errors.Is(outcome.err, apperrors.ErrSessionCancelled) {
			reason = ReasonCancelled
		}
		execErr := &apperrors.ExecutionError{Step: outcome.failedStep, Err: outcome.err}
		var err error = execErr
		if len(outcome.unreconciled) > 0 {
			err = errors.Join(execErr, outcome.unreconciled[0])
		}
		logger.Warn("Settlement failed and was rolled back", "step", outcome.failedStep, "error", outcome.err, "unreconciled", len(outcome.unreconciled))
		return e.fail(ctx, logger, sess, reason, err)
	}

	if _, err := e.registry.Transition(sess.ID, StateCompleted, StateExecuting); err != nil {
		logger.Warn("Settled trade lost its session before completion", "error", err)
	}
	e.registry.Remove(sess.ID)
	telemetry.GetGlobalMetrics().SetSessionsActive(e.registry.ActiveCount())

	rec := core.TradeRecord{
		TransactionID: uuid.NewString(),
		SessionID:     sess.ID,
		ShopID:        s.ID(),
		BuyerID:       sess.BuyerID,
		SellerID:      s.OwnerID(),
		Offering:      t.offering,
		PricePaid:     t.price,
		Units:         sess.Quantity,
		Source:        sess.Source,
		Status:        core.StatusCompleted,
		CompletedAt:   e.now(),
	}
	if !pay.IsCurrency() {
		rec.PaymentItem = t.payment.Item
	}
	if e.recorder != nil {
		e.recorder.Record(rec)
	}

	e.completed.Add(ctx, 1)
	logger.Info("Trade completed", "transaction_id", rec.TransactionID, "offering", rec.Offering.String(), "payment", t.payment.String())
	return ExecutionResult{SessionID: sess.ID, State: StateCompleted, Record: &rec}
}

// fail marks the session FAILED, removes it and reports reason
func (e *Engine) fail(ctx context.Context, logger core.ILogger, sess Session, reason Reason, err error) ExecutionResult {
	_, terr := e.registry.Transition(sess.ID, StateFailed, StateInitiated, StateAwaitingConfirm, StateExecuting)
	if terr != nil && !errors.Is(terr, apperrors.ErrSessionNotFound) && !errors.Is(terr, apperrors.ErrSessionExpired) {
		logger.Warn("Failed trade could not be marked FAILED", "reason", reason.String(), "error", terr)
	}
	e.registry.Remove(sess.ID)
	telemetry.GetGlobalMetrics().SetSessionsActive(e.registry.ActiveCount())

	e.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason.String())))
	if apperrors.IsValidation(err) {
		logger.Info("Trade rejected at execute", "reason", reason.String(), "error", err)
	}
	return ExecutionResult{SessionID: sess.ID, State: StateFailed, Reason: reason, Err: err}
}

// Cancel removes a session. Unknown or already-finished sessions are a no-op.
func (e *Engine) Cancel(sessionID string) bool {
	sess, ok := e.registry.Remove(sessionID)
	if ok {
		e.logger.Debug("Trade session cancelled", "session_id", sessionID, "buyer_id", sess.BuyerID, "state", sess.State.String())
		telemetry.GetGlobalMetrics().SetSessionsActive(e.registry.ActiveCount())
	}
	return ok
}

// CancelForPlayer removes the buyer's session, if any
func (e *Engine) CancelForPlayer(buyerID string) bool {
	sess, ok := e.registry.RemoveForBuyer(buyerID)
	if ok {
		e.logger.Debug("Trade session cancelled for player", "session_id", sess.ID, "buyer_id", buyerID)
		telemetry.GetGlobalMetrics().SetSessionsActive(e.registry.ActiveCount())
	}
	return ok
}

// InvalidateShop cancels every session on a shop, e.g. after deletion
func (e *Engine) InvalidateShop(shopID string) int {
	removed := e.registry.RemoveForShop(shopID)
	if len(removed) > 0 {
		e.logger.Info("Invalidated sessions for shop", "shop_id", shopID, "count", len(removed))
		telemetry.GetGlobalMetrics().SetSessionsActive(e.registry.ActiveCount())
	}
	return len(removed)
}

// CleanupExpired sweeps lapsed sessions. Sessions abandoned at the
// confirmation step are logged apart from never-confirmed ones.
func (e *Engine) CleanupExpired() int {
	expired := e.registry.SweepExpired()
	ctx := context.Background()
	for _, sess := range expired {
		e.expired.Add(ctx, 1, metric.WithAttributes(attribute.String("state", sess.State.String())))
		switch sess.State {
		case StateAwaitingConfirm:
			e.logger.Info("Abandoned trade expired awaiting confirmation", "session_id", sess.ID, "buyer_id", sess.BuyerID, "shop_id", sess.ShopID)
		default:
			e.logger.Debug("Trade session expired", "session_id", sess.ID, "buyer_id", sess.BuyerID, "state", sess.State.String())
		}
	}
	if len(expired) > 0 {
		e.logger.Info("Expired trade sessions cleaned up", "count", len(expired))
	}
	telemetry.GetGlobalMetrics().SetSessionsActive(e.registry.ActiveCount())
	return len(expired)
}

// ActiveSessionCount is safe from any goroutine
func (e *Engine) ActiveSessionCount() int {
	return e.registry.ActiveCount()
}

// HasSession is safe from any goroutine
func (e *Engine) HasSession(buyerID string) bool {
	return e.registry.HasSession(buyerID)
}

// Session returns a snapshot of a live session. Safe from any goroutine.
func (e *Engine) Session(sessionID string) (Session, error) {
	return e.registry.Get(sessionID)
}

// Run posts a sweep to the owner loop on every tick until ctx is done
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.owner.Post(func() { e.CleanupExpired() }); err != nil {
				return nil
			}
		}
	}
}

// Shutdown drops all sessions
func (e *Engine) Shutdown() {
	n := e.registry.Shutdown()
	telemetry.GetGlobalMetrics().SetSessionsActive(0)
	e.logger.Info("Trade engine shut down", "dropped_sessions", n)
}
