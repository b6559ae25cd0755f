// Package bootstrap loads configuration and wires the shop trading service.
package bootstrap

import (
	"bartershops/internal/alert"
	"bartershops/internal/core"
	"bartershops/internal/economy"
	"bartershops/internal/fallback"
	"bartershops/internal/infrastructure/health"
	"bartershops/internal/infrastructure/metrics"
	"bartershops/internal/store"
	"bartershops/internal/trading/shop"
	"bartershops/internal/trading/sign"
	"bartershops/internal/trading/trade"
	"bartershops/internal/world"
	"bartershops/pkg/concurrency"
	"bartershops/pkg/logging"
	"bartershops/pkg/retry"
	"bartershops/pkg/telemetry"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// App holds the wired service. Hosts drive it through Click, Confirm and
// PlayerQuit; shops and containers are registered through Directory and World.
type App struct {
	Cfg    *Config
	Logger core.ILogger

	Store      core.ITradeRecordStore
	Ledger     *economy.Ledger
	World      *world.Inventories
	Health     *health.HealthManager
	Fallback   *fallback.Tracker
	Alerts     *alert.Manager
	Pool       *concurrency.WorkerPool
	Owner      *concurrency.OwnerLoop
	Directory  *shop.Directory
	Modes      *shop.ModeMachine
	Engine     *trade.Engine
	Sessions   *sign.SessionManager
	Dispatcher *sign.Dispatcher

	telemetry *telemetry.Telemetry
	zap       *logging.ZapLogger
	closeOnce sync.Once
}

// NewApp loads the config file, starts telemetry and logging, and wires the service
func NewApp(ctx context.Context, configPath string) (*App, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var tel *telemetry.Telemetry
	if cfg.Telemetry.EnableMetrics {
		tel, err = telemetry.Setup(logging.ServiceName, telemetry.Options{StdoutTraces: cfg.Telemetry.StdoutTraces})
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
	}

	zl, err := InitLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	app, err := New(ctx, cfg, zl)
	if err != nil {
		return nil, err
	}
	app.telemetry = tel
	app.zap = zl
	return app, nil
}

// New wires every component from cfg. It does not install telemetry providers.
func New(ctx context.Context, cfg *Config, logger core.ILogger) (*App, error) {
	recordStore, err := store.Open(ctx, store.Options{
		Mode:         store.Mode(cfg.App.StoreMode),
		DatabasePath: cfg.App.DatabasePath,
		DatabaseURL:  cfg.App.DatabaseURL.Reveal(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	ledger := economy.NewLedger(economyConfig(cfg), logger)
	inventories := world.NewInventories(cfg.Trading.PlayerInventorySlots, cfg.Trading.DefaultMaxStack)

	healthManager := health.NewHealthManager(logger)
	healthManager.Register("trade_store", func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return recordStore.Ping(pingCtx)
	})
	tracker := fallback.NewTracker(fallback.Config{
		MaxFailures:  cfg.Fallback.MaxFailures,
		RecoveryTime: cfg.Fallback.RecoveryTime,
	}, healthManager, logger)

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "IOPool",
		MaxWorkers:  cfg.Concurrency.IOPoolSize,
		MaxCapacity: cfg.Concurrency.IOPoolBuffer,
		NonBlocking: true,
	}, logger)
	owner := concurrency.NewOwnerLoop(cfg.Concurrency.OwnerQueueSize, logger)

	alerts := alert.NewManager(pool, logger)
	if hook := cfg.Alerts.SlackWebhookURL.Reveal(); hook != "" {
		alerts.AddChannel(alert.NewSlackChannel(hook))
	}
	tracker.SetAlerter(alerts)

	recorder := trade.NewRecorder(recordStore, ledger, tracker, pool, retry.RetryPolicy{
		MaxAttempts:    cfg.Persistence.MaxRetries + 1,
		InitialBackoff: cfg.Persistence.RetryBackoffMin,
		MaxBackoff:     cfg.Persistence.RetryBackoffMax,
	}, logger)

	dir := shop.NewDirectory()
	modes := shop.NewModeMachine(dir, cfg.Trading.DeleteConfirmTimeout, logger)

	engine := trade.NewEngine(trade.Deps{
		Shops:      modes,
		Registry:   trade.NewRegistry(cfg.Trading.SessionTTL, logger),
		Containers: inventories,
		Economy:    ledger,
		Fallback:   tracker,
		Recorder:   recorder,
		Alerts:     alerts,
		Owner:      owner,
		Pool:       pool,
	}, trade.Config{
		SweepInterval:             cfg.Trading.SweepInterval,
		BlockInitiateWhenDegraded: cfg.Trading.BlockInitiateWhenDegraded,
		MaxQuantity:               cfg.Trading.MaxTradeUnits,
	}, logger)

	sessions := sign.NewSessionManager(cfg.Trading.PurchaseCooldown)
	dispatcher := sign.NewDispatcher(modes, engine, sessions, &offerLogger{logger: logger}, owner, logger)

	return &App{
		Cfg:        cfg,
		Logger:     logger,
		Store:      recordStore,
		Ledger:     ledger,
		World:      inventories,
		Health:     healthManager,
		Fallback:   tracker,
		Alerts:     alerts,
		Pool:       pool,
		Owner:      owner,
		Directory:  dir,
		Modes:      modes,
		Engine:     engine,
		Sessions:   sessions,
		Dispatcher: dispatcher,
	}, nil
}

func economyConfig(cfg *Config) economy.Config {
	tiers := make([]economy.VolumeDiscount, 0, len(cfg.Economy.VolumeDiscounts))
	for _, d := range cfg.Economy.VolumeDiscounts {
		tiers = append(tiers, economy.VolumeDiscount{
			Threshold:  decimal.NewFromFloat(d.Threshold),
			Multiplier: decimal.NewFromFloat(d.Multiplier),
		})
	}
	return economy.Config{
		Enabled:         cfg.Economy.Enabled,
		TaxesEnabled:    cfg.Economy.TaxesEnabled,
		TaxRate:         decimal.NewFromFloat(cfg.Economy.TaxRate),
		StartingBalance: decimal.NewFromFloat(cfg.Economy.StartingBalance),
		VolumeDiscounts: tiers,
	}
}

// offerLogger stands in for a confirmation screen when no host UI is attached
type offerLogger struct {
	logger core.ILogger
}

func (o *offerLogger) Present(_ context.Context, s trade.Session) error {
	o.logger.Info("Trade offered, awaiting confirmation",
		"session_id", s.ID, "buyer_id", s.BuyerID, "shop_id", s.ShopID, "quantity", s.Quantity)
	return nil
}

// Runner is an interface for components that can be run and stopped gracefully.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

func (a *App) runners() []Runner {
	runners := []Runner{
		a.Owner,
		a.Engine,
		a.Dispatcher,
		RunnerFunc(func(ctx context.Context) error {
			return a.Health.Run(ctx, a.Cfg.Fallback.HealthInterval)
		}),
	}
	if a.Cfg.Telemetry.EnableMetrics {
		runners = append(runners, metrics.NewServer(a.Cfg.Telemetry.MetricsPort, a.Health, a.Logger))
	}
	return runners
}

// Run starts every background loop and blocks until ctx is done, a
// termination signal arrives or a runner fails. The app is closed on return.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	a.Logger.Info("Starting bartershops", "store_mode", a.Cfg.App.StoreMode)
	for _, r := range a.runners() {
		r := r
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error("Application stopped with error", "error", err)
		return err
	}

	a.Logger.Info("Application shut down gracefully")
	return nil
}

// Click routes a sign interaction through the owner loop and waits for the
// outcome, including any balance lookup on the worker pool
func (a *App) Click(ctx context.Context, ev sign.ClickEvent) (sign.Outcome, error) {
	return concurrency.Await(ctx, a.Owner, func(done func(sign.Outcome)) {
		a.Dispatcher.HandleClick(ctx, ev, done)
	})
}

// Confirm delivers the buyer's answer to an offered trade
func (a *App) Confirm(ctx context.Context, playerID, sessionID string, accepted bool) (trade.ExecutionResult, error) {
	return concurrency.Await(ctx, a.Owner, func(done func(trade.ExecutionResult)) {
		a.Dispatcher.HandleConfirmation(ctx, playerID, sessionID, accepted, done)
	})
}

// PlayerQuit purges the player's sign sessions and open trade
func (a *App) PlayerQuit(ctx context.Context, playerID string) error {
	return a.Owner.Call(ctx, func() { a.Dispatcher.OnPlayerQuit(playerID) })
}

// Close stops the owner loop, drains pending record writes and releases the
// store and telemetry providers. Safe to call more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.Owner.Stop()
		a.Engine.Shutdown()
		a.Pool.Stop()
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn("Failed to close trade store", "error", err)
		}
		if a.telemetry != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.telemetry.Shutdown(ctx); err != nil {
				a.Logger.Warn("Telemetry shutdown failed", "error", err)
			}
		}
		if a.zap != nil {
			_ = a.zap.Sync()
		}
	})
}
