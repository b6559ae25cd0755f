// Package fallback tracks collaborator failures and decides when trading
// runs in degraded mode.
package fallback

import (
	"bartershops/internal/core"
	"bartershops/pkg/telemetry"
	"context"
	"sync"
	"time"
)

type State int

const (
	StateNormal State = iota
	StateDegraded
)

func (s State) String() string {
	if s == StateDegraded {
		return "DEGRADED"
	}
	return "NORMAL"
}

// Config controls when the tracker trips and recovers
type Config struct {
	MaxFailures  int
	RecoveryTime time.Duration
}

// DefaultConfig trips after 3 consecutive failures and retries after 30s
func DefaultConfig() Config {
	return Config{MaxFailures: 3, RecoveryTime: 30 * time.Second}
}

// HealthSource is the cached view of component health
type HealthSource interface {
	CachedHealthy() bool
}

// Status is a point-in-time view of the tracker
type Status struct {
	State               State
	Reason              string
	ConsecutiveFailures int
	Since               time.Time
}

// Tracker implements core.IFallbackTracker
type Tracker struct {
	mu                  sync.Mutex
	state               State
	config              Config
	consecutiveFailures int
	lastTripped         time.Time
	reason              string
	health              HealthSource
	alerts              core.IAlerter
	logger              core.ILogger
	now                 func() time.Time
}

// NewTracker creates a tracker. health may be nil.
func NewTracker(config Config, health HealthSource, logger core.ILogger) *Tracker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = DefaultConfig().MaxFailures
	}
	return &Tracker{
		state:  StateNormal,
		config: config,
		health: health,
		logger: logger.WithField("component", "fallback_tracker"),
		now:    time.Now,
	}
}

// SetAlerter makes degraded mode transitions notify operators
func (t *Tracker) SetAlerter(a core.IAlerter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alerts = a
}

// RecordFailure counts a failed collaborator call
func (t *Tracker) RecordFailure(component string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.consecutiveFailures++
	t.logger.Debug("Collaborator failure recorded", "component", component, "failures", t.consecutiveFailures, "error", err)
	if t.state == StateNormal && t.consecutiveFailures >= t.config.MaxFailures {
		t.trip(component + " failed repeatedly")
	}
}

// RecordSuccess clears the failure streak
func (t *Tracker) RecordSuccess(component string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutiveFailures = 0
}

func (t *Tracker) trip(reason string) {
	t.state = StateDegraded
	t.lastTripped = t.now()
	t.reason = reason
	t.logger.Warn("Entering degraded mode", "reason", reason)
	telemetry.GetGlobalMetrics().SetDegraded(true)
	if t.alerts != nil {
		t.alerts.Alert(context.Background(), core.AlertWarning, "Trading degraded", reason, nil)
	}
}

// IsDegraded reports degraded mode. A tripped tracker recovers on its own once
// RecoveryTime has passed. Unhealthy cached health also counts as degraded.
func (t *Tracker) IsDegraded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateDegraded {
		if t.config.RecoveryTime > 0 && t.now().Sub(t.lastTripped) > t.config.RecoveryTime {
			t.resetLocked("recovery window elapsed")
		} else {
			return true
		}
	}
	return t.health != nil && !t.health.CachedHealthy()
}

// Enter forces degraded mode
func (t *Tracker) Enter(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateDegraded {
		t.trip(reason)
	}
}

// Reset leaves degraded mode immediately
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked("manual reset")
}

func (t *Tracker) resetLocked(why string) {
	if t.state == StateDegraded {
		t.logger.Info("Leaving degraded mode", "why", why, "was", t.reason)
		if t.alerts != nil {
			t.alerts.Alert(context.Background(), core.AlertInfo, "Trading recovered", why, map[string]string{"was": t.reason})
		}
	}
	t.state = StateNormal
	t.consecutiveFailures = 0
	t.reason = ""
	telemetry.GetGlobalMetrics().SetDegraded(false)
}

// Status returns the current tracker state
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		State:               t.state,
		Reason:              t.reason,
		ConsecutiveFailures: t.consecutiveFailures,
		Since:               t.lastTripped,
	}
}
