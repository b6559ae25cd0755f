package health

import (
	"bartershops/internal/core"
	"bartershops/pkg/telemetry"
	"context"
	"sync"
	"time"
)

// HealthManager aggregates health status from the trade collaborators
// (record store, economy) and caches the last check result.
type HealthManager struct {
	logger core.ILogger
	mu     sync.RWMutex
	checks map[string]func() error

	lastMu      sync.RWMutex
	lastHealthy bool
	lastStatus  map[string]string
}

// NewHealthManager creates a new health manager
func NewHealthManager(logger core.ILogger) *HealthManager {
	hm := &HealthManager{
		checks:      make(map[string]func() error),
		lastHealthy: true,
		lastStatus:  make(map[string]string),
	}
	if logger != nil {
		hm.logger = logger.WithField("component", "health_manager")
	}
	return hm
}

// Register adds a new health check for a component
func (hm *HealthManager) Register(component string, check func() error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[component] = check
}

// GetStatus runs every check and returns the current status per component
func (hm *HealthManager) GetStatus() map[string]string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := make(map[string]string)
	for component, check := range hm.checks {
		if err := check(); err != nil {
			status[component] = "Unhealthy: " + err.Error()
		} else {
			status[component] = "Healthy"
		}
	}
	return status
}

// IsHealthy returns true if all registered components are healthy
func (hm *HealthManager) IsHealthy() bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	for _, check := range hm.checks {
		if err := check(); err != nil {
			return false
		}
	}
	return true
}

// CheckNow runs all checks once and caches the result
func (hm *HealthManager) CheckNow() bool {
	status := hm.GetStatus()
	healthy := true
	metrics := telemetry.GetGlobalMetrics()
	for component, s := range status {
		ok := s == "Healthy"
		metrics.SetComponentHealthy(component, ok)
		if !ok {
			healthy = false
		}
	}

	hm.lastMu.Lock()
	changed := healthy != hm.lastHealthy
	hm.lastHealthy = healthy
	hm.lastStatus = status
	hm.lastMu.Unlock()

	if changed && hm.logger != nil {
		if healthy {
			hm.logger.Info("All components healthy")
		} else {
			hm.logger.Warn("Component health degraded", "status", status)
		}
	}
	return healthy
}

// CachedHealthy returns the result of the last CheckNow without running checks
func (hm *HealthManager) CachedHealthy() bool {
	hm.lastMu.RLock()
	defer hm.lastMu.RUnlock()
	return hm.lastHealthy
}

// CachedStatus returns the per-component result of the last CheckNow
func (hm *HealthManager) CachedStatus() map[string]string {
	hm.lastMu.RLock()
	defer hm.lastMu.RUnlock()
	out := make(map[string]string, len(hm.lastStatus))
	for k, v := range hm.lastStatus {
		out[k] = v
	}
	return out
}

// Run checks on every tick until ctx is done
func (hm *HealthManager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	hm.CheckNow()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			hm.CheckNow()
		}
	}
}
