package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricTradesInitiatedTotal     = "bartershops_trades_initiated_total"
	MetricTradesCompletedTotal     = "bartershops_trades_completed_total"
	MetricTradesFailedTotal        = "bartershops_trades_failed_total"
	MetricTradesRejectedTotal      = "bartershops_trades_rejected_total"
	MetricRollbacksTotal           = "bartershops_settlement_rollbacks_total"
	MetricReconciliationFailures   = "bartershops_reconciliation_failures_total"
	MetricPersistenceFailuresTotal = "bartershops_persistence_failures_total"
	MetricSessionsExpiredTotal     = "bartershops_sessions_expired_total"
	MetricSettlementLatency        = "bartershops_settlement_latency_ms"
	MetricSessionsActive           = "bartershops_sessions_active"
	MetricDegradedMode             = "bartershops_degraded_mode"
	MetricComponentHealthy         = "bartershops_component_healthy"
)

// MetricsHolder holds the observable gauge state shared across components.
// Counters and histograms are created by the components that own them.
type MetricsHolder struct {
	SessionsActive   metric.Int64ObservableGauge
	DegradedMode     metric.Int64ObservableGauge
	ComponentHealthy metric.Int64ObservableGauge

	mu             sync.RWMutex
	sessionsActive int64
	degraded       int64
	healthMap      map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			healthMap: make(map[string]int64),
		}
	})
	return globalMetrics
}

// InitMetrics registers the observable gauges on meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.SessionsActive, err = meter.Int64ObservableGauge(MetricSessionsActive, metric.WithDescription("Unexpired trade sessions"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.sessionsActive)
			return nil
		}))
	if err != nil {
		return err
	}

	m.DegradedMode, err = meter.Int64ObservableGauge(MetricDegradedMode, metric.WithDescription("Fallback mode state (1=degraded, 0=normal)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.degraded)
			return nil
		}))
	if err != nil {
		return err
	}

	m.ComponentHealthy, err = meter.Int64ObservableGauge(MetricComponentHealthy, metric.WithDescription("Component health (1=healthy, 0=unhealthy)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for name, val := range m.healthMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("component", name)))
			}
			return nil
		}))
	return err
}

func (m *MetricsHolder) SetSessionsActive(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionsActive = int64(count)
}

func (m *MetricsHolder) SetDegraded(degraded bool) {
	val := int64(0)
	if degraded {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degraded = val
}

func (m *MetricsHolder) SetComponentHealthy(component string, healthy bool) {
	val := int64(0)
	if healthy {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthMap[component] = val
}

func (m *MetricsHolder) GetSessionsActive() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionsActive
}

func (m *MetricsHolder) IsDegraded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.degraded == 1
}
