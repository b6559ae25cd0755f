// Package alert delivers operator alerts, such as a rollback that could not
// be compensated, to external channels.
package alert

import (
	"bartershops/internal/core"
	"bartershops/pkg/concurrency"
	"context"
	"sync"
	"time"
)

// Payload is one alert as handed to a channel
type Payload struct {
	Level     core.AlertLevel
	Title     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// Channel delivers alerts to one destination
type Channel interface {
	Send(ctx context.Context, alert Payload) error
	Name() string
}

// Manager implements core.IAlerter. Delivery runs on the worker pool.
type Manager struct {
	channels    []Channel
	pool        *concurrency.WorkerPool
	logger      core.ILogger
	sendTimeout time.Duration
	now         func() time.Time
	mu          sync.RWMutex
}

func NewManager(pool *concurrency.WorkerPool, logger core.ILogger) *Manager {
	return &Manager{
		pool:        pool,
		logger:      logger.WithField("component", "alert_manager"),
		sendTimeout: 10 * time.Second,
		now:         time.Now,
	}
}

func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
	m.logger.Info("Added alert channel", "name", ch.Name())
}

// Alert fans the alert out to every channel without waiting for delivery
func (m *Manager) Alert(ctx context.Context, level core.AlertLevel, title, message string, fields map[string]string) {
	payload := Payload{
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: m.now(),
		Fields:    fields,
	}

	m.logger.Info("Triggering alert", "title", title, "level", string(level))

	m.mu.RLock()
	channels := append([]Channel(nil), m.channels...)
	m.mu.RUnlock()

	// delivery outlives the request that raised the alert
	base := context.WithoutCancel(ctx)
	for _, ch := range channels {
		ch := ch
		err := m.pool.Submit(func() {
			sendCtx, cancel := context.WithTimeout(base, m.sendTimeout)
			defer cancel()
			if err := ch.Send(sendCtx, payload); err != nil {
				m.logger.Error("Failed to send alert", "channel", ch.Name(), "title", title, "error", err)
			}
		})
		if err != nil {
			m.logger.Error("Alert dropped", "channel", ch.Name(), "title", title, "error", err)
		}
	}
}
