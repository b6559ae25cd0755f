package alert

import (
	"bartershops/internal/core"
	"bartershops/pkg/concurrency"
	"bartershops/pkg/logging"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	name string
	err  error
	mu   sync.Mutex
	sent []Payload
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(_ context.Context, p Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, p)
	return c.err
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	logger := logging.NewNop()
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "alerts", MaxWorkers: 2}, logger)
	t.Cleanup(pool.Stop)
	return NewManager(pool, logger)
}

func TestManagerFansOut(t *testing.T) {
	m := newManager(t)
	ok := &recordingChannel{name: "ok"}
	broken := &recordingChannel{name: "broken", err: errors.New("webhook down")}
	m.AddChannel(ok)
	m.AddChannel(broken)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Alert(ctx, core.AlertCritical, "Manual reconciliation required", "grant_offering failed",
		map[string]string{"session_id": "s-1"})

	assert.Eventually(t, func() bool { return ok.count() == 1 && broken.count() == 1 },
		time.Second, 5*time.Millisecond)

	ok.mu.Lock()
	defer ok.mu.Unlock()
	assert.Equal(t, core.AlertCritical, ok.sent[0].Level)
	assert.Equal(t, "s-1", ok.sent[0].Fields["session_id"])
	assert.False(t, ok.sent[0].Timestamp.IsZero())
}

func TestManagerWithoutChannels(t *testing.T) {
	m := newManager(t)
	m.Alert(context.Background(), core.AlertInfo, "noop", "", nil)
}

func TestSlackChannelPostsAttachment(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewSlackChannel(srv.URL)
	err := ch.Send(context.Background(), Payload{
		Level:     core.AlertWarning,
		Title:     "Trading degraded",
		Message:   "trade_store: 3 consecutive failures",
		Timestamp: time.Unix(1_700_000_000, 0),
		Fields:    map[string]string{"b": "2", "a": "1"},
	})
	require.NoError(t, err)

	attachments := got["attachments"].([]interface{})
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]interface{})
	assert.Equal(t, "[WARNING] Trading degraded", att["pretext"])
	assert.Equal(t, "#ffcc00", att["color"])
	fields := att["fields"].([]interface{})
	require.Len(t, fields, 2)
	assert.Equal(t, "a", fields[0].(map[string]interface{})["title"])
}

func TestSlackChannelErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewSlackChannel(srv.URL).Send(context.Background(), Payload{Level: core.AlertInfo})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	assert.NoError(t, NewSlackChannel("").Send(context.Background(), Payload{}))
}
