package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"debug", "debug", false},
		{"INFO", "info", false},
		{"warning", "warn", false},
		{"", "info", false},
		{"verbose", "info", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lvl, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, lvl.String())
		})
	}
}

func TestNewZapLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewZapLogger("loud")
	assert.Error(t, err)

	l, err := NewZapLogger("ERROR")
	require.NoError(t, err)
	l.Info("suppressed")
}

func TestFieldsAreStructured(t *testing.T) {
	zcore, logs := observer.New(zap.DebugLevel)
	l := NewFromZap(zap.New(zcore))

	l.WithField("component", "trade_engine").Warn("Settlement failed", "session_id", "abc", "error", errors.New("inventory full"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Settlement failed", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "trade_engine", ctx["component"])
	assert.Equal(t, "abc", ctx["session_id"])
	assert.Equal(t, "inventory full", ctx["error"])
}

func TestOddFieldCountDropsDanglingKey(t *testing.T) {
	zcore, logs := observer.New(zap.DebugLevel)
	l := NewFromZap(zap.New(zcore))

	l.Info("msg", "a", 1, "dangling")

	require.Equal(t, 1, logs.Len())
	assert.Len(t, logs.All()[0].Context, 1)
}
