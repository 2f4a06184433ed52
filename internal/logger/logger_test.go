package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedact(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core))

	log.With("provider", "openai").Info("narrative", "api_key", "sk-123", "model", "gpt")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["api_key"])
	assert.Equal(t, "gpt", fields["model"])
	assert.Equal(t, "openai", fields["provider"])
}

func TestRedact_OddArgs(t *testing.T) {
	kv := []interface{}{"token"}
	assert.Equal(t, kv, redact(kv))
}

func TestNew(t *testing.T) {
	for _, mode := range []string{"development", "production", "nop"} {
		l, err := New(mode)
		require.NoError(t, err, mode)
		l.Debug("hello", "mode", mode)
	}
}
