package logger_test

import (
	"testing"

	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestLogger_RedactsSecrets(t *testing.T) {
	log, logs := observed()
	log.Info("calling backend", "api_token", "abc123", "Authorization", "Bearer x", "job_id", "J1")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["api_token"])
	assert.Equal(t, "[REDACTED]", fields["Authorization"])
	assert.Equal(t, "J1", fields["job_id"])
}

func TestLogger_HashesUserIDs(t *testing.T) {
	log, logs := observed()
	log.With("service", "Test").Warn("first", "user_id", "u1")
	log.Warn("second", "user_id", "u1")

	entries := logs.All()
	require.Len(t, entries, 2)
	first := entries[0].ContextMap()["user_id"]
	assert.NotEqual(t, "u1", first)
	assert.Contains(t, first, "hash:")
	assert.Equal(t, first, entries[1].ContextMap()["user_id"])
	assert.Equal(t, "Test", entries[0].ContextMap()["service"])
}

func TestLogger_OddKeyValues(t *testing.T) {
	log, logs := observed()
	assert.NotPanics(t, func() { log.Debug("dangling", "key") })
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "(MISSING)", logs.All()[0].ContextMap()["key"])
}
