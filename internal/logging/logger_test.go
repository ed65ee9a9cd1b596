package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	t.Parallel()

	for _, dev := range []bool{true, false} {
		logger, err := New(dev)
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.Equal(t, dev, logger.Core().Enabled(zap.DebugLevel))
		logger.Info("logger ready", zap.Bool("development", dev))
		_ = logger.Sync()
	}
}

func TestComponent(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	Component(zap.New(core), "paginator").Info("page fetched")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "paginator", entries[0].LoggerName)

	assert.NotPanics(t, func() { Component(nil, "x").Info("dropped") })
}
