package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	logger, err := New("debug", true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = New("loud", false)
	require.Error(t, err)
}

func TestTemporalLogger_ForwardsKeyvals(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var tl log.Logger = NewTemporalLogger(zap.New(core))

	tl.Info("workflow started", "WorkflowID", "wf-1", "Attempt", 1)
	tl.Error("activity failed", "Error", "boom")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "workflow started", entries[0].Message)
	assert.Equal(t, "temporal", entries[0].LoggerName)
	assert.Equal(t, "wf-1", entries[0].ContextMap()["WorkflowID"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}
