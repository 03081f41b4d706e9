package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := InitLogger(dir, true)
	require.NoError(t, err)

	logger.Debug("restored session", "session_id", "abc")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "cepachat.log"))
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.Contains(t, line, `"msg":"restored session"`)
	assert.Contains(t, line, `"session_id":"abc"`)
}

func TestInitLoggerSkipsDebugByDefault(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := InitLogger(dir, false)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "cepachat.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestInitTelemetryProvidesTracerAndMeter(t *testing.T) {
	dir := t.TempDir()
	tracer, meter, cleanup, err := InitTelemetry(context.Background(), dir)
	require.NoError(t, err)
	require.NotNil(t, tracer)
	require.NotNil(t, meter)

	_, span := tracer.Start(context.Background(), "test_span")
	span.End()
	cleanup()

	data, err := os.ReadFile(filepath.Join(dir, "cepachat_traces.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "test_span")
}
