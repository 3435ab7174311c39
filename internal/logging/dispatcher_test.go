package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestDispatcherLogger_Debug(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(NewZerolog(&buf, "debug"))

	dl.Debug("test message", "key1", "value1", "key2", 42)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "test message", entry["message"])
	assert.Equal(t, "dispatcher", entry["component"])
	assert.Equal(t, "value1", entry["key1"])
	assert.Equal(t, float64(42), entry["key2"])
}

func TestDispatcherLogger_InfoAndError(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(NewZerolog(&buf, "info"))

	dl.Info("queued", "command", ":SNAPSHOT:")
	assert.Equal(t, "info", decodeLine(t, &buf)["level"])

	buf.Reset()
	dl.Error("failed", "error", "boom")
	entry := decodeLine(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "boom", entry["error"])
}

func TestDispatcherLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(NewZerolog(&buf, "INFO"))

	dl.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestNewZerolog_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerolog(&buf, "chatty")

	l.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
	l.Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestToFields(t *testing.T) {
	fields := toFields([]any{"a", 1, 2, "skipped", "dangling"})
	assert.Equal(t, map[string]any{"a": 1}, fields)
}
