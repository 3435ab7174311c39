package logging

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	mu       sync.Mutex
	messages []*gelf.Message
}

func (c *captureWriter) WriteMessage(m *gelf.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
	return nil
}

func TestGELFHandler_WritesMessage(t *testing.T) {
	w := &captureWriter{}
	logger := slog.New(NewGELFHandler(w, "info"))

	logger.Warn("desync detected", "frame", 120, slog.Group("sum", "want", 1, "got", 2))

	require.Len(t, w.messages, 1)
	m := w.messages[0]
	assert.Equal(t, "1.1", m.Version)
	assert.Equal(t, "desync detected", m.Short)
	assert.Equal(t, int32(4), m.Level)
	assert.Equal(t, int64(120), m.Extra["_frame"])
	assert.Equal(t, int64(1), m.Extra["_sum.want"])
	assert.Equal(t, int64(2), m.Extra["_sum.got"])
	assert.NotZero(t, m.TimeUnix)
}

func TestGELFHandler_LevelFilter(t *testing.T) {
	w := &captureWriter{}
	logger := slog.New(NewGELFHandler(w, "warn"))

	logger.Info("ignored")
	logger.Error("kept")

	require.Len(t, w.messages, 1)
	assert.Equal(t, int32(3), w.messages[0].Level)
}

func TestGELFHandler_AttrsAndGroups(t *testing.T) {
	w := &captureWriter{}
	logger := slog.New(NewGELFHandler(w, "debug")).
		With("session", "vw").
		WithGroup("ship").
		With("slot", 1)

	logger.Debug("moved", "heading", 90)

	require.Len(t, w.messages, 1)
	extra := w.messages[0].Extra
	assert.Equal(t, "vw", extra["_session"])
	assert.Equal(t, int64(1), extra["_ship.slot"])
	assert.Equal(t, int64(90), extra["_ship.heading"])
	assert.Equal(t, int32(7), w.messages[0].Level)
}
