package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorwar/arena/internal/config"
	"github.com/vectorwar/arena/pkg/core"
)

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), filepath.Join(t.TempDir(), "backup.lp.gz"))
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
	assert.False(t, m.IsValid)
}

func TestWritePoint_NoWriter(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	err := m.WritePoint(context.Background(), BucketSync, DesyncPoint("x", core.DesyncEvent{}))
	assert.Error(t, err)
}

func TestWritePoint_CancelledContext(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.WritePoint(ctx, BucketSync, DesyncPoint("x", core.DesyncEvent{})), context.Canceled)
}

func TestWritePoint_Backup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.lp.gz")
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), path)
	require.NoError(t, m.UseBackup())

	ts := time.Unix(1700000000, 0)
	stats := core.FrameStats{SessionID: 3, Frame: 42, AdvanceDuration: 250 * time.Microsecond, Checksum: 99, RecordedAt: ts}
	require.NoError(t, m.WritePoint(context.Background(), BucketPerformance, FrameStatsPoint("duel", stats)))

	desync := core.DesyncEvent{SessionID: 3, Frame: 43, Expected: 1, Actual: 2, DetectedAt: ts}
	require.NoError(t, m.WritePoint(context.Background(), BucketSync, DesyncPoint("duel", desync)))
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "frame_stats,session=duel,sessionId=3 "), lines[0])
	assert.Contains(t, lines[0], "advanceMicros=250i")
	assert.Contains(t, lines[0], "frame=42i")
	assert.True(t, strings.HasPrefix(lines[1], "desync,"), lines[1])
	assert.Contains(t, lines[1], "actual=2i")
}

func TestFrameStatsPoint_Fields(t *testing.T) {
	p := FrameStatsPoint("s", core.FrameStats{Frame: 7, Rollbacks: 2})
	assert.Equal(t, "frame_stats", p.Name())

	fields := make(map[string]any)
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, int64(7), fields["frame"])
	assert.Equal(t, int64(2), fields["rollbacks"])
	assert.False(t, p.Time().IsZero())
}

func TestClose_Idempotent(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), filepath.Join(t.TempDir(), "b.gz"))
	require.NoError(t, m.UseBackup())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}
