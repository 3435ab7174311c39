package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorwar/arena/internal/dispatcher"
	"github.com/vectorwar/arena/internal/influx"
	"github.com/vectorwar/arena/internal/storage"
	"github.com/vectorwar/arena/pkg/core"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *mockLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *mockLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	mu sync.Mutex

	session    *core.Session
	snapshots  []*core.SnapshotRecord
	shipStates []*core.ShipState
	desyncs    []*core.DesyncEvent
	frameStats []*core.FrameStats
	ended      bool
	exportPath string
	desyncErr  error

	// recordsAtEnd is how many records had arrived when EndSession ran.
	recordsAtEnd int
}

func (b *mockBackend) Init() error  { return nil }
func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s.ID = 9
	b.session = s
	return nil
}

func (b *mockBackend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return storage.ErrNoSession
	}
	b.ended = true
	b.recordsAtEnd = len(b.snapshots) + len(b.shipStates) + len(b.frameStats)
	b.session = nil
	return nil
}

func (b *mockBackend) RecordSnapshot(s *core.SnapshotRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots = append(b.snapshots, s)
	return nil
}

func (b *mockBackend) RecordShipState(s *core.ShipState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shipStates = append(b.shipStates, s)
	return nil
}

func (b *mockBackend) RecordDesync(e *core.DesyncEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.desyncs = append(b.desyncs, e)
	return b.desyncErr
}

func (b *mockBackend) RecordFrameStats(f *core.FrameStats) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frameStats = append(b.frameStats, f)
	return nil
}

func (b *mockBackend) ExportedFilePath() string {
	return b.exportPath
}

func (b *mockBackend) LastWriteDuration() time.Duration {
	return 5 * time.Millisecond
}

// mockPoints implements PointWriter
type mockPoints struct {
	mu      sync.Mutex
	buckets []string
	names   []string
}

func (p *mockPoints) WritePoint(_ context.Context, bucket string, point *influxdb2_write.Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buckets = append(p.buckets, bucket)
	p.names = append(p.names, point.Name())
	return nil
}

// mockUploader implements Uploader
type mockUploader struct {
	mu      sync.Mutex
	uploads []string
	desyncs []core.DesyncEvent
	labels  []string
}

func (u *mockUploader) Upload(filePath string, meta core.UploadMetadata) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads = append(u.uploads, filePath)
	u.labels = append(u.labels, meta.Label)
	return nil
}

func (u *mockUploader) UploadDesync(label string, e core.DesyncEvent) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.desyncs = append(u.desyncs, e)
	u.labels = append(u.labels, label)
	return nil
}

func setup(t *testing.T, deps Dependencies, backend *mockBackend) (*Manager, *dispatcher.Dispatcher) {
	t.Helper()
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)

	m := NewManager(deps, backend)
	m.RegisterHandlers(d)
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return m, d
}

func startSession(t *testing.T, d *dispatcher.Dispatcher) *core.Session {
	t.Helper()
	s := &core.Session{Label: "duel", Participants: 2}
	id, err := d.Dispatch(dispatcher.Event{Command: CmdSessionStart, Payload: s})
	require.NoError(t, err)
	assert.Equal(t, uint(9), id)
	return s
}

func TestRegisterHandlers(t *testing.T) {
	_, d := setup(t, Dependencies{}, &mockBackend{})

	for _, cmd := range []string{CmdSessionStart, CmdSessionEnd, CmdSnapshot, CmdShipState, CmdFrameStats, CmdDesync} {
		assert.True(t, d.HasHandler(cmd), "missing handler for %s", cmd)
	}
}

func TestSessionStart_SetsMatchContext(t *testing.T) {
	backend := &mockBackend{}
	m, d := setup(t, Dependencies{}, backend)
	m.Checksums().Set(1, 1)

	startSession(t, d)

	assert.Equal(t, "duel", m.Match().Label())
	assert.Equal(t, uint(9), m.Match().GetSession().ID)
	assert.Equal(t, 0, m.Checksums().Len())
}

func TestBadPayload(t *testing.T) {
	_, d := setup(t, Dependencies{}, &mockBackend{})

	_, err := d.Dispatch(dispatcher.Event{Command: CmdSessionStart, Payload: "nope"})
	assert.ErrorIs(t, err, ErrBadPayload)

	_, err = d.Dispatch(dispatcher.Event{Command: CmdDesync, Payload: core.DesyncEvent{}})
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestSessionEnd_FlushesBufferedRecords(t *testing.T) {
	backend := &mockBackend{}
	m, d := setup(t, Dependencies{}, backend)
	startSession(t, d)

	for f := int32(1); f <= 50; f++ {
		_, err := d.Dispatch(dispatcher.Event{Command: CmdFrameStats, Frame: f, Payload: &core.FrameStats{Frame: f, Checksum: uint32(f)}})
		require.NoError(t, err)
		_, err = d.Dispatch(dispatcher.Event{Command: CmdShipState, Frame: f, Payload: []core.ShipState{{Frame: f, Slot: 0}, {Frame: f, Slot: 1}}})
		require.NoError(t, err)
	}
	_, err := d.Dispatch(dispatcher.Event{Command: CmdSnapshot, Frame: 50, Payload: &core.SnapshotRecord{Frame: 50}})
	require.NoError(t, err)

	_, err = d.Dispatch(dispatcher.Event{Command: CmdSessionEnd, Frame: 50})
	require.NoError(t, err)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.True(t, backend.ended)
	assert.Equal(t, 50+100+1, backend.recordsAtEnd)
	assert.False(t, backend.snapshots[0].CapturedAt.IsZero())

	assert.Equal(t, 1, m.SnapshotsArchived())
	sum, ok := m.Checksums().Get(50)
	assert.True(t, ok)
	assert.Equal(t, uint32(50), sum)
	assert.Equal(t, "No session running", m.Match().Label())
}

func TestSessionEnd_UploadsExport(t *testing.T) {
	backend := &mockBackend{exportPath: "/tmp/duel.json.gz"}
	up := &mockUploader{}
	_, d := setup(t, Dependencies{Uploader: up, UploadExports: true}, backend)
	startSession(t, d)

	path, err := d.Dispatch(dispatcher.Event{Command: CmdSessionEnd, Frame: 10})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/duel.json.gz", path)
	assert.Equal(t, []string{"/tmp/duel.json.gz"}, up.uploads)
	assert.Equal(t, []string{"duel"}, up.labels)
}

func TestSessionEnd_NoSession(t *testing.T) {
	_, d := setup(t, Dependencies{}, &mockBackend{})

	_, err := d.Dispatch(dispatcher.Event{Command: CmdSessionEnd})
	assert.ErrorIs(t, err, storage.ErrNoSession)
}

func TestDesync_RecordsPointsAndUploads(t *testing.T) {
	backend := &mockBackend{}
	points := &mockPoints{}
	up := &mockUploader{}
	m, d := setup(t, Dependencies{Influx: points, Uploader: up, UploadDesyncs: true}, backend)
	startSession(t, d)

	ev := &core.DesyncEvent{Frame: 12, Expected: 1, Actual: 2}
	_, err := d.Dispatch(dispatcher.Event{Command: CmdDesync, Frame: 12, Payload: ev})
	require.NoError(t, err)

	assert.Equal(t, 1, m.Desyncs())
	require.Len(t, backend.desyncs, 1)
	assert.False(t, backend.desyncs[0].DetectedAt.IsZero())
	assert.Equal(t, []string{influx.BucketSync}, points.buckets)
	assert.Equal(t, []string{"desync"}, points.names)
	require.Len(t, up.desyncs, 1)
	assert.Equal(t, int32(12), up.desyncs[0].Frame)
}

func TestDesync_UploadDisabled(t *testing.T) {
	up := &mockUploader{}
	_, d := setup(t, Dependencies{Uploader: up}, &mockBackend{})
	startSession(t, d)

	_, err := d.Dispatch(dispatcher.Event{Command: CmdDesync, Payload: &core.DesyncEvent{}})
	require.NoError(t, err)
	assert.Empty(t, up.desyncs)
}

func TestDesync_BackendErrorStillReports(t *testing.T) {
	backend := &mockBackend{desyncErr: errors.New("disk full")}
	points := &mockPoints{}
	_, d := setup(t, Dependencies{Influx: points}, backend)
	startSession(t, d)

	_, err := d.Dispatch(dispatcher.Event{Command: CmdDesync, Payload: &core.DesyncEvent{}})
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, points.buckets, 1)
}

func TestFrameStats_WritesPerformancePoint(t *testing.T) {
	points := &mockPoints{}
	m, d := setup(t, Dependencies{Influx: points}, &mockBackend{})
	startSession(t, d)

	_, err := d.Dispatch(dispatcher.Event{Command: CmdFrameStats, Frame: 3, Payload: &core.FrameStats{Frame: 3}})
	require.NoError(t, err)
	require.NoError(t, d.Flush(context.Background()))

	points.mu.Lock()
	assert.Equal(t, []string{influx.BucketPerformance}, points.buckets)
	assert.Equal(t, []string{"frame_stats"}, points.names)
	points.mu.Unlock()
	assert.Equal(t, int32(3), m.Match().GetFrame())
}

func TestLastWriteDuration(t *testing.T) {
	m := NewManager(Dependencies{}, &mockBackend{})
	assert.Equal(t, 5*time.Millisecond, m.LastWriteDuration())
}
