package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/vectorwar/arena/internal/cache"
	"github.com/vectorwar/arena/internal/match"
	"github.com/vectorwar/arena/internal/storage"
	"github.com/vectorwar/arena/pkg/core"
)

// Commands handled by the worker. The session driver dispatches them as it
// advances frames.
const (
	CmdSessionStart = ":SESSION:START:"
	CmdSessionEnd   = ":SESSION:END:"
	CmdSnapshot     = ":SNAPSHOT:"
	CmdShipState    = ":SHIP:STATE:"
	CmdFrameStats   = ":FRAME:STATS:"
	CmdDesync       = ":DESYNC:"
)

// ErrBadPayload is returned when an event carries a payload of the wrong type.
var ErrBadPayload = errors.New("unexpected payload type")

// PointWriter receives metric points. *influx.Manager implements it.
type PointWriter interface {
	WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error
}

// Uploader sends reports to the collector. *api.Client implements it.
type Uploader interface {
	Upload(filePath string, meta core.UploadMetadata) error
	UploadDesync(label string, e core.DesyncEvent) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Match     *match.Context
	Checksums *cache.ChecksumCache
	Logger    *slog.Logger

	// Optional sinks.
	Influx        PointWriter
	Uploader      Uploader
	UploadExports bool
	UploadDesyncs bool

	// EndTimeout bounds how long ending a session waits for queued records.
	EndTimeout time.Duration
}

// Manager forwards session records from the dispatcher to the storage
// backend and the optional metric and report sinks.
type Manager struct {
	deps    Dependencies
	backend storage.Backend
	log     *slog.Logger

	flusher  flusher
	archived cache.SafeCounter
	desyncs  cache.SafeCounter
	started  time.Time
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Match == nil {
		deps.Match = match.NewContext()
	}
	if deps.Checksums == nil {
		deps.Checksums = cache.NewChecksumCache(0)
	}
	if deps.EndTimeout <= 0 {
		deps.EndTimeout = 30 * time.Second
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
		log:     log.With("component", "worker"),
	}
}

// WriteDurationProvider is an optional interface that backends can implement
// to expose their last DB write duration for monitoring.
type WriteDurationProvider interface {
	LastWriteDuration() time.Duration
}

// LastWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) LastWriteDuration() time.Duration {
	if p, ok := m.backend.(WriteDurationProvider); ok {
		return p.LastWriteDuration()
	}
	return 0
}

// SnapshotsArchived is the number of snapshots handed to the backend.
func (m *Manager) SnapshotsArchived() int {
	return m.archived.Value()
}

// Desyncs is the number of desync events handled.
func (m *Manager) Desyncs() int {
	return m.desyncs.Value()
}

// Match returns the context tracking the running session.
func (m *Manager) Match() *match.Context {
	return m.deps.Match
}

// Checksums returns the per-frame checksum history.
func (m *Manager) Checksums() *cache.ChecksumCache {
	return m.deps.Checksums
}
