// internal/storage/storage.go
package storage

import (
	"errors"

	"github.com/vectorwar/arena/pkg/core"
)

// ErrUnknownBackend is returned by NewBackend for an unrecognised storage type.
var ErrUnknownBackend = errors.New("unknown storage type")

// ErrNoSession is returned when a record arrives before StartSession.
var ErrNoSession = errors.New("no session started")

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management (assigns ID to the passed pointer)
	StartSession(s *core.Session) error
	EndSession() error

	// Recording
	RecordSnapshot(s *core.SnapshotRecord) error
	RecordShipState(s *core.ShipState) error
	RecordDesync(e *core.DesyncEvent) error
	RecordFrameStats(f *core.FrameStats) error
}

// Exportable is an optional interface for storage backends that write a
// file when a session ends.
type Exportable interface {
	ExportedFilePath() string
}

// Flusher is an optional interface for backends that batch writes.
type Flusher interface {
	Flush() error
}
