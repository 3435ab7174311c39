// internal/storage/memory/memory.go
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/vectorwar/arena/internal/config"
	"github.com/vectorwar/arena/internal/storage"
	"github.com/vectorwar/arena/pkg/core"
)

// ShipRecord groups one slot's states in frame order
type ShipRecord struct {
	Slot   int
	States []core.ShipState
}

// Backend keeps session records in memory and exports them to JSON when
// the session ends
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	ships      map[int]*ShipRecord // keyed by slot
	snapshots  []core.SnapshotRecord
	desyncs    []core.DesyncEvent
	frameStats []core.FrameStats
	lastFrame  int32

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:   cfg,
		ships: make(map[int]*ShipRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session and assigns its ID
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	s.ID = b.idCounter
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	session := *s
	b.session = &session

	// Reset all collections
	b.ships = make(map[int]*ShipRecord)
	b.snapshots = nil
	b.desyncs = nil
	b.frameStats = nil
	b.lastFrame = 0

	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNoSession
	}
	b.session.EndedAt = time.Now()

	err := b.exportJSON()
	b.session = nil
	return err
}

// Session returns a copy of the running session
func (b *Backend) Session() (core.Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.session == nil {
		return core.Session{}, false
	}
	return *b.session, true
}

// ExportedFilePath returns the file written by the last EndSession
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// RecordSnapshot stores an archived state image
func (b *Backend) RecordSnapshot(s *core.SnapshotRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNoSession
	}
	rec := *s
	rec.Data = append([]byte(nil), s.Data...)
	b.snapshots = append(b.snapshots, rec)
	b.observeFrame(s.Frame)
	return nil
}

// RecordShipState appends a ship state under its slot
func (b *Backend) RecordShipState(s *core.ShipState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNoSession
	}
	if s.Slot < 0 || s.Slot >= b.session.Participants {
		return fmt.Errorf("ship slot %d outside session of %d", s.Slot, b.session.Participants)
	}

	record, ok := b.ships[s.Slot]
	if !ok {
		record = &ShipRecord{Slot: s.Slot}
		b.ships[s.Slot] = record
	}
	record.States = append(record.States, *s)
	b.observeFrame(s.Frame)
	return nil
}

// RecordDesync records a checksum mismatch
func (b *Backend) RecordDesync(e *core.DesyncEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNoSession
	}
	b.desyncs = append(b.desyncs, *e)
	b.observeFrame(e.Frame)
	return nil
}

// RecordFrameStats records per-tick performance data
func (b *Backend) RecordFrameStats(f *core.FrameStats) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNoSession
	}
	b.frameStats = append(b.frameStats, *f)
	b.observeFrame(f.Frame)
	return nil
}

// ShipStates returns a copy of the states recorded for a slot
func (b *Backend) ShipStates(slot int) []core.ShipState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	record, ok := b.ships[slot]
	if !ok {
		return nil
	}
	return append([]core.ShipState(nil), record.States...)
}

// Counts reports how many records of each kind the running session holds
func (b *Backend) Counts() (snapshots, shipStates, desyncs, frameStats int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, r := range b.ships {
		shipStates += len(r.States)
	}
	return len(b.snapshots), shipStates, len(b.desyncs), len(b.frameStats)
}

// observeFrame tracks the highest frame seen; caller holds the lock
func (b *Backend) observeFrame(frame int32) {
	if frame > b.lastFrame {
		b.lastFrame = frame
	}
}
