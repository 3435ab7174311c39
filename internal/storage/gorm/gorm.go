// Package gormstorage implements the storage.Backend interface on top of GORM
// with internal queues and a background DB writer goroutine. The SQLite and
// Postgres backends wrap it and only supply the connection.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vectorwar/arena/internal/database"
	"github.com/vectorwar/arena/internal/geo"
	"github.com/vectorwar/arena/internal/model"
	"github.com/vectorwar/arena/internal/model/convert"
	"github.com/vectorwar/arena/internal/queue"
	"github.com/vectorwar/arena/internal/storage"
	"github.com/vectorwar/arena/pkg/arena"
	"github.com/vectorwar/arena/pkg/core"

	"gorm.io/gorm"
)

// ErrNoDatabase is returned by Init when no connection was supplied.
var ErrNoDatabase = errors.New("no database connection")

// DefaultQueueLimit bounds each write queue when Dependencies leaves it unset.
const DefaultQueueLimit = 100000

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
	// FlushInterval is the pause between background writes. Zero disables
	// the writer goroutine; callers then rely on Flush.
	FlushInterval time.Duration
	QueueLimit    int
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Snapshots  *queue.Queue[model.Snapshot]
	ShipStates *queue.Queue[model.ShipState]
	Desyncs    *queue.Queue[model.DesyncEvent]
	FrameStats *queue.Queue[model.FrameStat]
}

func newQueues(limit int) *queues {
	return &queues{
		Snapshots:  queue.NewBounded[model.Snapshot](limit),
		ShipStates: queue.NewBounded[model.ShipState](limit),
		Desyncs:    queue.NewBounded[model.DesyncEvent](limit),
		FrameStats: queue.NewBounded[model.FrameStat](limit),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	log       *slog.Logger
	queues    *queues
	sessionID atomic.Uint64

	trackMu sync.Mutex
	tracks  map[int]*geo.Track

	writeMu           sync.Mutex // serialises Flush and the writer loop
	lastWriteDuration atomic.Int64

	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.QueueLimit <= 0 {
		deps.QueueLimit = DefaultQueueLimit
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		deps:   deps,
		log:    log.With("component", "storage.gorm"),
		queues: newQueues(deps.QueueLimit),
		tracks: make(map[int]*geo.Track),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return ErrNoDatabase
	}

	b.log.Info("Migrating schema", "dialect", b.deps.DB.Name())
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}
	b.log.Info("Database setup complete")

	if b.deps.FlushInterval > 0 {
		b.stopChan = make(chan struct{})
		b.done = make(chan struct{})
		go b.writerLoop()
	}
	return nil
}

// Close stops the DB writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	if b.deps.DB == nil {
		return nil
	}
	return b.Flush()
}

// StartSession inserts the session row synchronously so that its ID can be
// stamped on every queued record.
func (b *Backend) StartSession(s *core.Session) error {
	if b.deps.DB == nil {
		return ErrNoDatabase
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}

	rec := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	s.ID = rec.ID
	b.sessionID.Store(uint64(rec.ID))

	b.trackMu.Lock()
	b.tracks = make(map[int]*geo.Track)
	b.trackMu.Unlock()

	b.log.Info("Session started", "sessionId", rec.ID, "label", s.Label)
	return nil
}

// SetSessionID points the writer at an existing session (used by CLI tools).
func (b *Backend) SetSessionID(id uint) {
	b.sessionID.Store(uint64(id))
}

// EndSession flushes the queues, writes one track per ship and stamps the
// end time.
func (b *Backend) EndSession() error {
	id := uint(b.sessionID.Load())
	if id == 0 {
		return storage.ErrNoSession
	}

	if err := b.Flush(); err != nil {
		return err
	}

	b.trackMu.Lock()
	tracks := make([]model.ShipTrack, 0, len(b.tracks))
	for slot, t := range b.tracks {
		if t.Len() < 2 {
			continue
		}
		tracks = append(tracks, convert.TrackToShipTrack(id, slot, t))
	}
	b.tracks = make(map[int]*geo.Track)
	b.trackMu.Unlock()

	db := b.deps.DB
	if len(tracks) > 0 {
		if err := db.Create(&tracks).Error; err != nil {
			return fmt.Errorf("failed to insert ship tracks: %w", err)
		}
	}

	if err := db.Model(&model.SessionRecord{}).Where("id = ?", id).Update("ended_at", time.Now()).Error; err != nil {
		return fmt.Errorf("failed to close session %d: %w", id, err)
	}

	b.sessionID.Store(0)
	b.log.Info("Session ended", "sessionId", id, "tracks", len(tracks))
	return nil
}

func (b *Backend) currentSession() (uint, error) {
	id := uint(b.sessionID.Load())
	if id == 0 {
		return 0, storage.ErrNoSession
	}
	return id, nil
}

// RecordSnapshot converts and queues a snapshot.
func (b *Backend) RecordSnapshot(s *core.SnapshotRecord) error {
	id, err := b.currentSession()
	if err != nil {
		return err
	}
	gormObj := convert.CoreToSnapshot(*s)
	gormObj.SessionID = id
	gormObj.Data = append([]byte(nil), s.Data...)
	if gormObj.CapturedAt.IsZero() {
		gormObj.CapturedAt = time.Now()
	}
	b.push("snapshots", b.queues.Snapshots.Push(gormObj))
	return nil
}

// RecordShipState converts and queues a ship state and extends the ship's track.
func (b *Backend) RecordShipState(s *core.ShipState) error {
	id, err := b.currentSession()
	if err != nil {
		return err
	}
	gormObj := convert.CoreToShipState(*s)
	gormObj.SessionID = id
	gormObj.Time = time.Now()
	b.push("ship states", b.queues.ShipStates.Push(gormObj))

	b.trackMu.Lock()
	t, ok := b.tracks[s.Slot]
	if !ok {
		t = &geo.Track{}
		b.tracks[s.Slot] = t
	}
	t.Add(arena.Position{X: s.X, Y: s.Y})
	b.trackMu.Unlock()
	return nil
}

// RecordDesync converts and queues a desync event.
func (b *Backend) RecordDesync(e *core.DesyncEvent) error {
	id, err := b.currentSession()
	if err != nil {
		return err
	}
	gormObj := convert.CoreToDesyncEvent(*e)
	gormObj.SessionID = id
	if gormObj.DetectedAt.IsZero() {
		gormObj.DetectedAt = time.Now()
	}
	b.push("desyncs", b.queues.Desyncs.Push(gormObj))
	return nil
}

// RecordFrameStats converts and queues frame stats.
func (b *Backend) RecordFrameStats(f *core.FrameStats) error {
	id, err := b.currentSession()
	if err != nil {
		return err
	}
	gormObj := convert.CoreToFrameStat(*f)
	gormObj.SessionID = id
	if gormObj.Time.IsZero() {
		gormObj.Time = time.Now()
	}
	b.push("frame stats", b.queues.FrameStats.Push(gormObj))
	return nil
}

func (b *Backend) push(name string, evicted int) {
	if evicted > 0 {
		b.log.Warn("Write queue full, oldest records dropped", "queue", name, "dropped", evicted)
	}
}

// QueueLengths reports the pending records per queue.
func (b *Backend) QueueLengths() map[string]int {
	return map[string]int{
		"snapshots":   b.queues.Snapshots.Len(),
		"ship_states": b.queues.ShipStates.Len(),
		"desyncs":     b.queues.Desyncs.Len(),
		"frame_stats": b.queues.FrameStats.Len(),
	}
}

// LastWriteDuration is how long the most recent Flush took.
func (b *Backend) LastWriteDuration() time.Duration {
	return time.Duration(b.lastWriteDuration.Load())
}

// Flush writes every queued record. Items from a failed batch are pushed
// back so the next flush retries them.
func (b *Backend) Flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	start := time.Now()
	db := b.deps.DB
	err := errors.Join(
		writeQueue(db, b.queues.Snapshots, "snapshots"),
		writeQueue(db, b.queues.ShipStates, "ship states"),
		writeQueue(db, b.queues.Desyncs, "desyncs"),
		writeQueue(db, b.queues.FrameStats, "frame stats"),
	)
	b.lastWriteDuration.Store(int64(time.Since(start)))
	return err
}

// writeQueue writes all items from a queue to the database in a transaction.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string) error {
	if q.Empty() {
		return nil
	}

	items := q.Drain(0)
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&items).Error
	})
	if err != nil {
		q.Push(items...)
		return fmt.Errorf("error creating %s: %w", name, err)
	}
	return nil
}

// writerLoop periodically drains queues into the DB.
func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.log.Error("DB write failed", "error", err)
			}
		}
	}
}
