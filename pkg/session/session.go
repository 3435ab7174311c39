// Package session exposes an arena to a rollback scheduler through the
// begin/advance/save/load/free/log callback set the scheduler expects.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/vectorwar/arena/pkg/arena"
	"github.com/vectorwar/arena/pkg/snapshot"
)

// Callbacks is the contract a rollback scheduler drives. All calls are made
// sequentially from the scheduler's goroutine.
type Callbacks interface {
	BeginGame(label string) bool
	AdvanceFrame(inputs []arena.Input, disconnectMask uint32)
	SaveGameState(frame int) (*snapshot.Buffer, error)
	FreeBuffer(buf *snapshot.Buffer)
	LoadGameState(data []byte, size int) error
	LogGameState(filename string, data []byte, size int) error
}

// Observer is notified after state-changing calls. Observers run inline and
// must not retain the buffer past the call.
type Observer interface {
	FrameAdvanced(frame int32, inputs []arena.Input, disconnectMask uint32, elapsed time.Duration)
	StateSaved(buf *snapshot.Buffer)
	StateLoaded(frame int32, checksum uint32)
}

// Config sizes the arena and the snapshot pool.
type Config struct {
	Width        int
	Height       int
	Participants int
	// PoolSize caps outstanding snapshot buffers; 0 means unbounded.
	PoolSize int
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		s.observers = append(s.observers, o)
	}
}

// WithFallbackPolicy sets the control source for disconnected participants.
func WithFallbackPolicy(p arena.FallbackPolicy) Option {
	return func(s *Session) {
		s.fallback = p
	}
}

// Session owns one arena and its snapshot pool.
type Session struct {
	cfg       Config
	arena     *arena.Arena
	pool      *snapshot.Pool
	scratch   []byte
	label     string
	logger    *slog.Logger
	observers []Observer
	fallback  arena.FallbackPolicy

	advanced metric.Int64Counter
	saved    metric.Int64Counter
	loaded   metric.Int64Counter
	duration metric.Float64Histogram
}

var _ Callbacks = (*Session)(nil)

// New creates a session with a freshly initialized arena.
func New(cfg Config, opts ...Option) (*Session, error) {
	s := &Session{
		cfg:     cfg,
		pool:    snapshot.NewPool(cfg.PoolSize),
		scratch: make([]byte, snapshot.Size),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	a, err := arena.New(cfg.Width, cfg.Height, cfg.Participants, arena.WithFallbackPolicy(s.fallback))
	if err != nil {
		return nil, fmt.Errorf("initializing arena: %w", err)
	}
	s.arena = a

	if err := s.initMetrics(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) initMetrics() error {
	m := meter()
	var err error

	s.advanced, err = m.Int64Counter(
		"arena.frames.advanced",
		metric.WithDescription("Total ticks simulated, including rollback replays"),
	)
	if err != nil {
		return fmt.Errorf("creating advanced counter: %w", err)
	}

	s.saved, err = m.Int64Counter(
		"arena.snapshots.saved",
		metric.WithDescription("Total state snapshots captured"),
	)
	if err != nil {
		return fmt.Errorf("creating saved counter: %w", err)
	}

	s.loaded, err = m.Int64Counter(
		"arena.snapshots.loaded",
		metric.WithDescription("Total state snapshots restored"),
	)
	if err != nil {
		return fmt.Errorf("creating loaded counter: %w", err)
	}

	s.duration, err = m.Float64Histogram(
		"arena.advance.duration",
		metric.WithDescription("Time spent in one tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("creating advance histogram: %w", err)
	}
	return nil
}

// BeginGame records the label of the match. It always succeeds.
func (s *Session) BeginGame(label string) bool {
	s.label = label
	s.logger.Info("game started", "label", label, "participants", s.cfg.Participants)
	return true
}

// Label returns the label passed to BeginGame.
func (s *Session) Label() string { return s.label }

// Reset reinitializes the arena to its starting layout.
func (s *Session) Reset() error {
	return s.arena.Initialize(s.cfg.Width, s.cfg.Height, s.cfg.Participants)
}

// AdvanceFrame steps the arena one tick.
func (s *Session) AdvanceFrame(inputs []arena.Input, disconnectMask uint32) {
	start := time.Now()
	s.arena.Advance(inputs, disconnectMask)
	elapsed := time.Since(start)

	ctx := context.Background()
	s.advanced.Add(ctx, 1)
	s.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond))

	for _, o := range s.observers {
		o.FrameAdvanced(s.arena.FrameNumber, inputs, disconnectMask, elapsed)
	}
}

// SaveGameState captures the current state. frame is informational; the
// buffer carries the arena's own frame number.
func (s *Session) SaveGameState(frame int) (*snapshot.Buffer, error) {
	buf, err := s.pool.Capture(s.arena)
	if err != nil {
		s.logger.Error("failed to save state", "frame", frame, "error", err)
		return nil, err
	}
	s.saved.Add(context.Background(), 1)

	for _, o := range s.observers {
		o.StateSaved(buf)
	}
	return buf, nil
}

// FreeBuffer returns a buffer obtained from SaveGameState.
func (s *Session) FreeBuffer(buf *snapshot.Buffer) {
	s.pool.Release(buf)
}

// LoadGameState restores a previously saved image. size is the number of
// valid bytes in data; anything other than snapshot.Size is refused and the
// arena is left untouched.
func (s *Session) LoadGameState(data []byte, size int) error {
	if size < 0 || size > len(data) {
		return fmt.Errorf("%w: size %d exceeds buffer of %d bytes", snapshot.ErrSizeMismatch, size, len(data))
	}
	if err := snapshot.Restore(s.arena, data[:size]); err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	s.loaded.Add(context.Background(), 1)

	if len(s.observers) > 0 {
		sum := s.StateChecksum()
		for _, o := range s.observers {
			o.StateLoaded(s.arena.FrameNumber, sum)
		}
	}
	return nil
}

// LogGameState writes a text rendering of a saved image to filename.
func (s *Session) LogGameState(filename string, data []byte, size int) error {
	if size < 0 || size > len(data) {
		return fmt.Errorf("%w: size %d exceeds buffer of %d bytes", snapshot.ErrSizeMismatch, size, len(data))
	}
	if err := snapshot.DumpFile(filename, data[:size]); err != nil {
		return fmt.Errorf("logging state to %s: %w", filename, err)
	}
	return nil
}

// FrameNumber returns the current frame.
func (s *Session) FrameNumber() int {
	return int(s.arena.FrameNumber)
}

// StateChecksum returns the checksum a snapshot taken now would carry.
func (s *Session) StateChecksum() uint32 {
	_ = snapshot.Encode(s.scratch, s.arena)
	return snapshot.Fletcher32(s.scratch)
}

// View returns a copy of the arena for rendering.
func (s *Session) View() arena.Arena {
	return *s.arena
}

// Outstanding reports how many saved buffers have not been freed.
func (s *Session) Outstanding() int {
	return s.pool.Outstanding()
}
