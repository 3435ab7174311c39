// Package handlers exposes the rollback scheduler contract of a session as
// dispatcher commands, so a scripted or out-of-process scheduler can drive it.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vectorwar/arena/internal/dispatcher"
	"github.com/vectorwar/arena/internal/worker"
	"github.com/vectorwar/arena/pkg/arena"
	"github.com/vectorwar/arena/pkg/core"
	"github.com/vectorwar/arena/pkg/session"
	"github.com/vectorwar/arena/pkg/snapshot"
)

// Scheduler commands.
const (
	CmdBegin    = ":BEGIN:"
	CmdAdvance  = ":ADVANCE:"
	CmdSave     = ":SAVE:"
	CmdLoad     = ":LOAD:"
	CmdFree     = ":FREE:"
	CmdFrame    = ":FRAME:"
	CmdChecksum = ":CHECKSUM:"
	CmdLog      = ":LOG:"
	CmdEnd      = ":END:"
)

var (
	ErrBadPayload    = errors.New("unexpected payload type")
	ErrUnknownHandle = errors.New("unknown buffer handle")
	ErrNotStarted    = errors.New("game not started")
)

// AdvancePayload carries one frame of inputs.
type AdvancePayload struct {
	Inputs         []arena.Input
	DisconnectMask uint32
}

// SaveResult is returned by :SAVE:.
type SaveResult struct {
	Handle   int
	Frame    int32
	Checksum uint32
}

// LogPayload names the buffer to render and the destination file.
type LogPayload struct {
	Handle   int
	Filename string
}

// Dependencies holds all dependencies for the handler service
type Dependencies struct {
	Session *session.Session
	Config  session.Config
	Logger  *slog.Logger
}

// Service owns the buffers handed out by :SAVE: and routes scheduler
// commands to the session.
type Service struct {
	deps Dependencies
	log  *slog.Logger
	d    *dispatcher.Dispatcher

	mu         sync.Mutex
	buffers    map[int]*snapshot.Buffer
	nextHandle int
	started    bool
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		deps:    deps,
		log:     log.With("component", "handlers"),
		buffers: make(map[int]*snapshot.Buffer),
	}
}

// RegisterHandlers registers the scheduler commands. When the worker's
// session commands are registered on the same dispatcher, :BEGIN: and :END:
// open and close the archived session.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	s.d = d

	d.Register(CmdBegin, s.handleBegin, dispatcher.Logged())
	d.Register(CmdAdvance, s.handleAdvance)
	d.Register(CmdSave, s.handleSave)
	d.Register(CmdLoad, s.handleLoad)
	d.Register(CmdFree, s.handleFree)
	d.Register(CmdFrame, s.handleFrame)
	d.Register(CmdChecksum, s.handleChecksum)
	d.Register(CmdLog, s.handleLog, dispatcher.Logged())
	d.Register(CmdEnd, s.handleEnd, dispatcher.Logged())
}

// Outstanding reports how many handles have not been freed.
func (s *Service) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffers)
}

func (s *Service) requireStarted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

func (s *Service) handleBegin(e dispatcher.Event) (any, error) {
	label, ok := e.Payload.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s wants string, got %T", ErrBadPayload, e.Command, e.Payload)
	}
	if !s.deps.Session.BeginGame(label) {
		return false, nil
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	if s.d != nil && s.d.HasHandler(worker.CmdSessionStart) {
		view := s.deps.Session.View()
		rec := &core.Session{
			Label:        label,
			Participants: int(view.NumShips),
			Width:        s.deps.Config.Width,
			Height:       s.deps.Config.Height,
			Bounds:       core.RectFromBounds(view.Bounds),
			StartedAt:    e.Timestamp,
		}
		if _, err := s.d.Dispatch(dispatcher.Event{Command: worker.CmdSessionStart, Payload: rec}); err != nil {
			return nil, fmt.Errorf("starting archived session: %w", err)
		}
	}
	return true, nil
}

func (s *Service) handleAdvance(e dispatcher.Event) (any, error) {
	if err := s.requireStarted(); err != nil {
		return nil, err
	}
	p, ok := e.Payload.(AdvancePayload)
	if !ok {
		return nil, fmt.Errorf("%w: %s wants AdvancePayload, got %T", ErrBadPayload, e.Command, e.Payload)
	}
	s.deps.Session.AdvanceFrame(p.Inputs, p.DisconnectMask)
	return s.deps.Session.FrameNumber(), nil
}

func (s *Service) handleSave(e dispatcher.Event) (any, error) {
	if err := s.requireStarted(); err != nil {
		return nil, err
	}
	buf, err := s.deps.Session.SaveGameState(s.deps.Session.FrameNumber())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nextHandle++
	h := s.nextHandle
	s.buffers[h] = buf
	s.mu.Unlock()

	return SaveResult{Handle: h, Frame: buf.Frame, Checksum: buf.Checksum}, nil
}

func (s *Service) buffer(e dispatcher.Event) (int, *snapshot.Buffer, error) {
	h, ok := e.Payload.(int)
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s wants int handle, got %T", ErrBadPayload, e.Command, e.Payload)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.buffers[h]
	if !ok {
		return h, nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return h, buf, nil
}

func (s *Service) handleLoad(e dispatcher.Event) (any, error) {
	_, buf, err := s.buffer(e)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Session.LoadGameState(buf.Data, buf.Len()); err != nil {
		return nil, err
	}
	return s.deps.Session.FrameNumber(), nil
}

// handleFree takes the handle out of the table and releases its buffer. Only
// one of several concurrent frees of the same handle gets the buffer.
func (s *Service) handleFree(e dispatcher.Event) (any, error) {
	h, ok := e.Payload.(int)
	if !ok {
		return nil, fmt.Errorf("%w: %s wants int handle, got %T", ErrBadPayload, e.Command, e.Payload)
	}
	s.mu.Lock()
	buf, ok := s.buffers[h]
	delete(s.buffers, h)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	s.deps.Session.FreeBuffer(buf)
	return nil, nil
}

func (s *Service) handleFrame(dispatcher.Event) (any, error) {
	return s.deps.Session.FrameNumber(), nil
}

func (s *Service) handleChecksum(dispatcher.Event) (any, error) {
	return s.deps.Session.StateChecksum(), nil
}

func (s *Service) handleLog(e dispatcher.Event) (any, error) {
	p, ok := e.Payload.(LogPayload)
	if !ok {
		return nil, fmt.Errorf("%w: %s wants LogPayload, got %T", ErrBadPayload, e.Command, e.Payload)
	}
	_, buf, err := s.buffer(dispatcher.Event{Command: e.Command, Payload: p.Handle})
	if err != nil {
		return nil, err
	}
	if err := s.deps.Session.LogGameState(p.Filename, buf.Data, buf.Len()); err != nil {
		return nil, err
	}
	return p.Filename, nil
}

// handleEnd frees every outstanding handle and closes the archived session.
func (s *Service) handleEnd(e dispatcher.Event) (any, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil, ErrNotStarted
	}
	s.started = false
	pending := s.buffers
	s.buffers = make(map[int]*snapshot.Buffer)
	s.mu.Unlock()

	for _, buf := range pending {
		s.deps.Session.FreeBuffer(buf)
	}
	if len(pending) > 0 {
		s.log.Warn("Freed buffers still held at end of game", "count", len(pending))
	}

	frame := int32(s.deps.Session.FrameNumber())
	if s.d != nil && s.d.HasHandler(worker.CmdSessionEnd) {
		start := time.Now()
		result, err := s.d.Dispatch(dispatcher.Event{Command: worker.CmdSessionEnd, Frame: frame})
		if err != nil {
			return nil, fmt.Errorf("ending archived session: %w", err)
		}
		s.log.Info("Archived session closed", "frame", frame, "duration", time.Since(start))
		return result, nil
	}
	return nil, nil
}
