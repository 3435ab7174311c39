package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vectorwar/arena/internal/util"
	"github.com/vectorwar/arena/internal/worker"
)

// QueueSizer reports pending events per buffered command.
// *dispatcher.Dispatcher implements it.
type QueueSizer interface {
	QueueSizes() map[string]int
}

// QueueLengther reports pending records per write queue. The gorm-based
// storage backends implement it.
type QueueLengther interface {
	QueueLengths() map[string]int
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Worker     *worker.Manager
	Dispatcher QueueSizer
	Backend    any
	Logger     *slog.Logger
	// StatusDir receives status.txt; empty disables the file.
	StatusDir string
	Interval  time.Duration
}

// Status is one sample of the running session.
type Status struct {
	Time                time.Time      `json:"time"`
	Session             string         `json:"session"`
	SessionID           uint           `json:"sessionId"`
	Frame               int32          `json:"frame"`
	Checksum            string         `json:"checksum,omitempty"`
	SnapshotsArchived   int            `json:"snapshotsArchived"`
	Desyncs             int            `json:"desyncs"`
	DispatcherQueues    map[string]int `json:"dispatcherQueues"`
	WriteQueues         map[string]int `json:"writeQueues,omitempty"`
	LastWriteDurationMs float64        `json:"lastWriteDurationMs"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	log       *slog.Logger
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		deps: deps,
		log:  log.With("component", "monitor"),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Status samples the current state.
func (s *Service) Status() Status {
	st := Status{
		Time:             time.Now(),
		DispatcherQueues: map[string]int{},
	}

	if w := s.deps.Worker; w != nil {
		sess := w.Match().GetSession()
		st.Session = sess.Label
		st.SessionID = sess.ID
		st.Frame = w.Match().GetFrame()
		if sum, ok := w.Checksums().Get(st.Frame); ok {
			st.Checksum = util.FormatChecksum(sum)
		}
		st.SnapshotsArchived = w.SnapshotsArchived()
		st.Desyncs = w.Desyncs()
		st.LastWriteDurationMs = float64(w.LastWriteDuration().Microseconds()) / 1000
	}
	if s.deps.Dispatcher != nil {
		st.DispatcherQueues = s.deps.Dispatcher.QueueSizes()
	}
	if q, ok := s.deps.Backend.(QueueLengther); ok {
		st.WriteQueues = q.QueueLengths()
	}
	return st
}

// GetProgramStatus renders the requested parts of the status as indented JSON.
func (s *Service) GetProgramStatus(queues, writeQueues, lastWrite bool) (output []string, st Status) {
	st = s.Status()

	render := func(v any) string {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf(`{"error": "%s"}`, err)
		}
		return string(b)
	}

	output = append(output, render(map[string]any{
		"session":  st.Session,
		"frame":    st.Frame,
		"checksum": st.Checksum,
	}))
	if queues {
		output = append(output, render(st.DispatcherQueues))
	}
	if writeQueues && st.WriteQueues != nil {
		output = append(output, render(st.WriteQueues))
	}
	if lastWrite {
		output = append(output, render(st.LastWriteDurationMs))
	}
	return output, st
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	var statusFile *os.File
	if s.deps.StatusDir != "" {
		f, err := os.Create(filepath.Join(s.deps.StatusDir, "status.txt"))
		if err != nil {
			s.log.Error("Error creating status file", "error", err)
		} else {
			statusFile = f
		}
	}

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()
		if statusFile != nil {
			defer statusFile.Close()
		}

		s.log.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				lines, st := s.GetProgramStatus(true, true, true)
				if st.SessionID == 0 {
					continue
				}

				s.log.Info("Status",
					"session", st.Session,
					"frame", st.Frame,
					"checksum", st.Checksum,
					"snapshots", st.SnapshotsArchived,
					"desyncs", st.Desyncs,
					"lastWriteMs", st.LastWriteDurationMs)

				if statusFile != nil {
					_ = statusFile.Truncate(0)
					_, _ = statusFile.Seek(0, 0)
					for _, line := range lines {
						_, _ = statusFile.WriteString(line + "\n")
					}
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for its goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning || s.stopChan == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.stopChan = nil
	done := s.done
	s.mu.Unlock()
	<-done
}
