// Package synctest checks that a session is rollback safe. Each frame it
// rewinds a fixed distance, re-simulates the stored inputs and compares the
// replayed checksums with the ones recorded the first time through.
package synctest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/vectorwar/arena/internal/dispatcher"
	"github.com/vectorwar/arena/internal/logging"
	"github.com/vectorwar/arena/internal/util"
	"github.com/vectorwar/arena/internal/worker"
	"github.com/vectorwar/arena/pkg/arena"
	"github.com/vectorwar/arena/pkg/core"
	"github.com/vectorwar/arena/pkg/session"
	"github.com/vectorwar/arena/pkg/snapshot"
)

var ErrDesync = errors.New("desync")

// DesyncError reports the first frame whose replayed state differs.
type DesyncError struct {
	Frame        int32
	Expected     uint32
	Actual       uint32
	ExpectedDump string
	ActualDump   string
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("desync at frame %d: expected %s, got %s",
		e.Frame, util.FormatChecksum(e.Expected), util.FormatChecksum(e.Actual))
}

func (e *DesyncError) Unwrap() error { return ErrDesync }

// Simulation is the part of a session the runner drives.
// *session.Session implements it.
type Simulation interface {
	session.Callbacks
	FrameNumber() int
	StateChecksum() uint32
	View() arena.Arena
}

// InputSource yields the inputs for each frame. io.EOF ends the run early.
type InputSource interface {
	Next(frame int32) ([]arena.Input, uint32, error)
}

// Dispatcher is the subset of *dispatcher.Dispatcher the runner needs.
type Dispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
	HasHandler(command string) bool
}

// Config controls a run.
type Config struct {
	Label string
	// Frames is the number of frames to advance; 0 runs until the source
	// returns io.EOF.
	Frames        int
	CheckDistance int
	// DumpDir receives both renderings of a desynced frame; empty skips dumps.
	DumpDir string
	Session session.Config
}

// Result summarizes a completed run.
type Result struct {
	Frames     int
	FinalFrame int32
	Checksum   uint32
	Checks     int
	ExportPath string
	Duration   time.Duration
}

// Runner drives one simulation through a sync test.
type Runner struct {
	cfg    Config
	sim    Simulation
	d      Dispatcher
	logger *slog.Logger
}

// NewRunner creates a runner. d may be nil, in which case nothing is archived.
func NewRunner(cfg Config, sim Simulation, d Dispatcher, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:    cfg,
		sim:    sim,
		d:      d,
		logger: logger.With("component", "synctest"),
	}
}

// entry is a saved state together with the inputs that advanced it.
type entry struct {
	buf    *snapshot.Buffer
	inputs []arena.Input
	mask   uint32
}

func (r *Runner) dispatch(cmd string, frame int32, payload any) (any, error) {
	if r.d == nil || !r.d.HasHandler(cmd) {
		return nil, nil
	}
	return r.d.Dispatch(dispatcher.Event{Command: cmd, Frame: frame, Payload: payload, Timestamp: time.Now()})
}

// Run advances the simulation with inputs from src, checking every frame once
// CheckDistance frames of history exist. The archived session is closed even
// when the run stops on a desync.
func (r *Runner) Run(ctx context.Context, src InputSource) (res Result, err error) {
	start := time.Now()
	if !r.sim.BeginGame(r.cfg.Label) {
		return res, fmt.Errorf("game %q refused to start", r.cfg.Label)
	}

	view := r.sim.View()
	if _, err := r.dispatch(worker.CmdSessionStart, 0, &core.Session{
		Label:        r.cfg.Label,
		Participants: int(view.NumShips),
		Width:        r.cfg.Session.Width,
		Height:       r.cfg.Session.Height,
		Bounds:       core.RectFromBounds(view.Bounds),
		StartedAt:    start,
	}); err != nil {
		return res, fmt.Errorf("starting archived session: %w", err)
	}

	var history []entry
	defer func() {
		for _, e := range history {
			r.sim.FreeBuffer(e.buf)
		}
		frame := int32(r.sim.FrameNumber())
		out, endErr := r.dispatch(worker.CmdSessionEnd, frame, nil)
		if endErr != nil {
			r.logger.Error("Failed to end archived session", "error", endErr)
			if err == nil {
				err = fmt.Errorf("ending archived session: %w", endErr)
			}
		}
		if path, ok := out.(string); ok {
			res.ExportPath = path
		}
		res.FinalFrame = frame
		res.Checksum = r.sim.StateChecksum()
		res.Duration = time.Since(start)
	}()

	head, err := r.sim.SaveGameState(r.sim.FrameNumber())
	if err != nil {
		return res, err
	}
	history = append(history, entry{buf: head})

	for r.cfg.Frames <= 0 || res.Frames < r.cfg.Frames {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		frame := int32(r.sim.FrameNumber())
		inputs, mask, err := src.Next(frame)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("reading inputs for frame %d: %w", frame, err)
		}

		last := &history[len(history)-1]
		last.inputs = append([]arena.Input(nil), inputs...)
		last.mask = mask
		r.sim.AdvanceFrame(inputs, mask)
		res.Frames++

		buf, err := r.sim.SaveGameState(r.sim.FrameNumber())
		if err != nil {
			return res, err
		}
		history = append(history, entry{buf: buf})
		if len(history) > r.cfg.CheckDistance+1 {
			r.sim.FreeBuffer(history[0].buf)
			history = history[1:]
		}

		if r.cfg.CheckDistance > 0 && len(history) == r.cfg.CheckDistance+1 {
			if err := r.check(history); err != nil {
				return res, err
			}
			res.Checks++
		}
	}

	r.logger.Info("Sync test passed",
		"frames", res.Frames, "checks", res.Checks,
		"checksum", util.FormatChecksum(r.sim.StateChecksum()))
	return res, nil
}

// check rewinds to the oldest entry and replays forward, comparing each
// replayed state with the saved one.
func (r *Runner) check(history []entry) error {
	oldest := history[0].buf
	if err := r.sim.LoadGameState(oldest.Data, oldest.Len()); err != nil {
		return fmt.Errorf("rewinding to frame %d: %w", oldest.Frame, err)
	}
	for i, e := range history[:len(history)-1] {
		r.sim.AdvanceFrame(e.inputs, e.mask)
		want := history[i+1].buf
		if got := r.sim.StateChecksum(); got != want.Checksum {
			return r.report(want, got)
		}
	}
	return nil
}

// report dumps both states of a desynced frame and emits the desync event.
func (r *Runner) report(expected *snapshot.Buffer, actual uint32) error {
	derr := &DesyncError{Frame: expected.Frame, Expected: expected.Checksum, Actual: actual}

	if r.cfg.DumpDir != "" {
		if err := os.MkdirAll(r.cfg.DumpDir, 0o755); err != nil {
			r.logger.Error("Failed to create dump directory", "dir", r.cfg.DumpDir, "error", err)
		} else {
			derr.ExpectedDump = r.dump(expected, "expected")
			if buf, err := r.sim.SaveGameState(int(expected.Frame)); err != nil {
				r.logger.Error("Failed to capture replayed state", "frame", expected.Frame, "error", err)
			} else {
				derr.ActualDump = r.dump(buf, "actual")
				r.sim.FreeBuffer(buf)
			}
		}
	}

	r.logger.Error("Desync detected", "frame", derr.Frame,
		"expected", util.FormatChecksum(derr.Expected), "actual", util.FormatChecksum(derr.Actual))

	if _, err := r.dispatch(worker.CmdDesync, derr.Frame, &core.DesyncEvent{
		Frame:        derr.Frame,
		Expected:     derr.Expected,
		Actual:       derr.Actual,
		ExpectedDump: derr.ExpectedDump,
		ActualDump:   derr.ActualDump,
		DetectedAt:   time.Now(),
	}); err != nil {
		r.logger.Error("Failed to report desync", "error", err)
	}
	return derr
}

func (r *Runner) dump(buf *snapshot.Buffer, side string) string {
	path := logging.DumpFilePath(r.cfg.DumpDir, r.cfg.Label, buf.Frame, side)
	if err := r.sim.LogGameState(path, buf.Data, buf.Len()); err != nil {
		r.logger.Error("Failed to dump state", "path", path, "error", err)
		return ""
	}
	return path
}
