package worker

import (
	"sync/atomic"
	"time"

	"github.com/vectorwar/arena/internal/dispatcher"
	"github.com/vectorwar/arena/pkg/arena"
	"github.com/vectorwar/arena/pkg/core"
	"github.com/vectorwar/arena/pkg/session"
	"github.com/vectorwar/arena/pkg/snapshot"
)

// Dispatcher is the subset of *dispatcher.Dispatcher the Recorder needs.
type Dispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Recorder observes a session and turns its callbacks into worker events:
// frame stats and ship states on every new frame, a snapshot every
// archiveEvery frames, and a rollback count from every load. Frames
// re-simulated after a rollback are not reported twice.
type Recorder struct {
	d            Dispatcher
	view         func() arena.Arena
	archiveEvery int
	onError      func(cmd string, err error)

	rollbacks    atomic.Int64
	lastAdvanced int32
	lastSaved    int32
}

var _ session.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder. view returns the arena after the observed
// call; archiveEvery <= 0 disables snapshot archiving.
func NewRecorder(d Dispatcher, view func() arena.Arena, archiveEvery int) *Recorder {
	return &Recorder{d: d, view: view, archiveEvery: archiveEvery, lastSaved: -1}
}

// Reset forgets the frames already reported, for a session restarted from
// frame zero.
func (r *Recorder) Reset() {
	r.lastAdvanced = 0
	r.lastSaved = -1
	r.rollbacks.Store(0)
}

// OnError sets the callback for dispatch failures (a full queue, a closed
// dispatcher). Failures are ignored when unset.
func (r *Recorder) OnError(fn func(cmd string, err error)) {
	r.onError = fn
}

// Rollbacks is the number of state loads seen so far.
func (r *Recorder) Rollbacks() int {
	return int(r.rollbacks.Load())
}

func (r *Recorder) dispatch(cmd string, frame int32, payload any) {
	if _, err := r.d.Dispatch(dispatcher.Event{Command: cmd, Frame: frame, Payload: payload}); err != nil && r.onError != nil {
		r.onError(cmd, err)
	}
}

func (r *Recorder) FrameAdvanced(frame int32, _ []arena.Input, _ uint32, elapsed time.Duration) {
	if frame <= r.lastAdvanced {
		return
	}
	r.lastAdvanced = frame
	a := r.view()
	r.dispatch(CmdFrameStats, frame, &core.FrameStats{
		Frame:           frame,
		AdvanceDuration: elapsed,
		Rollbacks:       r.Rollbacks(),
		Checksum:        snapshot.Checksum(&a),
	})
	r.dispatch(CmdShipState, frame, core.ShipStatesFromArena(0, &a))
}

// StateSaved archives the buffer when its frame is a multiple of archiveEvery.
// A frame saved again after a rollback is archived only once.
func (r *Recorder) StateSaved(buf *snapshot.Buffer) {
	if r.archiveEvery <= 0 || int(buf.Frame)%r.archiveEvery != 0 || buf.Frame <= r.lastSaved {
		return
	}
	r.lastSaved = buf.Frame
	r.dispatch(CmdSnapshot, buf.Frame, &core.SnapshotRecord{
		Frame:    buf.Frame,
		Checksum: buf.Checksum,
		Size:     len(buf.Data),
		Version:  snapshot.Version,
		Data:     append([]byte(nil), buf.Data...),
	})
}

func (r *Recorder) StateLoaded(int32, uint32) {
	r.rollbacks.Add(1)
}
