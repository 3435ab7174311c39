// Package netstatus tracks per-participant connection state as reported by
// the rollback scheduler, for display and for deriving the disconnect mask.
package netstatus

import (
	"fmt"
	"sync"
	"time"
)

// MaxParticipants bounds players plus spectators.
const MaxParticipants = 64

type ParticipantType int

const (
	Local ParticipantType = iota
	Remote
	Spectator
)

func (t ParticipantType) String() string {
	switch t {
	case Local:
		return "local"
	case Remote:
		return "remote"
	case Spectator:
		return "spectator"
	}
	return fmt.Sprintf("ParticipantType(%d)", int(t))
}

type State int

const (
	Connecting State = iota
	Synchronizing
	Running
	Disconnected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Synchronizing:
		return "synchronizing"
	case Running:
		return "running"
	case Disconnected:
		return "disconnected"
	case Disconnecting:
		return "disconnecting"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Info is one participant's connection status.
type Info struct {
	Type              ParticipantType
	State             State
	ConnectProgress   int
	DisconnectTimeout time.Duration
	DisconnectStart   time.Time
}

// Label is the short status line shown next to the participant's ship.
func (i Info) Label() string {
	switch i.State {
	case Connecting:
		if i.Type == Local {
			return "Local Player"
		}
		return "Connecting..."
	case Synchronizing:
		if i.Type == Local {
			return "Local Player"
		}
		return "Synchronizing..."
	case Disconnected:
		return "Disconnected"
	case Disconnecting:
		return "Waiting for player..."
	}
	return ""
}

// Progress returns a percentage for the progress bar, or -1 when none applies.
func (i Info) Progress(now time.Time) int {
	switch i.State {
	case Synchronizing:
		return i.ConnectProgress
	case Disconnecting:
		if i.DisconnectTimeout <= 0 {
			return 100
		}
		p := int(now.Sub(i.DisconnectStart) * 100 / i.DisconnectTimeout)
		return min(max(p, 0), 100)
	}
	return -1
}

// Report is the connection status of every participant plus a free-form
// status line. It is safe for concurrent use: the scheduler writes while the
// renderer reads.
type Report struct {
	mu           sync.RWMutex
	status       string
	participants []Info
}

// NewReport creates a report with one participant per type, all connecting.
func NewReport(types ...ParticipantType) *Report {
	if len(types) > MaxParticipants {
		types = types[:MaxParticipants]
	}
	r := &Report{participants: make([]Info, len(types))}
	for i, t := range types {
		r.participants[i].Type = t
	}
	return r
}

func (r *Report) update(i int, fn func(*Info)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.participants) {
		return
	}
	fn(&r.participants[i])
}

// SetStatus replaces the status line.
func (r *Report) SetStatus(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = fmt.Sprintf(format, args...)
}

// Status returns the status line.
func (r *Report) Status() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// OnConnected marks participant i as connected and starting to synchronize.
func (r *Report) OnConnected(i int) {
	r.update(i, func(info *Info) {
		info.State = Synchronizing
		info.ConnectProgress = 0
	})
}

// OnSynchronizing records synchronization progress as count of total.
func (r *Report) OnSynchronizing(i, count, total int) {
	r.update(i, func(info *Info) {
		info.State = Synchronizing
		if total > 0 {
			info.ConnectProgress = 100 * count / total
		}
	})
}

// OnSynchronized marks participant i as ready.
func (r *Report) OnSynchronized(i int) {
	r.update(i, func(info *Info) {
		info.State = Running
		info.ConnectProgress = 100
	})
}

// OnRunning marks every participant as running.
func (r *Report) OnRunning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.participants {
		r.participants[i].State = Running
	}
	r.status = ""
}

// OnInterrupted starts the disconnect countdown for participant i.
func (r *Report) OnInterrupted(i int, timeout time.Duration, now time.Time) {
	r.update(i, func(info *Info) {
		info.State = Disconnecting
		info.DisconnectTimeout = timeout
		info.DisconnectStart = now
	})
}

// OnResumed cancels the disconnect countdown for participant i.
func (r *Report) OnResumed(i int) {
	r.update(i, func(info *Info) {
		info.State = Running
	})
}

// OnDisconnected marks participant i as gone.
func (r *Report) OnDisconnected(i int) {
	r.update(i, func(info *Info) {
		info.State = Disconnected
	})
}

// Participant returns a copy of participant i's status.
func (r *Report) Participant(i int) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.participants) {
		return Info{}, false
	}
	return r.participants[i], true
}

// Participants returns a copy of every participant's status.
func (r *Report) Participants() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Info(nil), r.participants...)
}

// DisconnectMask sets bit i for each of the first 32 participants that is
// disconnected.
func (r *Report) DisconnectMask() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var mask uint32
	for i, info := range r.participants {
		if i >= 32 {
			break
		}
		if info.State == Disconnected {
			mask |= 1 << uint(i)
		}
	}
	return mask
}
