package match

import (
	"log/slog"
	"sync"

	"github.com/vectorwar/arena/pkg/core"
)

// Context holds the running session and the last frame the scheduler reached.
type Context struct {
	mu      sync.RWMutex
	Session *core.Session
	Frame   int32
}

// NewContext creates a new Context with default values
func NewContext() *Context {
	return &Context{
		Session: &core.Session{Label: "No session running"},
	}
}

// GetSession returns the current session
func (mc *Context) GetSession() *core.Session {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.Session
}

// SetSession sets the current session and resets the frame counter
func (mc *Context) SetSession(s *core.Session) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.Session = s
	mc.Frame = 0
}

// Clear forgets the current session.
func (mc *Context) Clear() {
	mc.SetSession(&core.Session{Label: "No session running"})
}

func (mc *Context) SetFrame(frame int32) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.Frame = frame
}

func (mc *Context) GetFrame() int32 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.Frame
}

// Label returns the current session label.
func (mc *Context) Label() string {
	return mc.GetSession().Label
}

// LogAttrs is a logging.ContextProvider that tags records with the session.
func (mc *Context) LogAttrs() []slog.Attr {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return []slog.Attr{
		slog.String("session", mc.Session.Label),
		slog.Any("sessionId", mc.Session.ID),
		slog.Any("frame", mc.Frame),
	}
}
