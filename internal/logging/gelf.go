package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
)

// MessageWriter is the subset of *gelf.Writer the handler needs.
type MessageWriter interface {
	WriteMessage(m *gelf.Message) error
}

// DialGraylog opens a UDP GELF writer to addr.
func DialGraylog(addr string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to graylog at %s: %w", addr, err)
	}
	return w, nil
}

// GELFHandler is a slog.Handler that ships records as GELF messages.
type GELFHandler struct {
	w      MessageWriter
	level  slog.Leveler
	host   string
	attrs  []slog.Attr
	groups []string
}

// NewGELFHandler creates a handler writing records at or above level to w.
func NewGELFHandler(w MessageWriter, level string) *GELFHandler {
	host, _ := os.Hostname()
	return &GELFHandler{w: w, level: parseLevel(level), host: host}
}

func (h *GELFHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *GELFHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]any, len(h.attrs)+r.NumAttrs())
	prefix := ""
	for _, g := range h.groups {
		prefix += g + "."
	}
	for _, a := range h.attrs {
		addExtra(extra, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addExtra(extra, prefix, a)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return h.w.WriteMessage(&gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(ts.UnixNano()) / float64(time.Second),
		Level:    syslogLevel(r.Level),
		Facility: instrumentationName,
		Extra:    extra,
	})
}

func addExtra(extra map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			addExtra(extra, prefix+a.Key+".", ga)
		}
		return
	}
	extra["_"+prefix+a.Key] = v.Any()
}

func (h *GELFHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	for _, g := range h.groups {
		prefix += g + "."
	}
	nh := *h
	nh.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		a.Key = prefix + a.Key
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

func (h *GELFHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.groups = append(slices.Clone(h.groups), name)
	return &nh
}

// syslogLevel maps slog levels to the syslog severities GELF expects.
func syslogLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return 3
	case l >= slog.LevelWarn:
		return 4
	case l >= slog.LevelInfo:
		return 6
	default:
		return 7
	}
}
