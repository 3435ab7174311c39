package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vectorwar/arena/internal/storage"
	"github.com/vectorwar/arena/pkg/core"
	"github.com/vectorwar/arena/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams session records over WebSocket to an ingest server.
// It implements storage.Backend but not storage.Exportable.
type Backend struct {
	conn *connection
	cfg  Config

	mu        sync.Mutex
	session   *core.Session
	lastFrame int32
	nextID    atomic.Uint64
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger.With("component", "storage.websocket")),
		cfg:  cfg,
	}
}

// HTTPToWS converts an HTTP(S) URL to a WebSocket URL.
func HTTPToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// QueueLengths reports messages waiting for the write loop.
func (b *Backend) QueueLengths() map[string]int {
	return map[string]int{"websocket.send": b.conn.sendCh.Len()}
}

// Dropped is the number of messages discarded because the send buffer was full.
func (b *Backend) Dropped() uint64 {
	return b.conn.dropped.Load()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, frame int32, payload any) error {
	b.mu.Lock()
	if b.session == nil {
		b.mu.Unlock()
		return storage.ErrNoSession
	}
	b.lastFrame = max(b.lastFrame, frame)
	b.mu.Unlock()

	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartSession sends the session header and waits for server ack. The
// server may assign the session ID in its ack; otherwise a local counter is used.
func (b *Backend) StartSession(s *core.Session) error {
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	local := *s
	local.ID = uint(b.nextID.Add(1))

	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: &local})
	if err != nil {
		return err
	}

	// Cache for reconnect replay.
	b.conn.setCachedStart(data)

	ack, err := b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
	if err != nil {
		b.conn.setCachedStart(nil)
		return err
	}
	if ack.SessionID != 0 {
		local.ID = ack.SessionID
	}
	s.ID = local.ID

	b.mu.Lock()
	b.session = &local
	b.lastFrame = 0
	b.mu.Unlock()
	return nil
}

// EndSession sends end_session and waits for server ack.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	if b.session == nil {
		b.mu.Unlock()
		return storage.ErrNoSession
	}
	payload := streaming.EndSessionPayload{SessionID: b.session.ID, LastFrame: b.lastFrame}
	b.session = nil
	b.mu.Unlock()

	data, err := marshalEnvelope(streaming.TypeEndSession, payload)
	if err == nil {
		_, err = b.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)
	}

	// Clear cached state regardless of error.
	b.conn.setCachedStart(nil)
	return err
}

func (b *Backend) RecordSnapshot(s *core.SnapshotRecord) error {
	return b.sendEnvelope(streaming.TypeSnapshot, s.Frame, s)
}

func (b *Backend) RecordShipState(s *core.ShipState) error {
	return b.sendEnvelope(streaming.TypeShipState, s.Frame, s)
}

func (b *Backend) RecordDesync(e *core.DesyncEvent) error {
	return b.sendEnvelope(streaming.TypeDesync, e.Frame, e)
}

func (b *Backend) RecordFrameStats(f *core.FrameStats) error {
	return b.sendEnvelope(streaming.TypeFrameStats, f.Frame, f)
}
