package streaming

import (
	"encoding/json"

	"github.com/vectorwar/arena/pkg/core"
)

// Message type constants for the archive streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeSnapshot     = "snapshot"
	TypeShipState    = "ship_state"
	TypeDesync       = "desync"
	TypeFrameStats   = "frame_stats"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response. SessionID is set on
// the ack for start_session when the server assigns its own identifiers.
type AckMessage struct {
	Type      string `json:"type"` // always "ack"
	For       string `json:"for"`
	SessionID uint   `json:"sessionId,omitempty"`
}

// StartSessionPayload carries the session header.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}

// EndSessionPayload closes the stream for a session.
type EndSessionPayload struct {
	SessionID uint  `json:"sessionId"`
	LastFrame int32 `json:"lastFrame"`
}
