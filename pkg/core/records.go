// pkg/core/records.go
package core

import (
	"time"

	"github.com/vectorwar/arena/pkg/arena"
)

// SnapshotRecord is an archived state image.
type SnapshotRecord struct {
	SessionID  uint      `json:"sessionId"`
	Frame      int32     `json:"frame"`
	Checksum   uint32    `json:"checksum"`
	Size       int       `json:"size"`
	Version    uint16    `json:"version"`
	Data       []byte    `json:"data"`
	CapturedAt time.Time `json:"capturedAt"`
}

// ShipState is one ship's kinematics and combat counters at a frame.
type ShipState struct {
	SessionID     uint    `json:"sessionId"`
	Frame         int32   `json:"frame"`
	Slot          int     `json:"slot"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	DX            float64 `json:"dx"`
	DY            float64 `json:"dy"`
	Heading       int32   `json:"heading"`
	Health        int32   `json:"health"`
	Cooldown      int32   `json:"cooldown"`
	Score         int32   `json:"score"`
	ActiveBullets int     `json:"activeBullets"`
}

// DesyncEvent records a checksum mismatch between two runs of the same frame.
type DesyncEvent struct {
	SessionID    uint      `json:"sessionId"`
	Frame        int32     `json:"frame"`
	Expected     uint32    `json:"expected"`
	Actual       uint32    `json:"actual"`
	ExpectedDump string    `json:"expectedDump,omitempty"`
	ActualDump   string    `json:"actualDump,omitempty"`
	DetectedAt   time.Time `json:"detectedAt"`
}

// FrameStats is per-tick performance data.
type FrameStats struct {
	SessionID       uint          `json:"sessionId"`
	Frame           int32         `json:"frame"`
	AdvanceDuration time.Duration `json:"advanceDuration"`
	Rollbacks       int           `json:"rollbacks"`
	Checksum        uint32        `json:"checksum"`
	RecordedAt      time.Time     `json:"recordedAt"`
}

// ShipStatesFromArena builds one record per occupied slot.
func ShipStatesFromArena(sessionID uint, a *arena.Arena) []ShipState {
	out := make([]ShipState, 0, a.NumShips)
	for i := 0; i < int(a.NumShips); i++ {
		s := &a.Ships[i]
		out = append(out, ShipState{
			SessionID:     sessionID,
			Frame:         a.FrameNumber,
			Slot:          i,
			X:             s.Position.X,
			Y:             s.Position.Y,
			DX:            s.Velocity.DX,
			DY:            s.Velocity.DY,
			Heading:       s.Heading,
			Health:        s.Health,
			Cooldown:      s.Cooldown,
			Score:         s.Score,
			ActiveBullets: s.ActiveBullets(),
		})
	}
	return out
}

// RectFromBounds converts arena bounds.
func RectFromBounds(b arena.Bounds) Rect {
	return Rect{Left: b.Left, Top: b.Top, Right: b.Right, Bottom: b.Bottom}
}
