package convert

import (
	"encoding/json"
	"time"

	"github.com/vectorwar/arena/internal/geo"
	"github.com/vectorwar/arena/internal/model"
	"github.com/vectorwar/arena/pkg/core"
)

// SessionToCore converts a GORM SessionRecord to a core.Session.
func SessionToCore(s model.SessionRecord) core.Session {
	out := core.Session{
		ID:           s.ID,
		Label:        s.Label,
		Participants: s.Participants,
		Width:        s.Width,
		Height:       s.Height,
		Bounds: core.Rect{
			Left:   s.Bounds.Left,
			Top:    s.Bounds.Top,
			Right:  s.Bounds.Right,
			Bottom: s.Bounds.Bottom,
		},
		StartedAt: s.StartedAt,
	}
	if s.EndedAt.Valid {
		out.EndedAt = s.EndedAt.Time
	}
	return out
}

// SnapshotToCore converts a GORM Snapshot to a core.SnapshotRecord.
func SnapshotToCore(s model.Snapshot) core.SnapshotRecord {
	return core.SnapshotRecord{
		SessionID:  s.SessionID,
		Frame:      s.Frame,
		Checksum:   s.Checksum,
		Size:       s.Size,
		Version:    s.Version,
		Data:       s.Data,
		CapturedAt: s.CapturedAt,
	}
}

// ShipStateToCore converts a GORM ShipState to a core.ShipState. An empty
// position reads back as the origin.
func ShipStateToCore(s model.ShipState) core.ShipState {
	pos, _ := geo.PositionFromPoint(s.Position)
	return core.ShipState{
		SessionID:     s.SessionID,
		Frame:         s.Frame,
		Slot:          int(s.Slot),
		X:             pos.X,
		Y:             pos.Y,
		DX:            s.DX,
		DY:            s.DY,
		Heading:       s.Heading,
		Health:        s.Health,
		Cooldown:      s.Cooldown,
		Score:         s.Score,
		ActiveBullets: int(s.ActiveBullets),
	}
}

// DesyncEventToCore converts a GORM DesyncEvent to a core.DesyncEvent.
func DesyncEventToCore(e model.DesyncEvent) core.DesyncEvent {
	var dumps dumpPaths
	if len(e.Dumps) > 0 {
		_ = json.Unmarshal(e.Dumps, &dumps)
	}
	return core.DesyncEvent{
		SessionID:    e.SessionID,
		Frame:        e.Frame,
		Expected:     e.Expected,
		Actual:       e.Actual,
		ExpectedDump: dumps.Expected,
		ActualDump:   dumps.Actual,
		DetectedAt:   e.DetectedAt,
	}
}

// FrameStatToCore converts a GORM FrameStat to a core.FrameStats.
func FrameStatToCore(s model.FrameStat) core.FrameStats {
	return core.FrameStats{
		SessionID:       s.SessionID,
		Frame:           s.Frame,
		AdvanceDuration: time.Duration(s.AdvanceMicros) * time.Microsecond,
		Rollbacks:       s.Rollbacks,
		Checksum:        s.Checksum,
		RecordedAt:      s.Time,
	}
}
