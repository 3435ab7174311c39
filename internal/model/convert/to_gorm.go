// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"

	"github.com/vectorwar/arena/internal/geo"
	"github.com/vectorwar/arena/internal/model"
	"github.com/vectorwar/arena/pkg/arena"
	"github.com/vectorwar/arena/pkg/core"
	"gorm.io/datatypes"
)

// dumpPaths is the JSON shape stored in DesyncEvent.Dumps
type dumpPaths struct {
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// CoreToSession converts a core.Session to a GORM model.SessionRecord.
func CoreToSession(s core.Session) model.SessionRecord {
	rec := model.SessionRecord{
		ID:           s.ID,
		Label:        s.Label,
		Participants: s.Participants,
		Width:        s.Width,
		Height:       s.Height,
		Bounds: model.Bounds{
			Left:   s.Bounds.Left,
			Top:    s.Bounds.Top,
			Right:  s.Bounds.Right,
			Bottom: s.Bounds.Bottom,
		},
		StartedAt: s.StartedAt,
	}
	if !s.EndedAt.IsZero() {
		rec.EndedAt = sql.NullTime{Time: s.EndedAt, Valid: true}
	}
	return rec
}

// CoreToSnapshot converts a core.SnapshotRecord to a GORM model.Snapshot.
func CoreToSnapshot(s core.SnapshotRecord) model.Snapshot {
	return model.Snapshot{
		CapturedAt: s.CapturedAt,
		SessionID:  s.SessionID,
		Frame:      s.Frame,
		Checksum:   s.Checksum,
		Size:       s.Size,
		Version:    s.Version,
		Data:       s.Data,
	}
}

// CoreToShipState converts a core.ShipState to a GORM model.ShipState.
func CoreToShipState(s core.ShipState) model.ShipState {
	return model.ShipState{
		SessionID:     s.SessionID,
		Frame:         s.Frame,
		Slot:          uint8(s.Slot),
		Position:      geo.PointFromPosition(arena.Position{X: s.X, Y: s.Y}),
		DX:            s.DX,
		DY:            s.DY,
		Heading:       s.Heading,
		Health:        s.Health,
		Cooldown:      s.Cooldown,
		Score:         s.Score,
		ActiveBullets: uint8(s.ActiveBullets),
	}
}

// CoreToDesyncEvent converts a core.DesyncEvent to a GORM model.DesyncEvent.
func CoreToDesyncEvent(e core.DesyncEvent) model.DesyncEvent {
	dumps, _ := json.Marshal(dumpPaths{Expected: e.ExpectedDump, Actual: e.ActualDump})
	return model.DesyncEvent{
		DetectedAt: e.DetectedAt,
		SessionID:  e.SessionID,
		Frame:      e.Frame,
		Expected:   e.Expected,
		Actual:     e.Actual,
		Dumps:      datatypes.JSON(dumps),
	}
}

// CoreToFrameStat converts a core.FrameStats to a GORM model.FrameStat.
func CoreToFrameStat(s core.FrameStats) model.FrameStat {
	return model.FrameStat{
		Time:          s.RecordedAt,
		SessionID:     s.SessionID,
		Frame:         s.Frame,
		AdvanceMicros: s.AdvanceDuration.Microseconds(),
		Rollbacks:     s.Rollbacks,
		Checksum:      s.Checksum,
	}
}

// TrackToShipTrack converts an accumulated ship path to a GORM model.ShipTrack.
func TrackToShipTrack(sessionID uint, slot int, t *geo.Track) model.ShipTrack {
	return model.ShipTrack{
		SessionID: sessionID,
		Slot:      uint8(slot),
		Path:      t.LineString(),
		Length:    t.Length(),
		Vertices:  t.Len(),
	}
}
