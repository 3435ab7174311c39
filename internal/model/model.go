package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&SessionRecord{},
	&Snapshot{},
	&ShipState{},
	&ShipTrack{},
	&DesyncEvent{},
	&FrameStat{},
}

////////////////////////
// SESSION MODELS
////////////////////////

// Bounds is the playable rectangle, embedded into SessionRecord
type Bounds struct {
	Left   int32 `json:"left"`
	Top    int32 `json:"top"`
	Right  int32 `json:"right"`
	Bottom int32 `json:"bottom"`
}

// SessionRecord is one simulated match
type SessionRecord struct {
	ID           uint         `json:"id" gorm:"primarykey;autoIncrement;"`
	Label        string       `json:"label" gorm:"size:127;index:idx_session_label"`
	Participants int          `json:"participants"`
	Width        int          `json:"width"`
	Height       int          `json:"height"`
	Bounds       Bounds       `json:"bounds" gorm:"embedded;embeddedPrefix:bounds_"`
	StartedAt    time.Time    `json:"startedAt"`
	EndedAt      sql.NullTime `json:"endedAt" gorm:"default:NULL"`
}

func (*SessionRecord) TableName() string {
	return "sessions"
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Snapshot is an archived state image, stored byte-for-byte as produced by
// the snapshot codec
type Snapshot struct {
	ID         uint          `json:"id" gorm:"primarykey;autoIncrement;"`
	CapturedAt time.Time     `json:"capturedAt"`
	SessionID  uint          `json:"sessionId" gorm:"index:idx_snapshot_session_id"`
	Session    SessionRecord `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Frame      int32         `json:"frame" gorm:"index:idx_snapshot_frame"`
	Checksum   uint32        `json:"checksum"`
	Size       int           `json:"size"`
	Version    uint16        `json:"version"`
	Data       []byte        `json:"-"`
}

func (*Snapshot) TableName() string {
	return "snapshots"
}

// ShipState is one ship's state at a frame
type ShipState struct {
	ID            uint          `json:"id" gorm:"primarykey;autoIncrement;"`
	Time          time.Time     `json:"time"`
	SessionID     uint          `json:"sessionId" gorm:"index:idx_shipstate_session_id"`
	Session       SessionRecord `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Frame         int32         `json:"frame" gorm:"index:idx_shipstate_frame"`
	Slot          uint8         `json:"slot" gorm:"index:idx_shipstate_slot"`
	Position      geom.Point    `json:"position"` // screen-space pixels
	DX            float64       `json:"dx"`
	DY            float64       `json:"dy"`
	Heading       int32         `json:"heading"`
	Health        int32         `json:"health"`
	Cooldown      int32         `json:"cooldown"`
	Score         int32         `json:"score"`
	ActiveBullets uint8         `json:"activeBullets"`
}

func (*ShipState) TableName() string {
	return "ship_states"
}

// ShipTrack is the path a ship travelled over a session, written when the
// session ends
type ShipTrack struct {
	ID        uint            `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint            `json:"sessionId" gorm:"index:idx_shiptrack_session_id"`
	Session   SessionRecord   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Slot      uint8           `json:"slot"`
	Path      geom.LineString `json:"path"`
	Length    float64         `json:"length"`
	Vertices  int             `json:"vertices"`
}

func (*ShipTrack) TableName() string {
	return "ship_tracks"
}

// DesyncEvent records two diverging checksums for the same frame
type DesyncEvent struct {
	ID         uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	DetectedAt time.Time      `json:"detectedAt"`
	SessionID  uint           `json:"sessionId" gorm:"index:idx_desync_session_id"`
	Session    SessionRecord  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Frame      int32          `json:"frame"`
	Expected   uint32         `json:"expected"`
	Actual     uint32         `json:"actual"`
	Dumps      datatypes.JSON `json:"dumps" gorm:"default:'{}'"` // {"expected": path, "actual": path}
}

func (*DesyncEvent) TableName() string {
	return "desync_events"
}

// FrameStat is per-tick performance data
type FrameStat struct {
	Time          time.Time     `json:"time" gorm:"index:idx_framestat_time"`
	SessionID     uint          `json:"sessionId" gorm:"index:idx_framestat_session_id"`
	Session       SessionRecord `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Frame         int32         `json:"frame"`
	AdvanceMicros int64         `json:"advanceMicros"`
	Rollbacks     int           `json:"rollbacks"`
	Checksum      uint32        `json:"checksum"`
}

func (*FrameStat) TableName() string {
	return "frame_stats"
}
