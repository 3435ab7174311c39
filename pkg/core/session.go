// pkg/core/session.go
package core

import "time"

// Session describes one simulated match as archived by a storage backend.
type Session struct {
	ID           uint      `json:"id"`
	Label        string    `json:"label"`
	Participants int       `json:"participants"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Bounds       Rect      `json:"bounds"`
	StartedAt    time.Time `json:"startedAt"`
	EndedAt      time.Time `json:"endedAt,omitzero"`
}

// Rect is the arena's playable rectangle.
type Rect struct {
	Left   int32 `json:"left"`
	Top    int32 `json:"top"`
	Right  int32 `json:"right"`
	Bottom int32 `json:"bottom"`
}

// UploadMetadata describes an exported session file sent to the report server.
type UploadMetadata struct {
	Label        string
	Participants int
	EndFrame     int32
	Duration     float64 // seconds
}
