// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vectorwar/arena/internal/geo"
	"github.com/vectorwar/arena/internal/util"
	"github.com/vectorwar/arena/pkg/arena"
	"github.com/vectorwar/arena/pkg/core"
)

// SessionExport is the root JSON structure
type SessionExport struct {
	Session    core.Session       `json:"session"`
	EndFrame   int32              `json:"endFrame"`
	Ships      []ShipJSON         `json:"ships"`
	Snapshots  []SnapshotJSON     `json:"snapshots"`
	Desyncs    []core.DesyncEvent `json:"desyncs"`
	FrameStats []FrameStatsJSON   `json:"frameStats"`
}

// ShipJSON is one slot's history
type ShipJSON struct {
	Slot        int     `json:"slot"`
	FinalScore  int32   `json:"finalScore"`
	FinalHealth int32   `json:"finalHealth"`
	Distance    float64 `json:"distance"`
	// Track rows are [frame, x, y, heading, health]
	Track [][]any `json:"track"`
}

// SnapshotJSON is an archived image; Data is base64 in JSON
type SnapshotJSON struct {
	Frame    int32  `json:"frame"`
	Checksum string `json:"checksum"`
	Version  uint16 `json:"version"`
	Size     int    `json:"size"`
	Data     []byte `json:"data"`
}

// FrameStatsJSON flattens the advance duration to microseconds
type FrameStatsJSON struct {
	Frame         int32  `json:"frame"`
	AdvanceMicros int64  `json:"advanceMicros"`
	Rollbacks     int    `json:"rollbacks"`
	Checksum      string `json:"checksum"`
}

// exportJSON writes the session data to a JSON file, gzipped if configured
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	label := sanitizeLabel(b.session.Label)
	timestamp := b.session.StartedAt.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", label, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", label, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() SessionExport {
	export := SessionExport{
		Session:    *b.session,
		EndFrame:   b.lastFrame,
		Ships:      make([]ShipJSON, 0, len(b.ships)),
		Snapshots:  make([]SnapshotJSON, 0, len(b.snapshots)),
		Desyncs:    append([]core.DesyncEvent{}, b.desyncs...),
		FrameStats: make([]FrameStatsJSON, 0, len(b.frameStats)),
	}

	slots := make([]int, 0, len(b.ships))
	for slot := range b.ships {
		slots = append(slots, slot)
	}
	slices.Sort(slots)

	for _, slot := range slots {
		record := b.ships[slot]
		ship := ShipJSON{
			Slot:  slot,
			Track: make([][]any, 0, len(record.States)),
		}

		var track geo.Track
		for _, s := range record.States {
			track.Add(arena.Position{X: s.X, Y: s.Y})
			ship.Track = append(ship.Track, []any{s.Frame, s.X, s.Y, s.Heading, s.Health})
			ship.FinalScore = s.Score
			ship.FinalHealth = s.Health
		}
		ship.Distance = track.Length()

		export.Ships = append(export.Ships, ship)
	}

	for _, s := range b.snapshots {
		export.Snapshots = append(export.Snapshots, SnapshotJSON{
			Frame:    s.Frame,
			Checksum: util.FormatChecksum(s.Checksum),
			Version:  s.Version,
			Size:     s.Size,
			Data:     s.Data,
		})
	}

	for _, f := range b.frameStats {
		export.FrameStats = append(export.FrameStats, FrameStatsJSON{
			Frame:         f.Frame,
			AdvanceMicros: f.AdvanceDuration.Microseconds(),
			Rollbacks:     f.Rollbacks,
			Checksum:      util.FormatChecksum(f.Checksum),
		})
	}

	return export
}

// sanitizeLabel makes a session label safe for use in a file name
func sanitizeLabel(label string) string {
	if label == "" {
		return "session"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '/', '\\', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, label)
}

// ReadExport loads a file written by EndSession, transparently handling gzip
func ReadExport(path string) (*SessionExport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	var export SessionExport
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		err = json.NewDecoder(gz).Decode(&export)
		if err != nil {
			return nil, fmt.Errorf("failed to decode export: %w", err)
		}
		return &export, nil
	}

	if err := json.NewDecoder(f).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode export: %w", err)
	}
	return &export, nil
}

func writeJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
