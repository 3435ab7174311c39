package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vectorwar/arena/pkg/arena"
	geom "github.com/peterstace/simplefeatures/geom"
)

// ARENA GEOMETRY
// Arena coordinates are screen-space pixels with the origin at the top-left
// corner and y growing downward. They are stored untransformed as planar XY
// points so SQLite and Postgres read back the same WKB.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// PointFromPosition converts a ship or bullet position to a geometry point.
func PointFromPosition(p arena.Position) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.X, Y: p.Y},
		Type: geom.DimXY,
	})
}

// PositionFromPoint is the inverse of PointFromPosition. An empty point
// yields ErrInvalidCoordinates.
func PositionFromPoint(pt geom.Point) (arena.Position, error) {
	c, ok := pt.Coordinates()
	if !ok {
		return arena.Position{}, ErrInvalidCoordinates
	}
	return arena.Position{X: c.X, Y: c.Y}, nil
}

// PositionFromString parses "x,y" into a position.
func PositionFromString(coords string) (arena.Position, error) {
	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return arena.Position{}, ErrInvalidCoordinates
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return arena.Position{}, ErrInvalidCoordinates
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return arena.Position{}, ErrInvalidCoordinates
	}
	return arena.Position{X: x, Y: y}, nil
}

// Track accumulates the positions a single ship visits.
type Track struct {
	coords []float64
}

// Add appends a position. Consecutive duplicates are skipped so a parked
// ship does not inflate the line.
func (t *Track) Add(p arena.Position) {
	if n := len(t.coords); n >= 2 && t.coords[n-2] == p.X && t.coords[n-1] == p.Y {
		return
	}
	t.coords = append(t.coords, p.X, p.Y)
}

// Len returns the number of stored vertices.
func (t *Track) Len() int {
	return len(t.coords) / 2
}

// LineString returns the track geometry. Tracks with fewer than two
// vertices return an empty line string.
func (t *Track) LineString() geom.LineString {
	if t.Len() < 2 {
		return geom.LineString{}
	}
	seq := geom.NewSequence(append([]float64(nil), t.coords...), geom.DimXY)
	return geom.NewLineString(seq)
}

// Length returns the distance travelled along the track in pixels.
func (t *Track) Length() float64 {
	return t.LineString().Length()
}

// ParseTrack parses a JSON array of coordinates into a geom.LineString.
// Input format: "[[x1,y1],[x2,y2],...]"
func ParseTrack(input string) (geom.LineString, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return geom.LineString{}, fmt.Errorf("failed to parse track JSON: %w", err)
	}

	if len(coords) < 2 {
		return geom.LineString{}, fmt.Errorf("track must have at least 2 points, got %d", len(coords))
	}

	var t Track
	for i, coord := range coords {
		if len(coord) < 2 {
			return geom.LineString{}, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		t.coords = append(t.coords, coord[0], coord[1])
	}

	return t.LineString(), nil
}
