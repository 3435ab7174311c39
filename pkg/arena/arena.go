// Package arena holds the authoritative world state of a VectorWar match and
// the deterministic one-tick advance function that a rollback scheduler drives.
//
// Nothing in this package performs I/O or allocates per tick. Every value is
// stored in fixed-capacity arrays so that an Arena can be copied by value and
// serialized in a fixed field order (see package snapshot).
package arena

import (
	"errors"
	"fmt"
)

// Build constants.
const (
	MaxShips       = 4
	MaxBullets     = 30
	StartingHealth = 100
	ShipRadius     = 15
	RotateStep     = 3
	ShipThrust     = 0.06
	ShipMaxThrust  = 4.0
	BulletSpeed    = 5
	BulletCooldown = 8
	BulletDamage   = 10

	// boundsInset is applied twice during Initialize.
	boundsInset = 8
)

var (
	ErrInvalidViewport     = errors.New("viewport must be positive")
	ErrInvalidParticipants = errors.New("participants out of range")
)

// Position is a point in arena space.
type Position struct {
	X float64
	Y float64
}

// Velocity is a per-tick displacement.
type Velocity struct {
	DX float64
	DY float64
}

// Bounds is the playable rectangle, in whole pixels.
type Bounds struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

// Inflate grows the rectangle by d on every side. Negative d shrinks it.
func (b Bounds) Inflate(d int32) Bounds {
	return Bounds{
		Left:   b.Left - d,
		Top:    b.Top - d,
		Right:  b.Right + d,
		Bottom: b.Bottom + d,
	}
}

// Contains reports whether p lies inside or on the edge of b.
func (b Bounds) Contains(p Position) bool {
	return p.X >= float64(b.Left) && p.X <= float64(b.Right) &&
		p.Y >= float64(b.Top) && p.Y <= float64(b.Bottom)
}

// Bullet is one projectile slot owned by a ship.
type Bullet struct {
	Active   bool
	Position Position
	Velocity Velocity
}

// Ship is one participant's vessel. Slot i of Arena.Ships belongs to
// participant i for the whole match.
type Ship struct {
	Position Position
	Velocity Velocity
	Radius   int32
	Heading  int32
	Health   int32
	Cooldown int32
	Score    int32
	Bullets  [MaxBullets]Bullet
}

// ActiveBullets counts the bullets currently in flight.
func (s *Ship) ActiveBullets() int {
	n := 0
	for i := range s.Bullets {
		if s.Bullets[i].Active {
			n++
		}
	}
	return n
}

// Arena is the complete simulation state. It is a plain value: copying it
// yields an independent world.
type Arena struct {
	FrameNumber int32
	Bounds      Bounds
	NumShips    int32
	Ships       [MaxShips]Ship

	fallback FallbackPolicy
}

// New returns an Arena initialized for the given viewport and participant count.
func New(width, height, participants int, opts ...Option) (*Arena, error) {
	a := &Arena{}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.Initialize(width, height, participants); err != nil {
		return nil, err
	}
	return a, nil
}

// Option configures an Arena.
type Option func(*Arena)

// WithFallbackPolicy replaces the control source used for disconnected slots.
func WithFallbackPolicy(p FallbackPolicy) Option {
	return func(a *Arena) {
		a.fallback = p
	}
}

// SetFallbackPolicy swaps the control source used for disconnected slots.
// A nil policy restores the default.
func (a *Arena) SetFallbackPolicy(p FallbackPolicy) {
	a.fallback = p
}

// Initialize overwrites all state with the starting layout: ships evenly
// spaced on a circle around the viewport centre, each facing inward.
func (a *Arena) Initialize(width, height, participants int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidViewport, width, height)
	}
	if participants < 1 || participants > MaxShips {
		return fmt.Errorf("%w: %d", ErrInvalidParticipants, participants)
	}

	fallback := a.fallback
	*a = Arena{fallback: fallback}

	a.Bounds = Bounds{Right: int32(width), Bottom: int32(height)}.Inflate(-boundsInset)
	a.NumShips = int32(participants)

	r := height / 4
	for i := 0; i < participants; i++ {
		heading := i * 360 / participants
		theta := degToRad(float64(heading))
		cost, sint := cos(theta), sin(theta)

		s := &a.Ships[i]
		// Rounded products; see fire.
		s.Position.X = float64(width/2) + float64(float64(r)*cost)
		s.Position.Y = float64(height/2) + float64(float64(r)*sint)
		s.Heading = int32((heading + 180) % 360)
		s.Health = StartingHealth
		s.Radius = ShipRadius
	}

	a.Bounds = a.Bounds.Inflate(-boundsInset)
	return nil
}

// Clone returns an independent copy of the state. The fallback policy is shared.
func (a *Arena) Clone() *Arena {
	c := *a
	return &c
}

// Equal reports whether two arenas hold identical simulation state.
func (a *Arena) Equal(b *Arena) bool {
	return a.FrameNumber == b.FrameNumber &&
		a.Bounds == b.Bounds &&
		a.NumShips == b.NumShips &&
		a.Ships == b.Ships
}

// CopyStateFrom overwrites the simulation state with src's, leaving the
// receiver's fallback policy in place.
func (a *Arena) CopyStateFrom(src *Arena) {
	a.FrameNumber = src.FrameNumber
	a.Bounds = src.Bounds
	a.NumShips = src.NumShips
	a.Ships = src.Ships
}
