package arena

import "strings"

// Input is the raw per-participant control bitmask for one tick.
type Input uint8

const (
	InputThrust Input = 1 << iota
	InputBrake
	InputRotateLeft
	InputRotateRight
	InputFire
	// InputBomb is reserved and ignored by the simulation.
	InputBomb
)

var inputNames = []struct {
	bit  Input
	name string
}{
	{InputThrust, "thrust"},
	{InputBrake, "brake"},
	{InputRotateLeft, "left"},
	{InputRotateRight, "right"},
	{InputFire, "fire"},
	{InputBomb, "bomb"},
}

// Has reports whether every bit of flag is set.
func (in Input) Has(flag Input) bool {
	return in&flag == flag
}

func (in Input) String() string {
	if in == 0 {
		return "none"
	}
	var parts []string
	for _, n := range inputNames {
		if in.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// InputByName maps a flag name as produced by Input.String to its bit.
func InputByName(name string) (Input, bool) {
	for _, n := range inputNames {
		if n.name == name {
			return n.bit, true
		}
	}
	return 0, false
}

// Control is the decoded intent fed to a ship update.
type Control struct {
	Heading float64
	Thrust  float64
	Fire    bool
}

// Decode turns a raw bitmask into a control triple relative to the ship's
// current heading. Rotate-right wins over rotate-left; thrust wins over brake.
func Decode(s *Ship, in Input) Control {
	var c Control
	switch {
	case in.Has(InputRotateRight):
		c.Heading = float64((s.Heading + RotateStep) % 360)
	case in.Has(InputRotateLeft):
		c.Heading = float64((s.Heading - RotateStep + 360) % 360)
	default:
		c.Heading = float64(s.Heading)
	}

	switch {
	case in.Has(InputThrust):
		c.Thrust = ShipThrust
	case in.Has(InputBrake):
		c.Thrust = -ShipThrust
	}

	c.Fire = in.Has(InputFire)
	return c
}
