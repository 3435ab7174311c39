package arena

// FallbackPolicy produces controls for a ship whose participant is
// disconnected. Implementations must be deterministic functions of the ship
// state; they run inside Advance and are replayed during rollback.
type FallbackPolicy interface {
	Control(s *Ship) Control
}

// FallbackFunc adapts a plain function to FallbackPolicy.
type FallbackFunc func(s *Ship) Control

func (f FallbackFunc) Control(s *Ship) Control { return f(s) }

// TurningPolicy spins the ship in place without firing. A negative Step turns
// counterclockwise.
type TurningPolicy struct {
	Step int32
}

func (p TurningPolicy) Control(s *Ship) Control {
	return Control{Heading: float64(wrapHeading(s.Heading + p.Step))}
}

// DefaultFallback turns a disconnected ship 5 degrees per tick.
var DefaultFallback FallbackPolicy = TurningPolicy{Step: 5}
