package arena

import "math"

// Advance steps the world exactly one tick. inputs[i] is participant i's raw
// bitmask; missing entries count as no input. Bit i of disconnectMask hands
// ship i to the fallback policy for this tick.
func (a *Arena) Advance(inputs []Input, disconnectMask uint32) {
	a.FrameNumber++

	fallback := a.fallback
	if fallback == nil {
		fallback = DefaultFallback
	}

	for i := 0; i < int(a.NumShips); i++ {
		s := &a.Ships[i]

		var c Control
		if disconnectMask&(1<<uint(i)) != 0 {
			c = fallback.Control(s)
		} else {
			var in Input
			if i < len(inputs) {
				in = inputs[i]
			}
			c = Decode(s, in)
		}

		a.moveShip(i, c)

		if s.Cooldown > 0 {
			s.Cooldown--
		}
	}
}

func (a *Arena) moveShip(index int, c Control) {
	s := &a.Ships[index]

	s.Heading = wrapHeading(int32(c.Heading))

	if s.Cooldown == 0 && c.Fire {
		a.fire(s)
	}

	if c.Thrust != 0 {
		theta := degToRad(c.Heading)
		s.Velocity.DX += float64(c.Thrust * cos(theta))
		s.Velocity.DY += float64(c.Thrust * sin(theta))

		mag := math.Sqrt(float64(s.Velocity.DX*s.Velocity.DX) + float64(s.Velocity.DY*s.Velocity.DY))
		if mag > ShipMaxThrust {
			s.Velocity.DX = float64(s.Velocity.DX*ShipMaxThrust) / mag
			s.Velocity.DY = float64(s.Velocity.DY*ShipMaxThrust) / mag
		}
	}

	s.Position.X += s.Velocity.DX
	s.Position.Y += s.Velocity.DY

	r := float64(s.Radius)
	if s.Position.X-r < float64(a.Bounds.Left) || s.Position.X+r > float64(a.Bounds.Right) {
		s.Velocity.DX *= -1
		s.Position.X += s.Velocity.DX * 2
	}
	if s.Position.Y-r < float64(a.Bounds.Top) || s.Position.Y+r > float64(a.Bounds.Bottom) {
		s.Velocity.DY *= -1
		s.Position.Y += s.Velocity.DY * 2
	}

	for i := range s.Bullets {
		b := &s.Bullets[i]
		if !b.Active {
			continue
		}
		b.Position.X += b.Velocity.DX
		b.Position.Y += b.Velocity.DY
		if !a.Bounds.Contains(b.Position) {
			b.Active = false
			continue
		}
		// The owner is scanned too: a ship can be hit by its own bullet.
		for j := 0; j < int(a.NumShips); j++ {
			target := &a.Ships[j]
			if distance(b.Position, target.Position) < float64(target.Radius) {
				s.Score++
				target.Health -= BulletDamage
				b.Active = false
				break
			}
		}
	}
}

// fire spawns a bullet in the first free slot. When all slots are in use the
// shot is dropped and the cooldown is left untouched.
func (a *Arena) fire(s *Ship) {
	for i := range s.Bullets {
		b := &s.Bullets[i]
		if b.Active {
			continue
		}
		theta := degToRad(float64(s.Heading))
		cost, sint := cos(theta), sin(theta)

		b.Active = true
		// Converting each product forbids fused multiply-add, keeping results
		// identical across architectures.
		b.Position.X = s.Position.X + float64(float64(s.Radius)*cost)
		b.Position.Y = s.Position.Y + float64(float64(s.Radius)*sint)
		b.Velocity.DX = s.Velocity.DX + float64(BulletSpeed*cost)
		b.Velocity.DY = s.Velocity.DY + float64(BulletSpeed*sint)
		s.Cooldown = BulletCooldown
		return
	}
}
