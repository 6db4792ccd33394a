package game

import "math"

const (
	Gravity          = -30.0
	JumpForce        = 15.0
	DoubleJumpFactor = 0.8
	DoubleJumpBoost  = 5.0
	Acceleration     = 30.0
	TurnSpeed        = 3.0
	Friction         = 10.0
	MaxSpeed         = 20.0

	MaxFrameDelta        = 0.1
	PhysicsSubsteps      = 5
	MaxResolveIterations = 5
	ArenaHalfExtent      = 100.0

	groundTolerance   = 0.2
	landingTolerance  = 0.2
	roofSnapTolerance = 0.3
)

type Input struct {
	Forward  bool
	Backward bool
	Left     bool
	Right    bool
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ClampDelta limits a frame delta so a stalled frame does not tunnel
// through geometry.
func ClampDelta(delta float64) float64 {
	if delta < 0 {
		return 0
	}
	return math.Min(delta, MaxFrameDelta)
}

// Step advances the locally controlled player by one frame and returns the
// delta that was actually simulated.
func Step(p *Player, in Input, delta float64, w World) float64 {
	delta = ClampDelta(delta)

	if in.Left {
		p.Yaw += TurnSpeed * delta
	}
	if in.Right {
		p.Yaw -= TurnSpeed * delta
	}

	accel := 0.0
	if in.Forward {
		accel = Acceleration
	} else if in.Backward {
		accel = -Acceleration
	}
	p.Speed += accel * delta

	if !in.Forward && !in.Backward {
		if p.Speed > 0 {
			p.Speed = math.Max(p.Speed-Friction*delta, 0)
		} else if p.Speed < 0 {
			p.Speed = math.Min(p.Speed+Friction*delta, 0)
		}
	}
	p.Speed = clamp(p.Speed, -MaxSpeed, MaxSpeed)

	p.Velocity.X = math.Sin(p.Yaw) * p.Speed
	p.Velocity.Z = math.Cos(p.Yaw) * p.Speed

	dt := delta / PhysicsSubsteps
	for i := 0; i < PhysicsSubsteps; i++ {
		stepVertical(p, dt, w)
	}

	next := p.Position
	next.X = clamp(next.X+p.Velocity.X*delta, -ArenaHalfExtent, ArenaHalfExtent)
	next.Z = clamp(next.Z+p.Velocity.Z*delta, -ArenaHalfExtent, ArenaHalfExtent)

	if w.IntersectsAny(BoxAround(next)) {
		p.Speed = 0
		p.Velocity.X = 0
		p.Velocity.Z = 0
	} else {
		p.Position.X = next.X
		p.Position.Z = next.Z
	}

	return delta
}

func stepVertical(p *Player, dt float64, w World) {
	half := PlayerSize / 2

	p.Velocity.Y += Gravity * dt
	p.Position.Y += p.Velocity.Y * dt

	groundY := w.HeightAt(p.Position.X, p.Position.Z) + half
	if p.Position.Y < groundY {
		p.Position.Y = groundY
		p.Velocity.Y = 0
		p.CanDoubleJump = true
	}

	resolveCollisions(p, w.Solids())
	snapToRoofs(p, w.Roofs())
}

func resolveCollisions(p *Player, solids []AABB) {
	half := PlayerSize / 2
	box := BoxOf(p)

	for iter := 0; iter < MaxResolveIterations; iter++ {
		collided := false
		for _, solid := range solids {
			if !box.Intersects(solid) {
				continue
			}
			collided = true

			overlapY := solid.Max.Y - (p.Position.Y - half)
			if overlapY >= 0 && overlapY < landingTolerance && p.Velocity.Y <= 0 {
				p.Position.Y = solid.Max.Y + half
				p.Velocity.Y = 0
				p.CanDoubleJump = true
			} else {
				overlapX := math.Min(box.Max.X, solid.Max.X) - math.Max(box.Min.X, solid.Min.X)
				overlapZ := math.Min(box.Max.Z, solid.Max.Z) - math.Max(box.Min.Z, solid.Min.Z)
				centre := solid.Center()
				if overlapX < overlapZ {
					if p.Position.X < centre.X {
						p.Position.X -= overlapX
					} else {
						p.Position.X += overlapX
					}
					p.Velocity.X = 0
				} else {
					if p.Position.Z < centre.Z {
						p.Position.Z -= overlapZ
					} else {
						p.Position.Z += overlapZ
					}
					p.Velocity.Z = 0
				}
			}
			box = BoxOf(p)
		}
		if !collided {
			return
		}
	}
}

func snapToRoofs(p *Player, roofs []AABB) {
	half := PlayerSize / 2
	for _, roof := range roofs {
		if !overlapsXZ(BoxOf(p), roof) {
			continue
		}
		gap := roof.Max.Y - (p.Position.Y - half)
		if gap > 0 && gap < roofSnapTolerance {
			p.Position.Y = roof.Max.Y + half
			p.Velocity.Y = 0
			p.CanDoubleJump = true
		}
	}
}

// IsGrounded reports whether the player rests on terrain, a platform or the
// top face of a building and is not moving upwards.
func IsGrounded(p *Player, w World) bool {
	if p.Velocity.Y > 0 {
		return false
	}

	box := BoxOf(p)
	groundY := w.HeightAt(p.Position.X, p.Position.Z)
	if math.Abs(box.Min.Y-groundY) < groundTolerance {
		return true
	}
	for _, platform := range w.Platforms() {
		if box.Intersects(platform) {
			return true
		}
	}
	for _, boxes := range [][]AABB{w.Solids(), w.Roofs()} {
		for _, top := range boxes {
			if overlapsXZ(box, top) && math.Abs(box.Min.Y-top.Max.Y) < groundTolerance {
				return true
			}
		}
	}
	return false
}

func overlapsXZ(a, b AABB) bool {
	return a.Max.X > b.Min.X && a.Min.X < b.Max.X &&
		a.Max.Z > b.Min.Z && a.Min.Z < b.Max.Z
}

// Jump performs a grounded jump or, once per airtime, a double jump with a
// forward boost. It reports whether a jump happened.
func Jump(p *Player, w World) bool {
	if IsGrounded(p, w) {
		p.Velocity.Y = JumpForce
		p.CanDoubleJump = true
		return true
	}
	if p.CanDoubleJump {
		p.Velocity.Y = JumpForce * DoubleJumpFactor
		p.Velocity.X += math.Sin(p.Yaw) * DoubleJumpBoost
		p.Velocity.Z += math.Cos(p.Yaw) * DoubleJumpBoost
		p.CanDoubleJump = false
		return true
	}
	return false
}
