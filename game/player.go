package game

import "math"

const (
	PlayerSize = 2.0

	// RemoteLerpFactor is the fraction of the remaining distance a remote
	// entity covers per blend.
	RemoteLerpFactor = 0.2
)

type Side int

const (
	SideLocal Side = iota
	SideRemote
)

func (s Side) String() string {
	if s == SideLocal {
		return "local"
	}
	return "remote"
}

type Player struct {
	Position      Vec3
	Yaw           float64
	Velocity      Vec3
	Speed         float64
	CanDoubleJump bool

	Side Side
	Name string

	target    Vec3
	hasTarget bool
}

// Forward is the unit heading of the player on the XZ plane.
func (p *Player) Forward() Vec3 {
	return Vec3{X: math.Sin(p.Yaw), Z: math.Cos(p.Yaw)}
}

// Place puts the player at pos facing yaw, at rest, and drops any
// interpolation target.
func (p *Player) Place(pos Vec3, yaw float64) {
	p.Position = pos
	p.Yaw = yaw
	p.Velocity = Vec3{}
	p.Speed = 0
	p.CanDoubleJump = false
	p.target = pos
	p.hasTarget = false
}

// SetTarget records a remote snapshot: the target is exact, yaw snaps and
// the displayed position takes one blend step.
func (p *Player) SetTarget(pos Vec3, yaw float64) {
	p.target = pos
	p.hasTarget = true
	p.Yaw = yaw
	p.Position = p.Position.Lerp(pos, RemoteLerpFactor)
}

func (p *Player) Target() (Vec3, bool) {
	return p.target, p.hasTarget
}

// Interpolate takes one per-frame blend step towards the last target.
func (p *Player) Interpolate() {
	if !p.hasTarget {
		return
	}
	p.Position = p.Position.Lerp(p.target, RemoteLerpFactor)
}
