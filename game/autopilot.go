package game

import (
	"math"
	"math/rand/v2"
)

const (
	autopilotYawDeadZone = 0.05
	autopilotFleeMargin  = 15.0
	autopilotStuckSpeed  = 1.0
)

// Autopilot produces inputs for a headless player: the tagger chases, the
// runner flees, and a stuck player jumps.
type Autopilot struct {
	rng *rand.Rand
}

func NewAutopilot(rng *rand.Rand) *Autopilot {
	return &Autopilot{rng: rng}
}

func (a *Autopilot) Decide(self *Player, opponent Vec3, chase bool) (in Input, jump bool) {
	desired := FacingYaw(self.Position, opponent)
	if !chase {
		desired += math.Pi
		limit := ArenaHalfExtent - autopilotFleeMargin
		if math.Abs(self.Position.X) > limit || math.Abs(self.Position.Z) > limit {
			desired = FacingYaw(self.Position, Vec3{})
		}
		// Wobble a little so the runner is not a straight line target.
		desired += (a.rng.Float64() - 0.5) * 0.6
	}

	diff := normalizeAngle(desired - self.Yaw)
	switch {
	case diff > autopilotYawDeadZone:
		in.Left = true
	case diff < -autopilotYawDeadZone:
		in.Right = true
	}
	in.Forward = true

	jump = math.Abs(self.Speed) < autopilotStuckSpeed && a.rng.IntN(30) == 0
	return in, jump
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
