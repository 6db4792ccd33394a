package session

import (
	"math/rand/v2"
	"peertag/game"
	"peertag/protocol"
	"time"
)

// AutopilotController drives the local player with game.Autopilot and asks
// for a restart a moment after each tag, so two headless clients keep
// playing rounds.
type AutopilotController struct {
	pilot        *game.Autopilot
	restartAfter time.Duration
	endedAt      time.Time
}

func NewAutopilotController(rng *rand.Rand, restartAfter time.Duration) *AutopilotController {
	return &AutopilotController{
		pilot:        game.NewAutopilot(rng),
		restartAfter: restartAfter,
	}
}

func (c *AutopilotController) Next(s *Session) (game.Input, bool) {
	switch s.Phase() {
	case PhaseEnded:
		now := s.clock.Now()
		if c.endedAt.IsZero() {
			c.endedAt = now
		}
		if local, _ := s.RestartReady(); !local && now.Sub(c.endedAt) >= c.restartAfter {
			_ = s.RequestRestart()
		}
		return game.Input{}, false
	case PhasePlaying:
		c.endedAt = time.Time{}
		local, remote := s.LocalPlayer(), s.RemotePlayer()
		return c.pilot.Decide(local, remote.Position, s.Team() == protocol.TeamTagger)
	default:
		c.endedAt = time.Time{}
		return game.Input{}, false
	}
}
