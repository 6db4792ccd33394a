package session

import (
	"go.uber.org/zap"
	"math"
	"peertag/game"
	"peertag/protocol"
	"time"
)

const EndMessage = "TAG! Press R to restart if you agree."

// match is the reconciled state of the current round and the scores that
// outlive it.
type match struct {
	phase Phase
	ended bool

	localScore  int
	remoteScore int

	bonusTimer float64
	lastFrame  time.Time
}

// localEntity is the entity this peer simulates: the tagger coloured one
// when we are tagger.
func (s *Session) localEntity() Entity {
	if s.team == protocol.TeamTagger {
		return EntityA
	}
	return EntityB
}

func (s *Session) remoteEntity() Entity {
	if s.localEntity() == EntityA {
		return EntityB
	}
	return EntityA
}

func (s *Session) Entity(e Entity) *game.Player {
	return s.entities[e]
}

// localPlayer is nil until a team is assigned.
func (s *Session) localPlayer() *game.Player {
	if !s.assigned() {
		return nil
	}
	return s.entities[s.localEntity()]
}

func (s *Session) remotePlayer() *game.Player {
	if !s.assigned() {
		return nil
	}
	return s.entities[s.remoteEntity()]
}

func (s *Session) LocalPlayer() *game.Player  { return s.localPlayer() }
func (s *Session) RemotePlayer() *game.Player { return s.remotePlayer() }

// mapEntities assigns sides and names after the team changed.
func (s *Session) mapEntities() {
	local, remote := s.localPlayer(), s.remotePlayer()

	local.Side = game.SideLocal
	local.Name = s.username
	remote.Side = game.SideRemote
	remote.Name = s.remoteUsername

	s.display.SetDisplayName(s.localEntity(), s.username)
	s.display.SetDisplayName(s.remoteEntity(), s.remoteUsername)
}

// respawn places both entities from the shared seed so both peers agree.
func (s *Session) respawn() {
	res := game.Spawn(game.NewSpawnRand(s.seed), s.cfg.World)
	if res.Fallback {
		s.logger.Warn("Could not find a valid spawn location; using last computed positions",
			zap.Int("attempts", res.Attempts),
		)
	}

	s.entities[EntityA].Place(res.Tagger.Position, res.Tagger.Yaw)
	s.entities[EntityB].Place(res.Runner.Position, res.Runner.Yaw)
	s.publishPoses()
}

func (s *Session) publishPoses() {
	for _, e := range []Entity{EntityA, EntityB} {
		p := s.entities[e]
		s.display.SetEntityPose(e, p.Position, p.Yaw)
	}
}

// simulate runs one playing frame: local physics, runner bonus, movement
// broadcast and tag detection. No movement is produced while the link is
// down; the current pose goes out once the channel reopens.
func (s *Session) simulate(in game.Input, delta float64) {
	local := s.localPlayer()
	delta = game.Step(local, in, delta, s.cfg.World)

	if s.team == protocol.TeamRunner {
		s.accrueBonus(local, delta)
	}

	if s.link.open {
		s.sendPose()
	}

	s.checkForTag()
}

func (s *Session) sendPose() {
	local := s.localPlayer()
	s.send(&protocol.Movement{
		X:        local.Position.X,
		Y:        local.Position.Y,
		Z:        local.Position.Z,
		Rotation: local.Yaw,
	})
}

func (s *Session) accrueBonus(local *game.Player, delta float64) {
	if math.Abs(local.Speed) < s.cfg.BonusSpeed {
		s.match.bonusTimer = 0
		return
	}

	s.match.bonusTimer += delta
	if s.match.bonusTimer < s.cfg.BonusHold.Seconds() {
		return
	}

	s.match.bonusTimer = 0
	s.match.localScore++
	s.updateScoreboard()
	s.display.ShowBonus()
	s.send(&protocol.Bonus{})
	s.logger.Info("Runner bonus earned", zap.Int("score", s.match.localScore))
}

func (s *Session) checkForTag() {
	if s.match.ended {
		return
	}
	if game.BoxOf(s.localPlayer()).Intersects(game.BoxOf(s.remotePlayer())) {
		s.logger.Info("Tag detected locally")
		s.send(&protocol.Tag{})
		s.endRound()
	}
}

// endRound ends the round once; later calls do nothing.
func (s *Session) endRound() {
	if s.match.ended {
		return
	}
	s.match.ended = true
	s.match.phase = PhaseEnded
	s.stopCountdown()

	if s.team == protocol.TeamTagger {
		s.match.localScore++
	} else {
		s.match.remoteScore++
	}
	s.updateScoreboard()
	s.display.ShowEndMessage(EndMessage)
	s.logger.Info("Round ended",
		zap.Int("localScore", s.match.localScore),
		zap.Int("remoteScore", s.match.remoteScore),
	)
}

func (s *Session) onTag() {
	if !s.match.phase.roundStarted() {
		s.logger.Debug("Tag outside of a round ignored", zap.Stringer("phase", s.match.phase))
		return
	}
	s.logger.Info("Tag received")
	s.endRound()
}

func (s *Session) onBonus() {
	switch s.team {
	case protocol.TeamTagger:
		s.match.remoteScore++
		s.updateScoreboard()
		s.display.ShowBonus()
	case protocol.TeamRunner:
		s.logger.Warn("Received runner bonus while runner; ignoring")
	default:
		s.logger.Debug("Bonus before team assignment ignored")
	}
}

func (s *Session) onMovement(msg *protocol.Movement) {
	remote := s.remotePlayer()
	if remote == nil {
		return
	}
	remote.SetTarget(game.Vec3{X: msg.X, Y: msg.Y, Z: msg.Z}, msg.Rotation)
}
