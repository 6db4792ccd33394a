package session

import (
	"go.uber.org/zap"
	"peertag/protocol"
	"time"
)

const (
	restartStatusLocal  = "You pressed restart. Waiting for opponent..."
	restartStatusRemote = "Opponent pressed restart."
)

type restart struct {
	localReady  bool
	remoteReady bool
}

func (s *Session) resetRestart() {
	s.restart = restart{}
}

// RequestRestart marks this side ready for another round. Only possible
// after a tag; pressing again while ready does nothing.
func (s *Session) RequestRestart() error {
	if s.match.phase != PhaseEnded {
		return ErrNotEnded
	}
	if s.restart.localReady {
		return nil
	}

	s.restart.localReady = true
	s.display.SetRestartStatus(restartStatusLocal)
	s.send(&protocol.Restart{})
	s.checkRestartReady(s.clock.Now())
	return nil
}

// onRestart records the opponent's readiness. A restart that arrives outside
// an ended round belongs to a round that already restarted.
func (s *Session) onRestart(now time.Time) {
	if s.match.phase != PhaseEnded {
		s.logger.Debug("Ignoring restart outside an ended round", zap.Stringer("phase", s.match.phase))
		return
	}

	s.restart.remoteReady = true
	s.display.SetRestartStatus(restartStatusRemote)
	s.checkRestartReady(now)
}

// checkRestartReady lets the host decide the swap once both sides agreed.
// The joiner waits for the host's swap.
func (s *Session) checkRestartReady(now time.Time) {
	if !s.restart.localReady || !s.restart.remoteReady || s.role != RoleHost {
		return
	}

	newTeam := s.team.Opposite()
	seed := s.cfg.SeedSource()
	s.performRestart(newTeam, seed, now)
	s.send(&protocol.Swap{Team: newTeam, Seed: &seed})
}

// onSwap applies the host's decision unconditionally. The message carries
// the host's new team; without one we simply flip.
func (s *Session) onSwap(msg *protocol.Swap, now time.Time) {
	if s.role == RoleHost {
		s.logger.Warn("Host received swap; ignoring")
		return
	}

	if !s.assigned() {
		s.logger.Warn("Swap before team assignment ignored")
		return
	}

	newTeam := s.team.Opposite()
	if msg.Team.IsAssigned() {
		newTeam = msg.Team.Opposite()
	}

	seed := s.cfg.SeedSource()
	if msg.Seed != nil {
		seed = *msg.Seed
	}
	s.performRestart(newTeam, seed, now)
}

func (s *Session) performRestart(newTeam protocol.Team, seed int64, now time.Time) {
	s.logger.Info("Restarting round",
		zap.Stringer("oldTeam", s.team),
		zap.Stringer("newTeam", newTeam),
	)

	s.resetRestart()
	s.match.ended = false
	s.match.phase = PhaseHandshaking
	s.match.bonusTimer = 0
	s.stopCountdown()
	s.display.HideEndMessage()
	s.display.SetRestartStatus("")

	s.assignTeam(newTeam, seed)
	s.startCountdown(now)
}
