package session

import (
	"go.uber.org/zap"
	"peertag/protocol"
	"time"
)

type HandshakeState int

const (
	StateIdle HandshakeState = iota
	StatePeerOpening
	StateChannelOpening
	StateConnected
	StateTeamRequested
	StateTeamAssigned
	StateFailed
)

func (s HandshakeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePeerOpening:
		return "peerOpening"
	case StateChannelOpening:
		return "channelOpening"
	case StateConnected:
		return "connected"
	case StateTeamRequested:
		return "teamRequested"
	case StateTeamAssigned:
		return "teamAssigned"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reconnecting before assignment goes back to PeerOpening. Once assigned
// the state only leaves TeamAssigned on failure.
var handshakeTransitions = map[HandshakeState][]HandshakeState{
	StateIdle:           {StatePeerOpening, StateFailed},
	StatePeerOpening:    {StatePeerOpening, StateChannelOpening, StateFailed},
	StateChannelOpening: {StatePeerOpening, StateConnected, StateFailed},
	StateConnected:      {StatePeerOpening, StateTeamRequested, StateFailed},
	StateTeamRequested:  {StatePeerOpening, StateTeamAssigned, StateFailed},
	StateTeamAssigned:   {StateFailed},
	StateFailed:         {StatePeerOpening},
}

func canTransition(from, to HandshakeState) bool {
	for _, allowed := range handshakeTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transition moves the handshake to `to`, running exit actions of the old
// state. Illegal moves are refused and logged.
func (s *Session) transition(to HandshakeState) bool {
	from := s.state
	if !canTransition(from, to) {
		s.logger.Warn("Refused handshake transition",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
		return false
	}

	if from == StateTeamRequested {
		s.teamRequestTask.Cancel()
		s.teamRequestTask = nil
	}

	s.state = to
	s.logger.Debug("Handshake transition", zap.Stringer("from", from), zap.Stringer("to", to))
	return true
}

func (s *Session) assigned() bool {
	return s.team.IsAssigned()
}

// requestTeam is the joiner side of the handshake: ask, then keep asking
// every TeamRequestInterval until an assignment arrives.
func (s *Session) requestTeam(now time.Time) {
	if !s.transition(StateTeamRequested) {
		return
	}
	s.send(&protocol.RequestTeam{})

	s.teamRequestTask = s.tasks.Every("team-request", now, s.cfg.TeamRequestInterval, func(time.Time) {
		s.logger.Info("No team assignment received, re-requesting")
		s.send(&protocol.RequestTeam{})
	})
}

func (s *Session) onRequestTeam(now time.Time) {
	if s.role != RoleHost {
		s.logger.Warn("Joiner received requestTeam; ignoring")
		return
	}

	if s.assigned() {
		s.logger.Info("Repeated team request; re-sending assignment", zap.Stringer("team", s.team))
		seed := s.seed
		s.send(&protocol.TeamAssignment{Team: s.team, Seed: &seed})
		return
	}

	if s.state == StateConnected && !s.transition(StateTeamRequested) {
		return
	}
	if !s.transition(StateTeamAssigned) {
		return
	}

	seed := s.cfg.SeedSource()
	s.assignTeam(protocol.TeamTagger, seed)

	s.send(&protocol.TeamAssignment{Team: s.team, Seed: &seed})
	s.send(&protocol.StartCountdown{})
	s.send(&protocol.Username{Username: s.username})
	s.startCountdown(now)
}

func (s *Session) onTeamAssignment(msg *protocol.TeamAssignment, now time.Time) {
	if s.role == RoleHost {
		s.logger.Warn("Host received teamAssignment; ignoring")
		return
	}
	if s.assigned() {
		s.logger.Debug("Duplicate team assignment ignored", zap.Stringer("hostTeam", msg.Team))
		return
	}
	if !msg.Team.IsAssigned() {
		s.logger.Warn("Team assignment without a team; ignoring")
		return
	}
	if !s.transition(StateTeamAssigned) {
		return
	}

	seed := s.cfg.SeedSource()
	if msg.Seed != nil {
		seed = *msg.Seed
	}
	s.assignTeam(msg.Team.Opposite(), seed)

	local := s.localPlayer()
	s.send(&protocol.Movement{
		X:        local.Position.X,
		Y:        local.Position.Y,
		Z:        local.Position.Z,
		Rotation: local.Yaw,
	})
	s.send(&protocol.Username{Username: s.username})
	s.startCountdown(now)
}

// assignTeam sets the local team, maps entities and spawns both players
// from seed.
func (s *Session) assignTeam(team protocol.Team, seed int64) {
	s.team = team
	s.seed = seed
	s.mapEntities()
	s.respawn()

	s.display.SetRole(team)
	s.updateScoreboard()
	s.logger.Info("Team assigned", zap.Stringer("team", team), zap.Int64("seed", seed))
}
