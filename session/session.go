// Package session runs one side of a two player tag match: the connection
// handshake, the message queue, reconciliation of both simulations, restarts
// and the countdown.
//
// A Session is not safe for concurrent use. Loop owns one and serializes
// transport events, user commands and ticks onto a single goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"math/rand/v2"
	"peertag/applog"
	"peertag/game"
	"peertag/protocol"
	"peertag/transport"
	"strings"
	"time"
)

const DefaultUsername = "Player"

var (
	ErrEmptyRoomID    = errors.New("please enter a room id to join")
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotEnded       = errors.New("restart is only possible after a tag")
)

type Role int

const (
	RoleHost Role = iota
	RoleJoiner
)

func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "joiner"
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Config struct {
	LocalID  string
	Username string
	World    game.World
	Clock    Clock

	HeartbeatInterval time.Duration
	// LivenessMissedIntervals is how many heartbeat intervals may pass
	// without any inbound message before the link is considered lost.
	// Zero disables the check.
	LivenessMissedIntervals int
	ReconnectDelay          time.Duration
	TeamRequestInterval     time.Duration

	CountdownFrom int
	CountdownStep time.Duration

	BonusSpeed float64
	BonusHold  time.Duration

	// SeedSource draws spawn seeds. Only the host's draws are shared.
	SeedSource func() int64
}

func DefaultConfig() Config {
	return Config{
		Username:                DefaultUsername,
		Clock:                   systemClock{},
		HeartbeatInterval:       15 * time.Second,
		LivenessMissedIntervals: 4,
		ReconnectDelay:          time.Second,
		TeamRequestInterval:     2 * time.Second,
		CountdownFrom:           3,
		CountdownStep:           time.Second,
		BonusSpeed:              10,
		BonusHold:               3 * time.Second,
		SeedSource:              rand.Int64,
	}
}

type Session struct {
	cfg        Config
	baseLogger *applog.Logger
	logger     *applog.Logger
	clock      Clock
	factory    transport.PeerFactory
	sink       transport.EventSink
	display    Display

	localID        string
	roomID         string
	role           Role
	username       string
	remoteUsername string

	state  HandshakeState
	link   link
	outbox *Outbox
	tasks  Scheduler

	team protocol.Team
	seed int64

	entities  [2]*game.Player
	match     match
	restart   restart
	countdown countdown

	heartbeatTask   *Task
	teamRequestTask *Task
	reconnectTask   *Task
	countdownTask   *Task
}

func New(ctx context.Context, cfg Config, factory transport.PeerFactory, display Display) *Session {
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	if cfg.SeedSource == nil {
		cfg.SeedSource = rand.Int64
	}
	if cfg.Username == "" {
		cfg.Username = DefaultUsername
	}
	if display == nil {
		display = NopDisplay{}
	}

	logger := applog.FromContext(ctx).With(zap.String("localId", cfg.LocalID))

	s := &Session{
		cfg:            cfg,
		baseLogger:     logger,
		logger:         logger,
		clock:          cfg.Clock,
		factory:        factory,
		display:        display,
		localID:        cfg.LocalID,
		username:       cfg.Username,
		remoteUsername: DefaultUsername,
		outbox:         NewOutbox(cfg.LocalID, logger),
		entities:       [2]*game.Player{{Name: cfg.Username}, {Name: DefaultUsername}},
	}
	s.match.lastFrame = s.clock.Now()
	s.updateScoreboard()
	return s
}

// AttachSink sets where transport events for this session are posted. The
// sink must hand them back to the session on its own goroutine.
func (s *Session) AttachSink(sink transport.EventSink) {
	s.sink = sink
}

// CreateRoom starts hosting. An empty room id uses the local id.
func (s *Session) CreateRoom(roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		roomID = s.localID
	}
	return s.start(RoleHost, roomID)
}

func (s *Session) JoinRoom(roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		s.display.Alert(ErrEmptyRoomID)
		return ErrEmptyRoomID
	}
	return s.start(RoleJoiner, roomID)
}

func (s *Session) start(role Role, roomID string) error {
	if s.state != StateIdle && s.state != StateFailed {
		return ErrAlreadyStarted
	}
	if s.sink == nil {
		return errors.New("session has no transport event sink")
	}

	if s.state == StateFailed {
		// A fresh create/join re-runs the handshake; scores are kept.
		s.team = protocol.TeamNone
		s.match.phase = PhaseConnecting
		s.match.ended = false
		s.resetRestart()
		s.stopCountdown()
	}

	s.role = role
	s.roomID = roomID
	s.logger = s.baseLogger.With(zap.String("roomId", roomID), zap.Stringer("role", role))
	s.outbox.logger = s.logger
	s.link = link{}

	if !s.transition(StatePeerOpening) {
		return fmt.Errorf("cannot start from state %s", s.state)
	}

	if role == RoleHost {
		s.display.SetStatus(fmt.Sprintf("Room created: %s. Waiting for connection...", roomID))
	} else {
		s.display.SetStatus(fmt.Sprintf("Joined room: %s. Connecting...", roomID))
	}
	s.logger.Info("Session starting")

	return s.openPeer()
}

// SetUsername changes the local name and announces it when connected.
func (s *Session) SetUsername(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	s.username = name
	if local := s.localPlayer(); local != nil {
		local.Name = name
		s.display.SetDisplayName(s.localEntity(), name)
	}
	s.updateScoreboard()

	if s.link.open {
		s.send(&protocol.Username{Username: name})
	}
}

// Close tears down the transport and cancels every pending task.
func (s *Session) Close() {
	s.teardownLink()
	s.tasks.CancelAll()
	s.heartbeatTask = nil
	s.teamRequestTask = nil
	s.reconnectTask = nil
	s.countdownTask = nil
	s.logger.Info("Session closed")
}

// Tick advances timers and, while playing, the local simulation by the time
// elapsed since the previous tick.
func (s *Session) Tick(in game.Input) {
	now := s.clock.Now()
	delta := now.Sub(s.match.lastFrame).Seconds()
	s.match.lastFrame = now

	s.tasks.Run(now)
	s.checkLiveness(now)

	if !s.assigned() {
		return
	}

	s.remotePlayer().Interpolate()
	if s.match.phase == PhasePlaying {
		s.simulate(in, delta)
	}
	s.publishPoses()
}

// Jump makes the local player jump or double jump while a round is running.
func (s *Session) Jump() bool {
	if s.match.phase != PhasePlaying || !s.assigned() {
		return false
	}
	return game.Jump(s.localPlayer(), s.cfg.World)
}

func (s *Session) send(msg protocol.Message) {
	if err := s.outbox.Send(msg); err != nil {
		s.logger.Warn("Send failed; message kept for the next connection",
			zap.String("type", msg.Kind()),
			zap.Error(err),
		)
		s.handleTransportError(fmt.Errorf("%w: %w", transport.ErrLostConnection, err))
	}
}

func (s *Session) dispatch(msg protocol.Message) {
	now := s.clock.Now()

	switch m := msg.(type) {
	case *protocol.RequestTeam:
		s.onRequestTeam(now)
	case *protocol.TeamAssignment:
		s.onTeamAssignment(m, now)
	case *protocol.StartCountdown:
		s.onStartCountdown(now)
	case *protocol.Username:
		s.onUsername(m)
	case *protocol.Movement:
		s.onMovement(m)
	case *protocol.Tag:
		s.onTag()
	case *protocol.Bonus:
		s.onBonus()
	case *protocol.Restart:
		s.onRestart(now)
	case *protocol.Swap:
		s.onSwap(m, now)
	case *protocol.Heartbeat:
		// Receipt already refreshed liveness.
	case *protocol.UnknownMessage:
		s.logger.Warn("Dropping message of unknown type", zap.Stringer("message", m))
	default:
		s.logger.Warn("Unhandled message", zap.String("type", msg.Kind()))
	}
}

func (s *Session) onUsername(msg *protocol.Username) {
	name := strings.TrimSpace(msg.Username)
	if name == "" {
		name = DefaultUsername
	}
	s.remoteUsername = name

	if remote := s.remotePlayer(); remote != nil {
		remote.Name = name
		s.display.SetDisplayName(s.remoteEntity(), name)
	}
	s.updateScoreboard()
}

func (s *Session) updateScoreboard() {
	s.display.SetScores(s.username, s.match.localScore, s.remoteUsername, s.match.remoteScore)
}

func (s *Session) LocalID() string               { return s.localID }
func (s *Session) RoomID() string                { return s.roomID }
func (s *Session) Role() Role                    { return s.role }
func (s *Session) State() HandshakeState         { return s.state }
func (s *Session) Phase() Phase                  { return s.match.phase }
func (s *Session) Team() protocol.Team           { return s.team }
func (s *Session) Seed() int64                   { return s.seed }
func (s *Session) Username() string              { return s.username }
func (s *Session) RemoteUsername() string        { return s.remoteUsername }
func (s *Session) Scores() (local, remote int)   { return s.match.localScore, s.match.remoteScore }
func (s *Session) Connected() bool               { return s.link.open }
func (s *Session) QueuedMessages() int           { return s.outbox.Len() }
func (s *Session) Countdown() (int, bool)        { return s.countdown.value, s.countdown.active }
func (s *Session) RestartReady() (local, remote bool) {
	return s.restart.localReady, s.restart.remoteReady
}
