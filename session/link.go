package session

import (
	"errors"
	"fmt"
	"go.uber.org/zap"
	"peertag/protocol"
	"peertag/transport"
	"time"
)

// link is the transport side of the session. It survives reconnects; the
// peer and channel inside it do not.
type link struct {
	peer    transport.Peer
	channel transport.Channel
	open    bool

	lastSeen time.Time
	// recovering is set between a transient failure and the next open
	// channel.
	recovering bool
	everOpened bool
}

// openPeer creates the transport peer for the current role. An error the
// reconnect loop recovers from is handled here and not returned.
func (s *Session) openPeer() error {
	var (
		peer transport.Peer
		err  error
	)
	if s.role == RoleHost {
		peer, err = s.factory.CreateAsHost(s.roomID, s.sink)
	} else {
		peer, err = s.factory.CreateAsJoiner(s.localID, s.sink)
	}
	if err != nil {
		err = fmt.Errorf("failed to create peer: %w", err)
		if s.retryable(err) {
			s.scheduleReconnect(err)
			return nil
		}
		s.fail(err)
		return err
	}

	s.link.peer = peer
	return nil
}

// HandleTransportEvent applies one transport event. Events from a peer or
// channel that is no longer current are dropped.
func (s *Session) HandleTransportEvent(e transport.Event) {
	if e.Peer != nil && e.Peer != s.link.peer {
		s.logger.Debug("Ignoring event from stale peer", zap.Stringer("event", e))
		return
	}

	switch e.Kind {
	case transport.EventOpened:
		s.onPeerOpened(e)
	case transport.EventIncomingChannel:
		s.onIncomingChannel(e.Channel)
	case transport.EventChannelOpen:
		if s.isCurrentChannel(e.Channel) {
			s.onChannelOpen()
		}
	case transport.EventData:
		if s.isCurrentChannel(e.Channel) {
			s.onData(e.Data)
		}
	case transport.EventChannelError:
		if s.isCurrentChannel(e.Channel) {
			s.logger.Warn("Channel error", zap.Error(e.Err))
			s.handleTransportError(e.Err)
		}
	case transport.EventDisconnected:
		if e.Channel == nil || s.isCurrentChannel(e.Channel) {
			s.handleTransportError(e.Err)
		}
	case transport.EventClosed:
		if s.isCurrentChannel(e.Channel) {
			s.logger.Warn("Channel closed by remote")
			s.handleTransportError(transport.ErrLostConnection)
		}
	}
}

func (s *Session) isCurrentChannel(ch transport.Channel) bool {
	if ch == nil || s.link.channel == nil {
		return false
	}
	if ch != s.link.channel {
		s.logger.Debug("Ignoring event from stale channel", zap.String("channelId", ch.ID()))
		return false
	}
	return true
}

func (s *Session) onPeerOpened(e transport.Event) {
	s.logger.Info("Peer open", zap.String("peerId", e.PeerID))

	if !s.assigned() && !s.transition(StateChannelOpening) {
		return
	}
	if s.role == RoleHost {
		return
	}

	s.logger.Info("Joiner attempting to connect to room")
	ch, err := s.link.peer.Connect(s.roomID)
	if err != nil {
		s.handleTransportError(fmt.Errorf("failed to connect to room: %w", err))
		return
	}
	s.link.channel = ch
}

func (s *Session) onIncomingChannel(ch transport.Channel) {
	if s.role != RoleHost || ch == nil {
		return
	}
	if s.link.channel != nil {
		s.logger.Warn("Rejecting additional inbound channel", zap.String("channelId", ch.ID()))
		_ = ch.Close()
		return
	}

	s.logger.Info("Host received connection", zap.String("channelId", ch.ID()))
	s.link.channel = ch
}

func (s *Session) onChannelOpen() {
	if s.link.open {
		return
	}
	now := s.clock.Now()

	s.link.open = true
	s.link.lastSeen = now
	s.link.recovering = false
	s.display.SetStatus("Connected!")

	if _, err := s.outbox.Attach(s.link.channel); err != nil {
		s.handleTransportError(fmt.Errorf("%w: %w", transport.ErrLostConnection, err))
		return
	}

	s.heartbeatTask.Cancel()
	s.heartbeatTask = s.tasks.Every("heartbeat", now, s.cfg.HeartbeatInterval, func(time.Time) {
		s.send(&protocol.Heartbeat{})
	})

	if s.assigned() {
		s.logger.Info("Reconnected; keeping team assignment", zap.Stringer("team", s.team))
		if s.match.phase.roundStarted() {
			s.sendPose()
		}
		s.send(&protocol.Username{Username: s.username})
		return
	}

	if !s.transition(StateConnected) {
		return
	}
	s.link.everOpened = true
	s.match.phase = PhaseHandshaking
	s.send(&protocol.Username{Username: s.username})

	if s.role == RoleJoiner {
		s.requestTeam(now)
	}
}

func (s *Session) onData(data []byte) {
	s.link.lastSeen = s.clock.Now()

	msg, err := protocol.Decode(data)
	if err != nil {
		s.logger.Warn("Dropping undecodable message", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}
	if msg.GetHeader().Sender == s.localID {
		return
	}
	s.dispatch(msg)
}

func (s *Session) checkLiveness(now time.Time) {
	if !s.link.open || s.cfg.LivenessMissedIntervals <= 0 {
		return
	}

	limit := s.cfg.HeartbeatInterval * time.Duration(s.cfg.LivenessMissedIntervals)
	if silent := now.Sub(s.link.lastSeen); silent > limit {
		s.logger.Warn("Peer went silent", zap.Duration("silentFor", silent))
		s.handleTransportError(transport.ErrLostConnection)
	}
}

// retryable reports whether err is recovered by the reconnect loop. Once a
// session is recovering, a missing or not yet released room is expected
// while the other side re-registers.
func (s *Session) retryable(err error) bool {
	if transport.IsTransient(err) {
		return true
	}
	return s.link.recovering &&
		(errors.Is(err, transport.ErrPeerUnavailable) || errors.Is(err, transport.ErrIDTaken))
}

func (s *Session) handleTransportError(err error) {
	if err == nil {
		err = transport.ErrLostConnection
	}

	if s.retryable(err) {
		s.scheduleReconnect(err)
		return
	}
	s.fail(err)
}

// scheduleReconnect tears the link down and re-initializes the peer after
// ReconnectDelay. Only one retry is pending at any time.
func (s *Session) scheduleReconnect(cause error) {
	if s.reconnectTask.Active() {
		return
	}

	s.logger.Warn("Transient transport error; reconnecting",
		zap.Error(cause),
		zap.Duration("delay", s.cfg.ReconnectDelay),
	)
	s.teardownLink()
	s.link.recovering = true
	s.display.SetStatus("Connection lost. Reconnecting...")

	if !s.assigned() && s.state != StatePeerOpening {
		s.transition(StatePeerOpening)
	}

	s.reconnectTask = s.tasks.After("reconnect", s.clock.Now(), s.cfg.ReconnectDelay, func(time.Time) {
		s.reconnectTask = nil
		s.logger.Info("Re-initializing peer")
		_ = s.openPeer()
	})
}

func (s *Session) fail(err error) {
	s.logger.Error("Unrecoverable transport error", zap.Error(err))
	s.teardownLink()
	s.reconnectTask.Cancel()
	s.reconnectTask = nil
	s.link.recovering = false

	s.transition(StateFailed)
	s.display.SetStatus("Connection failed.")
	s.display.Alert(err)
}

func (s *Session) teardownLink() {
	s.heartbeatTask.Cancel()
	s.heartbeatTask = nil
	s.teamRequestTask.Cancel()
	s.teamRequestTask = nil
	s.outbox.Detach()

	channel, peer := s.link.channel, s.link.peer
	s.link.channel = nil
	s.link.peer = nil
	s.link.open = false

	if channel != nil {
		_ = channel.Close()
	}
	if peer != nil {
		_ = peer.Close()
	}
}
