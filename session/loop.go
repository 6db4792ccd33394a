package session

import (
	"context"
	"go.uber.org/zap"
	"peertag/game"
	"peertag/transport"
	"time"
)

const (
	DefaultTickRate = 60
	loopInboxSize   = 256
)

// Controller supplies the local player's input once per tick.
type Controller interface {
	Next(s *Session) (in game.Input, jump bool)
}

type ControllerFunc func(s *Session) (game.Input, bool)

func (f ControllerFunc) Next(s *Session) (game.Input, bool) { return f(s) }

// idleController never moves.
type idleController struct{}

func (idleController) Next(*Session) (game.Input, bool) { return game.Input{}, false }

// Loop owns a Session and runs everything that touches it on one goroutine:
// transport events, commands posted with Do, and a fixed rate tick.
type Loop struct {
	session    *Session
	controller Controller
	tick       time.Duration

	inbox chan func(*Session)
	done  chan struct{}
}

func NewLoop(s *Session, tickRate int, controller Controller) *Loop {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	if controller == nil {
		controller = idleController{}
	}

	l := &Loop{
		session:    s,
		controller: controller,
		tick:       time.Second / time.Duration(tickRate),
		inbox:      make(chan func(*Session), loopInboxSize),
		done:       make(chan struct{}),
	}
	s.AttachSink(l)
	return l
}

// PostTransportEvent queues e for the loop goroutine. After the loop stopped
// events are dropped.
func (l *Loop) PostTransportEvent(e transport.Event) {
	l.Do(func(s *Session) {
		s.HandleTransportEvent(e)
	})
}

// Do queues fn to run on the loop goroutine. It reports false when the loop
// has already stopped.
func (l *Loop) Do(fn func(*Session)) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.inbox <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run processes the inbox and ticks until ctx is cancelled, then closes the
// session.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()
	defer l.session.Close()
	defer close(l.done)

	l.session.logger.Info("Session loop started", zap.Duration("tick", l.tick))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.inbox:
			fn(l.session)
		case <-ticker.C:
			in, jump := l.controller.Next(l.session)
			if jump {
				l.session.Jump()
			}
			l.session.Tick(in)
		}
	}
}
