package session

import (
	"go.uber.org/zap"
	"time"
)

type countdown struct {
	value  int
	active bool
}

// startCountdown shows CountdownFrom and steps it down once per
// CountdownStep; at zero the round starts. Starting again while counting or
// playing does nothing.
func (s *Session) startCountdown(now time.Time) {
	if s.match.phase.roundStarted() {
		return
	}

	s.match.phase = PhaseCountdown
	s.countdown = countdown{value: s.cfg.CountdownFrom, active: true}
	s.display.SetCountdown(s.countdown.value, true)
	s.logger.Info("Countdown started", zap.Int("from", s.countdown.value))

	s.countdownTask.Cancel()
	s.countdownTask = s.tasks.Every("countdown", now, s.cfg.CountdownStep, func(time.Time) {
		s.countdown.value--
		if s.countdown.value > 0 {
			s.display.SetCountdown(s.countdown.value, true)
			return
		}
		s.stopCountdown()
		s.match.phase = PhasePlaying
		s.logger.Info("Round started")
	})
}

func (s *Session) stopCountdown() {
	s.countdownTask.Cancel()
	s.countdownTask = nil
	if s.countdown.active {
		s.countdown.active = false
		s.display.SetCountdown(0, false)
	}
}

// onStartCountdown handles the host's explicit start. The joiner already
// starts on assignment, so this only matters if that has not happened.
func (s *Session) onStartCountdown(now time.Time) {
	if !s.assigned() || s.match.phase != PhaseHandshaking {
		s.logger.Debug("startCountdown ignored",
			zap.Stringer("phase", s.match.phase),
			zap.Stringer("team", s.team),
		)
		return
	}
	s.startCountdown(now)
}
