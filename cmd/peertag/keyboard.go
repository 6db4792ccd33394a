package main

import (
	"go.uber.org/zap"
	"peertag/applog"
	"peertag/game"
	"peertag/session"
	"strings"
	"sync"
)

// keyboardController turns stdin commands into held movement keys. Jumps,
// restarts and renames are posted straight to the loop.
type keyboardController struct {
	mu   sync.Mutex
	held game.Input
	jump bool
}

func (k *keyboardController) Next(*session.Session) (game.Input, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	jump := k.jump
	k.jump = false
	return k.held, jump
}

func parseKeys(keys string) game.Input {
	var in game.Input
	for _, r := range strings.ToLower(keys) {
		switch r {
		case 'w':
			in.Forward = true
		case 's':
			in.Backward = true
		case 'a':
			in.Left = true
		case 'd':
			in.Right = true
		}
	}
	return in
}

type poster interface {
	Do(fn func(*session.Session)) bool
}

func (k *keyboardController) handle(loop poster, fields []string) {
	switch strings.ToLower(fields[0]) {
	case "hold":
		in := game.Input{}
		if len(fields) > 1 {
			in = parseKeys(fields[1])
		}
		k.mu.Lock()
		k.held = in
		k.mu.Unlock()
	case "stop":
		k.mu.Lock()
		k.held = game.Input{}
		k.mu.Unlock()
	case "jump":
		k.mu.Lock()
		k.jump = true
		k.mu.Unlock()
	case "restart":
		loop.Do(func(s *session.Session) {
			if err := s.RequestRestart(); err != nil {
				applog.Warn("Restart refused", zap.Error(err))
			}
		})
	case "name":
		name := strings.Join(fields[1:], " ")
		loop.Do(func(s *session.Session) {
			s.SetUsername(name)
		})
	case "status":
		loop.Do(func(s *session.Session) {
			local, remote := s.Scores()
			applog.Info("Status",
				zap.String("state", s.State().String()),
				zap.String("phase", s.Phase().String()),
				zap.Stringer("team", s.Team()),
				zap.String("remote", s.RemoteUsername()),
				zap.Int("localScore", local),
				zap.Int("remoteScore", remote),
			)
		})
	default:
		applog.Warn("Unknown command", zap.Strings("command", fields),
			zap.String("help", "hold <wasd>, stop, jump, restart, name <name>, status"))
	}
}
