package session

import (
	"go.uber.org/zap"
	"peertag/applog"
	"peertag/game"
	"peertag/protocol"
)

// Entity names one of the two fixed player entities. EntityA wears the
// tagger colour and EntityB the runner colour; which one is local flips
// with every team swap.
type Entity int

const (
	EntityA Entity = iota
	EntityB
)

func (e Entity) String() string {
	if e == EntityA {
		return "A"
	}
	return "B"
}

// Display is everything the session shows to the player. Rendering lives
// behind it.
type Display interface {
	SetStatus(text string)
	SetRole(team protocol.Team)
	SetScores(localName string, local int, remoteName string, remote int)
	SetCountdown(value int, visible bool)
	ShowEndMessage(text string)
	HideEndMessage()
	SetRestartStatus(text string)
	ShowBonus()
	Alert(err error)
	SetEntityPose(entity Entity, position game.Vec3, yaw float64)
	SetDisplayName(entity Entity, name string)
}

type NopDisplay struct{}

func (NopDisplay) SetStatus(string)                         {}
func (NopDisplay) SetRole(protocol.Team)                    {}
func (NopDisplay) SetScores(string, int, string, int)       {}
func (NopDisplay) SetCountdown(int, bool)                   {}
func (NopDisplay) ShowEndMessage(string)                    {}
func (NopDisplay) HideEndMessage()                          {}
func (NopDisplay) SetRestartStatus(string)                  {}
func (NopDisplay) ShowBonus()                               {}
func (NopDisplay) Alert(error)                              {}
func (NopDisplay) SetEntityPose(Entity, game.Vec3, float64) {}
func (NopDisplay) SetDisplayName(Entity, string)            {}

// LogDisplay writes every display change to the log. Poses are too chatty
// and are skipped.
type LogDisplay struct {
	Logger *applog.Logger
}

func (d LogDisplay) SetStatus(text string) {
	d.Logger.Info("Status", zap.String("text", text))
}

func (d LogDisplay) SetRole(team protocol.Team) {
	d.Logger.Info("Role", zap.Stringer("team", team))
}

func (d LogDisplay) SetScores(localName string, local int, remoteName string, remote int) {
	d.Logger.Info("Scoreboard",
		zap.String("localName", localName),
		zap.Int("local", local),
		zap.String("remoteName", remoteName),
		zap.Int("remote", remote),
	)
}

func (d LogDisplay) SetCountdown(value int, visible bool) {
	if visible {
		d.Logger.Info("Countdown", zap.Int("value", value))
	}
}

func (d LogDisplay) ShowEndMessage(text string) {
	d.Logger.Info("Round ended", zap.String("text", text))
}

func (d LogDisplay) HideEndMessage() {}

func (d LogDisplay) SetRestartStatus(text string) {
	if text != "" {
		d.Logger.Info("Restart", zap.String("text", text))
	}
}

func (d LogDisplay) ShowBonus() {
	d.Logger.Info("Runner bonus")
}

func (d LogDisplay) Alert(err error) {
	d.Logger.Error("Alert", zap.Error(err))
}

func (d LogDisplay) SetEntityPose(Entity, game.Vec3, float64) {}

func (d LogDisplay) SetDisplayName(entity Entity, name string) {
	d.Logger.Debug("Display name", zap.Stringer("entity", entity), zap.String("name", name))
}
