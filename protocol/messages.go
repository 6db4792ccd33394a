package protocol

import (
	"encoding/json"
	"fmt"
)

type Kind = string

const (
	KindRequestTeam    Kind = "requestTeam"
	KindTeamAssignment Kind = "teamAssignment"
	KindStartCountdown Kind = "startCountdown"
	KindUsername       Kind = "username"
	KindMovement       Kind = "movement"
	KindTag            Kind = "tag"
	KindBonus          Kind = "bonus"
	KindRestart        Kind = "restart"
	KindSwap           Kind = "swap"
	KindResume         Kind = "resume"
	KindHeartbeat      Kind = "heartbeat"
)

// Message is one frame on the game channel.
type Message interface {
	Kind() Kind
	GetHeader() *Header
}

type Header struct {
	Type   Kind   `json:"type"`
	Sender string `json:"sender"`
}

func (h *Header) GetHeader() *Header { return h }

type RequestTeam struct {
	Header
}

func (*RequestTeam) Kind() Kind { return KindRequestTeam }

// TeamAssignment carries the host's own team; the receiver takes the opposite.
type TeamAssignment struct {
	Header
	Team Team   `json:"team"`
	Seed *int64 `json:"seed,omitempty"`
}

func (*TeamAssignment) Kind() Kind { return KindTeamAssignment }

type StartCountdown struct {
	Header
}

func (*StartCountdown) Kind() Kind { return KindStartCountdown }

type Username struct {
	Header
	Username string `json:"username"`
}

func (*Username) Kind() Kind { return KindUsername }

type Movement struct {
	Header
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Rotation float64 `json:"rotation"`
}

func (*Movement) Kind() Kind { return KindMovement }

func (m *Movement) String() string {
	return fmt.Sprintf("Movement { Sender=%s, X=%.2f, Y=%.2f, Z=%.2f, Rotation=%.2f }",
		m.Sender, m.X, m.Y, m.Z, m.Rotation)
}

type Tag struct {
	Header
}

func (*Tag) Kind() Kind { return KindTag }

type Bonus struct {
	Header
}

func (*Bonus) Kind() Kind { return KindBonus }

type Restart struct {
	Header
}

func (*Restart) Kind() Kind { return KindRestart }

// Swap tells the joiner to take the opposite of Team and start a new round.
// Older hosts send it as "resume"; the header keeps the original type.
type Swap struct {
	Header
	Team Team   `json:"team,omitempty"`
	Seed *int64 `json:"seed,omitempty"`
}

func (s *Swap) Kind() Kind {
	if s.Type == KindResume {
		return KindResume
	}
	return KindSwap
}

type Heartbeat struct {
	Header
}

func (*Heartbeat) Kind() Kind { return KindHeartbeat }

// UnknownMessage is returned for well-formed frames of a kind this build
// does not understand.
type UnknownMessage struct {
	Header
	Raw json.RawMessage `json:"-"`
}

func (u *UnknownMessage) Kind() Kind { return u.Type }

func (u *UnknownMessage) String() string {
	return fmt.Sprintf("UnknownMessage { Type=%q, Sender=%s }", u.Type, u.Sender)
}
