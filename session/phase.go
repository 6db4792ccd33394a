package session

// Phase is the match phase. Exactly one is active.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseHandshaking
	PhaseCountdown
	PhasePlaying
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseHandshaking:
		return "handshaking"
	case PhaseCountdown:
		return "countdown"
	case PhasePlaying:
		return "playing"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// roundStarted reports whether a countdown or round is in progress.
func (p Phase) roundStarted() bool {
	return p == PhaseCountdown || p == PhasePlaying
}
