// Package transport defines the peer link contract the session drives. The
// webrtc and loopback packages implement it.
package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrServerDisconnected means the rendezvous service dropped us. Transient.
	ErrServerDisconnected = errors.New("disconnected from rendezvous server")
	// ErrLostConnection means the peer link died or went silent. Transient.
	ErrLostConnection = errors.New("lost connection to peer")

	ErrIDTaken         = errors.New("peer id is already taken")
	ErrPeerUnavailable = errors.New("peer is unavailable")
	ErrClosed          = errors.New("channel is closed")
)

// IsTransient reports whether err is recovered by re-initializing the peer.
func IsTransient(err error) bool {
	return errors.Is(err, ErrServerDisconnected) || errors.Is(err, ErrLostConnection)
}

// Channel is an ordered reliable message channel to the remote peer.
type Channel interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Peer is one registration with the rendezvous service. A host receives
// channels through IncomingChannel events; a joiner opens one with Connect.
type Peer interface {
	ID() string
	Connect(roomID string) (Channel, error)
	Close() error
}

type PeerFactory interface {
	CreateAsHost(roomID string, sink EventSink) (Peer, error)
	CreateAsJoiner(localID string, sink EventSink) (Peer, error)
}

// EventSink receives transport events. Implementations must not block and
// must not call back into the transport synchronously.
type EventSink interface {
	PostTransportEvent(event Event)
}

type EventSinkFunc func(event Event)

func (f EventSinkFunc) PostTransportEvent(event Event) { f(event) }

type EventKind int

const (
	EventOpened EventKind = iota
	EventIncomingChannel
	EventChannelOpen
	EventData
	EventChannelError
	EventDisconnected
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventIncomingChannel:
		return "incomingChannel"
	case EventChannelOpen:
		return "channelOpen"
	case EventData:
		return "data"
	case EventChannelError:
		return "channelError"
	case EventDisconnected:
		return "disconnected"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

type Event struct {
	Kind    EventKind
	Peer    Peer
	PeerID  string
	Channel Channel
	Data    []byte
	Err     error
}

func (e Event) String() string {
	channelID := "nil"
	if e.Channel != nil {
		channelID = e.Channel.ID()
	}
	return fmt.Sprintf("Event { Kind=%s, PeerID=%s, Channel=%s, Bytes=%d, Err=%v }",
		e.Kind, e.PeerID, channelID, len(e.Data), e.Err)
}
