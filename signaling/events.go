package signaling

import (
	"encoding/json"
	"fmt"
	"github.com/pion/webrtc/v4"
)

type EventKind = string

const (
	// EventKindConnected is sent by a joiner to the room it wants to enter.
	EventKindConnected   EventKind = "connected"
	EventKindCandidates  EventKind = "candidates"
	EventKindPeerClosing EventKind = "peerClosing"
)

type EventMessage interface {
	GetSenderId() string
	GetRecipientId() string
}

type BaseEvent struct {
	EventType   EventKind `json:"eventType"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
}

func (e BaseEvent) GetSenderId() string    { return e.SenderID }
func (e BaseEvent) GetRecipientId() string { return e.RecipientID }

type ConnectedMessage struct {
	BaseEvent
}

func (e ConnectedMessage) String() string {
	return fmt.Sprintf("ConnectedMessage { SenderId=%s, RecipientId=%s }", e.SenderID, e.RecipientID)
}

// CandidatesMessage carries a complete session description together with
// every gathered ICE candidate.
type CandidatesMessage struct {
	BaseEvent
	Session    *webrtc.SessionDescription `json:"session"`
	Candidates []webrtc.ICECandidateInit  `json:"candidates"`
}

func (e CandidatesMessage) String() string {
	return fmt.Sprintf(
		"CandidatesMessage { SenderId=%s, RecipientId=%s, Candidates=%d }",
		e.SenderID,
		e.RecipientID,
		len(e.Candidates),
	)
}

type PeerClosingMessage struct {
	BaseEvent
}

func (e PeerClosingMessage) String() string {
	return fmt.Sprintf("PeerClosingMessage { SenderId=%s, RecipientId=%s }", e.SenderID, e.RecipientID)
}

func ParseEventMessage(message string) (EventMessage, error) {
	var data = []byte(message)
	var raw BaseEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch raw.EventType {
	case EventKindConnected:
		var msg ConnectedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	case EventKindCandidates:
		var msg CandidatesMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	case EventKindPeerClosing:
		var msg PeerClosingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	default:
		return nil, fmt.Errorf("unknown eventType: %s", raw.EventType)
	}
}

// NewConnected, NewCandidates and NewPeerClosing stamp the event type.
func NewConnected(sender, recipient string) *ConnectedMessage {
	return &ConnectedMessage{BaseEvent{EventType: EventKindConnected, SenderID: sender, RecipientID: recipient}}
}

func NewCandidates(
	sender, recipient string,
	session *webrtc.SessionDescription,
	candidates []webrtc.ICECandidateInit,
) *CandidatesMessage {
	return &CandidatesMessage{
		BaseEvent:  BaseEvent{EventType: EventKindCandidates, SenderID: sender, RecipientID: recipient},
		Session:    session,
		Candidates: candidates,
	}
}

func NewPeerClosing(sender, recipient string) *PeerClosingMessage {
	return &PeerClosingMessage{BaseEvent{EventType: EventKindPeerClosing, SenderID: sender, RecipientID: recipient}}
}
