package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMissingType = errors.New("message has no type")

// Encode stamps the message type and serializes it.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("cannot encode nil message")
	}
	msg.GetHeader().Type = msg.Kind()

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", msg.Kind(), err)
	}
	return data, nil
}

func Decode(data []byte) (Message, error) {
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("failed to decode message header: %w", err)
	}
	if header.Type == "" {
		return nil, ErrMissingType
	}

	var msg Message
	switch header.Type {
	case KindRequestTeam:
		msg = &RequestTeam{}
	case KindTeamAssignment:
		msg = &TeamAssignment{}
	case KindStartCountdown:
		msg = &StartCountdown{}
	case KindUsername:
		msg = &Username{}
	case KindMovement:
		msg = &Movement{}
	case KindTag:
		msg = &Tag{}
	case KindBonus:
		msg = &Bonus{}
	case KindRestart:
		msg = &Restart{}
	case KindSwap, KindResume:
		msg = &Swap{}
	case KindHeartbeat:
		msg = &Heartbeat{}
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return &UnknownMessage{Header: header, Raw: raw}, nil
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("failed to decode %s message: %w", header.Type, err)
	}
	return msg, nil
}
