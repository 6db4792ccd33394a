package webrtc

import (
	"context"
	"fmt"
)

// PeerError is an error raised by one connection to a remote peer. It keeps
// the connection's logging context and unwraps to the cause.
type PeerError struct {
	Context  context.Context
	RemoteId string
	Err      error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("[Peer %s] %v", e.RemoteId, e.Err)
}

func (e *PeerError) Unwrap() error {
	return e.Err
}
