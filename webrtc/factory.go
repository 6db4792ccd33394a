// Package webrtc implements the peer transport over pion WebRTC data
// channels, using the rendezvous service for signalling.
package webrtc

import (
	"context"
	"peertag/signaling"
	"peertag/transport"
	"sync"
)

// Factory creates peers registered on the rendezvous service at apiRoot.
type Factory struct {
	ctx            context.Context
	apiRoot        string
	forceTurnRelay bool
	cleanup        sync.WaitGroup
}

func NewFactory(ctx context.Context, apiRoot string, forceTurnRelay bool) *Factory {
	return &Factory{
		ctx:            ctx,
		apiRoot:        apiRoot,
		forceTurnRelay: forceTurnRelay,
	}
}

// CreateAsHost registers the room id itself as the peer address. It returns
// at once; the outcome of the registration arrives at sink as Opened or
// Disconnected.
func (f *Factory) CreateAsHost(roomID string, sink transport.EventSink) (transport.Peer, error) {
	return newPeer(f.ctx, signaling.NewClient(f.apiRoot, roomID), true, f.forceTurnRelay, &f.cleanup, sink), nil
}

func (f *Factory) CreateAsJoiner(localID string, sink transport.EventSink) (transport.Peer, error) {
	return newPeer(f.ctx, signaling.NewClient(f.apiRoot, localID), false, f.forceTurnRelay, &f.cleanup, sink), nil
}

// Wait blocks until every closed peer has said goodbye to its remote and
// left the rendezvous service, or ctx is done.
func (f *Factory) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.cleanup.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
