// Package loopback is an in-memory transport. Peers registered on one
// Network reach each other by id without any real networking.
package loopback

import (
	"fmt"
	"go.uber.org/zap"
	"peertag/applog"
	"peertag/transport"
	"sync"
)

type delivery struct {
	peer  *Peer
	event transport.Event
}

// Network routes events between peers. Delivery is asynchronous through one
// mailbox goroutine per peer, or deferred until Pump in manual mode. Either
// way a sink is never invoked from inside Send or Close.
type Network struct {
	mu          sync.Mutex
	peers       map[string]*Peer
	nextChannel int

	manual  bool
	pending []delivery
}

func NewNetwork() *Network {
	return &Network{peers: make(map[string]*Peer)}
}

// NewManualNetwork returns a network which holds every event until Pump is
// called. Tests use it to step two sessions deterministically.
func NewManualNetwork() *Network {
	n := NewNetwork()
	n.manual = true
	return n
}

func (n *Network) CreateAsHost(roomID string, sink transport.EventSink) (transport.Peer, error) {
	return n.register(roomID, sink)
}

func (n *Network) CreateAsJoiner(localID string, sink transport.EventSink) (transport.Peer, error) {
	return n.register(localID, sink)
}

func (n *Network) register(id string, sink transport.EventSink) (*Peer, error) {
	n.mu.Lock()
	if _, exists := n.peers[id]; exists {
		n.mu.Unlock()
		return nil, fmt.Errorf("register %q: %w", id, transport.ErrIDTaken)
	}

	p := &Peer{
		network:  n,
		id:       id,
		sink:     sink,
		channels: make(map[string]*Channel),
	}
	if !n.manual {
		p.box = transport.NewMailbox(sink)
	}
	n.peers[id] = p
	n.mu.Unlock()

	applog.Debug("Loopback peer registered", zap.String("peerId", id))
	p.post(transport.Event{Kind: transport.EventOpened})
	return p, nil
}

func (n *Network) lookup(id string) *Peer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.peers[id]
}

func (n *Network) unregister(p *Peer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.peers[p.id] == p {
		delete(n.peers, p.id)
	}
}

func (n *Network) newChannelID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextChannel++
	return fmt.Sprintf("ch-%d", n.nextChannel)
}

func (n *Network) enqueue(d delivery) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = append(n.pending, d)
}

// Pump delivers held events in order, including those produced while
// delivering, and returns how many were delivered. Only for manual networks.
func (n *Network) Pump() int {
	delivered := 0
	for {
		n.mu.Lock()
		if len(n.pending) == 0 {
			n.mu.Unlock()
			return delivered
		}
		next := n.pending[0]
		n.pending = n.pending[1:]
		n.mu.Unlock()

		if next.peer.isClosed() {
			continue
		}
		next.peer.sink.PostTransportEvent(next.event)
		delivered++
	}
}

// Sever drops every channel of peer id as if the link died, notifying both
// ends with ErrLostConnection.
func (n *Network) Sever(id string) {
	p := n.lookup(id)
	if p == nil {
		return
	}

	for _, ch := range p.snapshotChannels() {
		ends := []*Channel{ch, ch.remote}
		for _, end := range ends {
			if end.markClosed() {
				end.owner.post(transport.Event{
					Kind:    transport.EventDisconnected,
					Channel: end,
					Err:     transport.ErrLostConnection,
				})
			}
		}
	}
}

// DropServer simulates the rendezvous service going away for peer id.
func (n *Network) DropServer(id string) {
	if p := n.lookup(id); p != nil {
		p.post(transport.Event{Kind: transport.EventDisconnected, Err: transport.ErrServerDisconnected})
	}
}
