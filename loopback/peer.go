package loopback

import (
	"fmt"
	"peertag/transport"
	"sync"
)

type Peer struct {
	network *Network
	id      string
	sink    transport.EventSink
	box     *transport.Mailbox

	mu       sync.Mutex
	closed   bool
	channels map[string]*Channel
}

func (p *Peer) ID() string {
	return p.id
}

// Connect opens a channel to the host registered as roomID. Both sides get
// ChannelOpen; the host additionally gets IncomingChannel first.
func (p *Peer) Connect(roomID string) (transport.Channel, error) {
	if p.isClosed() {
		return nil, transport.ErrClosed
	}

	host := p.network.lookup(roomID)
	if host == nil || host == p {
		return nil, fmt.Errorf("connect to %q: %w", roomID, transport.ErrPeerUnavailable)
	}

	local := &Channel{id: p.network.newChannelID(), owner: p}
	remote := &Channel{id: p.network.newChannelID(), owner: host}
	local.remote = remote
	remote.remote = local

	p.track(local)
	host.track(remote)

	host.post(transport.Event{Kind: transport.EventIncomingChannel, Channel: remote})
	host.post(transport.Event{Kind: transport.EventChannelOpen, Channel: remote})
	p.post(transport.Event{Kind: transport.EventChannelOpen, Channel: local})
	return local, nil
}

func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	channels := make([]*Channel, 0, len(p.channels))
	for _, ch := range p.channels {
		channels = append(channels, ch)
	}
	p.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
	}

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.network.unregister(p)
	if p.box != nil {
		p.box.Stop()
	}
	return nil
}

func (p *Peer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Peer) track(ch *Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[ch.id] = ch
}

func (p *Peer) untrack(ch *Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.channels, ch.id)
}

func (p *Peer) snapshotChannels() []*Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Channel, 0, len(p.channels))
	for _, ch := range p.channels {
		out = append(out, ch)
	}
	return out
}

func (p *Peer) post(e transport.Event) {
	if p.isClosed() {
		return
	}
	e.Peer = p
	e.PeerID = p.id

	if p.network.manual {
		p.network.enqueue(delivery{peer: p, event: e})
		return
	}
	p.box.Push(e)
}

type Channel struct {
	id     string
	owner  *Peer
	remote *Channel

	mu     sync.Mutex
	closed bool
}

func (c *Channel) ID() string {
	return c.id
}

func (c *Channel) Send(data []byte) error {
	if c.isClosed() {
		return transport.ErrClosed
	}

	payload := make([]byte, len(data))
	copy(payload, data)

	c.remote.owner.post(transport.Event{
		Kind:    transport.EventData,
		Channel: c.remote,
		Data:    payload,
	})
	return nil
}

// Close shuts both ends; each owner gets a Closed event.
func (c *Channel) Close() error {
	for _, end := range []*Channel{c, c.remote} {
		if end.markClosed() {
			end.owner.post(transport.Event{Kind: transport.EventClosed, Channel: end})
		}
	}
	return nil
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// markClosed reports whether this call closed the end.
func (c *Channel) markClosed() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	c.mu.Unlock()

	c.owner.untrack(c)
	return true
}
