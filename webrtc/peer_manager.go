package webrtc

import (
	"context"
	"errors"
	"fmt"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
	"peertag/applog"
	"peertag/signaling"
	"peertag/transport"
	"sync"
	"time"
)

const (
	// peerDisconnectedTimeout is a duration without network activity before an Agent is considered disconnected.
	// Default is 5 Seconds.
	peerDisconnectedTimeout = time.Second * 10
	// peerFailedTimeout is a duration without network activity before an Agent is considered
	// failed after disconnected.
	// Default is 25 Seconds.
	peerFailedTimeout = time.Second * 30
	// peerKeepAliveInterval is an interval how often the ICE Agent sends extra traffic if there is no activity,
	// if media is flowing no traffic will be sent.
	peerKeepAliveInterval = time.Second * 5

	signalingTimeout = 10 * time.Second
)

// Peer is the local endpoint registered on the rendezvous service. A host
// answers offers from joiners; a joiner offers to one room.
//
// Nothing here blocks the caller on the network: registration and offers run
// on their own goroutines and report back through the event sink.
type Peer struct {
	ctx    context.Context
	cancel context.CancelFunc

	id     string
	host   bool
	client *signaling.Client
	api    *webrtc.API
	box    *transport.Mailbox

	// started is closed once registration finished, successfully or not.
	started chan struct{}

	connsMu        sync.Mutex
	conns          map[string]*connection
	iceServers     []webrtc.ICEServer
	forceTurnRelay bool
	ready          bool
	registered     bool
	closed         bool

	cleanup *sync.WaitGroup
}

func newPeer(
	ctx context.Context,
	client *signaling.Client,
	host bool,
	forceTurnRelay bool,
	cleanup *sync.WaitGroup,
	sink transport.EventSink,
) *Peer {
	ctx, cancel := context.WithCancel(applog.AddContextFields(ctx,
		zap.String("peerId", client.LocalId()),
		zap.Bool("host", host),
	))

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(
		peerDisconnectedTimeout,
		peerFailedTimeout,
		peerKeepAliveInterval,
	)

	p := &Peer{
		ctx:            ctx,
		cancel:         cancel,
		id:             client.LocalId(),
		host:           host,
		client:         client,
		api:            webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		forceTurnRelay: forceTurnRelay,
		box:            transport.NewMailbox(sink),
		started:        make(chan struct{}),
		conns:          make(map[string]*connection),
		cleanup:        cleanup,
	}

	go p.start()
	return p
}

// start registers on the rendezvous service, fetches ICE servers and begins
// listening. Success posts Opened; failure posts Disconnected with the cause,
// so a taken id reports transport.ErrIDTaken.
func (p *Peer) start() {
	defer close(p.started)

	if err := p.register(); err != nil {
		if p.ctx.Err() != nil {
			return
		}
		applog.FromContext(p.ctx).Warn("Could not open peer", zap.Error(err))
		p.post(transport.Event{Kind: transport.EventDisconnected, Err: err})
		return
	}

	go p.listen()
	p.post(transport.Event{Kind: transport.EventOpened})
}

func (p *Peer) register() error {
	ctx, cancel := context.WithTimeout(p.ctx, signalingTimeout)
	defer cancel()

	if err := p.client.Register(ctx); err != nil {
		return err
	}
	p.connsMu.Lock()
	p.registered = true
	p.connsMu.Unlock()

	servers, err := p.client.GetIceServers(ctx)
	if err != nil {
		return err
	}

	p.connsMu.Lock()
	defer p.connsMu.Unlock()
	p.iceServers = servers.ToWebrtc()
	if servers.ForceRelay {
		p.forceTurnRelay = true
	}
	p.ready = true
	return nil
}

func (p *Peer) listen() {
	err := p.client.Listen(p.ctx, p.handleSignalingEvent)
	if p.ctx.Err() != nil {
		return
	}

	applog.FromContext(p.ctx).Warn("Rendezvous event stream lost", zap.Error(err))
	if err == nil || !errors.Is(err, transport.ErrServerDisconnected) {
		err = errors.Join(transport.ErrServerDisconnected, err)
	}
	p.post(transport.Event{Kind: transport.EventDisconnected, Err: err})
}

func (p *Peer) ID() string {
	return p.id
}

func (p *Peer) post(e transport.Event) {
	e.Peer = p
	e.PeerID = p.id
	p.box.Push(e)
}

// Connect offers a connection to the host registered as roomID and returns
// the channel at once. The room is announced first, so a missing host shows
// up as a Disconnected event for the channel wrapping
// transport.ErrPeerUnavailable.
func (p *Peer) Connect(roomID string) (transport.Channel, error) {
	if p.host {
		return nil, errors.New("host peers do not connect")
	}

	conn := newConnection(p, roomID, true)
	if err := p.track(conn); err != nil {
		return nil, err
	}

	go p.offer(conn)
	return conn, nil
}

func (p *Peer) offer(conn *connection) {
	select {
	case <-p.started:
	case <-p.ctx.Done():
		return
	}

	err := p.announce(conn)
	if err == nil {
		err = conn.open()
	}
	if err == nil {
		err = conn.initiate()
	}
	if err == nil || p.ctx.Err() != nil {
		return
	}

	conn.drop()
	p.post(transport.Event{
		Kind:    transport.EventDisconnected,
		Channel: conn,
		Err:     conn.wrapError("failed to connect to room: %w", err),
	})
}

func (p *Peer) announce(conn *connection) error {
	if _, _, ready := p.iceConfig(); !ready {
		return errors.New("peer is not registered")
	}

	ctx, cancel := context.WithTimeout(p.ctx, signalingTimeout)
	defer cancel()
	return p.client.SendEvent(ctx, signaling.NewConnected(p.id, conn.remoteId))
}

// addConnection opens an answering connection right away; it runs on the
// signalling goroutine.
func (p *Peer) addConnection(remoteId string, offerer bool) (*connection, error) {
	conn := newConnection(p, remoteId, offerer)
	if err := conn.open(); err != nil {
		return nil, err
	}
	if err := p.track(conn); err != nil {
		conn.drop()
		return nil, err
	}
	return conn, nil
}

func (p *Peer) track(conn *connection) error {
	p.connsMu.Lock()
	defer p.connsMu.Unlock()
	if p.closed {
		return transport.ErrClosed
	}
	p.conns[conn.id] = conn
	return nil
}

func (p *Peer) iceConfig() (servers []webrtc.ICEServer, forceRelay bool, ready bool) {
	p.connsMu.Lock()
	defer p.connsMu.Unlock()
	return p.iceServers, p.forceTurnRelay, p.ready
}

func (p *Peer) connectionsTo(remoteId string) []*connection {
	p.connsMu.Lock()
	defer p.connsMu.Unlock()

	var out []*connection
	for _, c := range p.conns {
		if c.remoteId == remoteId {
			out = append(out, c)
		}
	}
	return out
}

func (p *Peer) forget(c *connection) {
	p.connsMu.Lock()
	defer p.connsMu.Unlock()
	delete(p.conns, c.id)
}

func (p *Peer) isClosed() bool {
	p.connsMu.Lock()
	defer p.connsMu.Unlock()
	return p.closed
}

func (p *Peer) sendEvent(event signaling.EventMessage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), signalingTimeout)
	defer cancel()

	if err := p.client.SendEvent(ctx, event); err != nil {
		applog.FromContext(p.ctx).Warn("Failed to send rendezvous event",
			zap.String("recipientId", event.GetRecipientId()),
			zap.Error(err),
		)
	}
}

func (p *Peer) handleSignalingEvent(msg signaling.EventMessage) {
	logger := applog.FromContext(p.ctx)

	switch event := msg.(type) {
	case *signaling.ConnectedMessage:
		logger.Info("Peer announced itself", zap.Stringer("event", event))
	case *signaling.CandidatesMessage:
		logger.Info("Received CandidatesMessage", zap.Stringer("event", event))

		conn, err := p.connectionFor(event)
		if err != nil {
			logger.Warn("Candidates not applied", zap.String("senderId", event.SenderID), zap.Error(err))
			return
		}

		if err = conn.addCandidates(event.Session, event.Candidates); err != nil {
			logger.Error("Could not add candidates to peer connection", zap.Error(err))
			p.post(transport.Event{Kind: transport.EventChannelError, Channel: conn, Err: err})
		}
	case *signaling.PeerClosingMessage:
		logger.Info("Remote peer closing", zap.Stringer("event", event))

		for _, conn := range p.connectionsTo(event.SenderID) {
			conn.drop()
			p.post(transport.Event{Kind: transport.EventClosed, Channel: conn})
		}
	default:
		logger.Info("Received unknown event type", zap.Any("event", event))
	}
}

// connectionFor picks the connection a candidates message belongs to: a
// new answering connection for every offer on a host, the pending offer on
// a joiner.
func (p *Peer) connectionFor(event *signaling.CandidatesMessage) (*connection, error) {
	if event.Session == nil {
		return nil, errors.New("no session description")
	}

	if p.host {
		if event.Session.Type != webrtc.SDPTypeOffer {
			return nil, fmt.Errorf("host expects an offer, got %s", event.Session.Type)
		}
		return p.addConnection(event.SenderID, false)
	}

	for _, conn := range p.connectionsTo(event.SenderID) {
		if conn.awaitingAnswer() {
			return conn, nil
		}
	}
	return nil, errors.New("no pending offer for this peer")
}

func (p *Peer) onCandidatesGathered(c *connection, description *webrtc.SessionDescription, candidates []webrtc.ICECandidateInit) {
	if c.isClosed() {
		return
	}
	p.sendEvent(signaling.NewCandidates(p.id, c.remoteId, description, candidates))
}

func (p *Peer) onConnectionStateChanged(c *connection, state webrtc.PeerConnectionState) {
	c.logger().Info(
		"Peer connection state has changed",
		zap.String("state", state.String()),
	)

	switch state {
	case webrtc.PeerConnectionStateFailed:
		if c.isClosed() {
			return
		}

		// The next connection to this peer tries without the relay.
		if c.forceTurnRelay {
			c.logger().Info("Switching to fallback relay All policy")
			p.connsMu.Lock()
			p.forceTurnRelay = false
			p.connsMu.Unlock()
		}

		p.post(transport.Event{
			Kind:    transport.EventDisconnected,
			Channel: c,
			Err:     c.wrapError("peer connection failed: %w", transport.ErrLostConnection),
		})
	case webrtc.PeerConnectionStateDisconnected:
		// The ICE agent may recover on its own; only Failed is acted on.
		c.logger().Info("Peer disconnected, waiting to see if it recovers")
	case webrtc.PeerConnectionStateConnected:
		p.logSelectedCandidates(c)
	default:
	}
}

func (p *Peer) logSelectedCandidates(c *connection) {
	var pair webrtc.ICECandidatePairStats
	candidates := make(map[string]webrtc.ICECandidateStats)

	pc := c.peerConnection()
	if pc == nil {
		return
	}

	for _, s := range pc.GetStats() {
		switch stat := s.(type) {
		case webrtc.ICECandidateStats:
			candidates[stat.ID] = stat
		case webrtc.ICECandidatePairStats:
			if stat.State == webrtc.StatsICECandidatePairStateSucceeded {
				pair = stat
			}
		default:
		}
	}

	localCandidate, okLocal := candidates[pair.LocalCandidateID]
	remoteCandidate, okRemote := candidates[pair.RemoteCandidateID]
	if !okLocal || !okRemote {
		c.logger().Debug("Could not find candidate pair in peer stats")
		return
	}

	c.logger().Info("Selected candidate pair",
		zap.String("localType", localCandidate.CandidateType.String()),
		zap.String("localAddress", localCandidate.IP),
		zap.String("remoteType", remoteCandidate.CandidateType.String()),
		zap.String("remoteAddress", remoteCandidate.IP),
	)
}

// Close stops posting events at once; closing the connections and
// releasing the id happen in the background.
func (p *Peer) Close() error {
	p.connsMu.Lock()
	if p.closed {
		p.connsMu.Unlock()
		return nil
	}
	p.closed = true
	conns := make([]*connection, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.connsMu.Unlock()

	p.cancel()
	p.box.Stop()

	p.cleanup.Add(1)
	go func() {
		defer p.cleanup.Done()
		<-p.started

		for _, c := range conns {
			_ = c.Close()
		}

		p.connsMu.Lock()
		registered := p.registered
		p.connsMu.Unlock()

		if registered {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), signalingTimeout)
			defer cancel()
			if err := p.client.Unregister(ctx); err != nil {
				applog.FromContext(p.ctx).Warn("Failed to unregister from rendezvous", zap.Error(err))
			}
		}
		_ = p.client.Close()
	}()
	return nil
}
