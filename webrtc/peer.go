package webrtc

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
	"peertag/applog"
	"peertag/signaling"
	"peertag/transport"
	"peertag/util"
	"sync"
)

const gameDataChannelLabel = "game"

type onCandidatesGatheredCallback = func(*connection, *webrtc.SessionDescription, []webrtc.ICECandidateInit)

// connection is one WebRTC peer connection with its ordered reliable data
// channel. It is the transport.Channel handed to the session.
type connection struct {
	id       string
	offerer  bool
	remoteId string
	context  context.Context
	owner    *Peer

	mu                sync.Mutex
	pc                *webrtc.PeerConnection
	dataChannel       *webrtc.DataChannel
	pendingCandidates []webrtc.ICECandidateInit
	forceTurnRelay    bool
	closed            bool

	onCandidatesGathered onCandidatesGatheredCallback
	onStateChanged       func(c *connection, state webrtc.PeerConnectionState)
}

func newConnection(owner *Peer, remoteId string, offerer bool) *connection {
	ctx := applog.AddContextFields(owner.ctx,
		zap.String("remotePeerId", remoteId),
		zap.Bool("localOfferer", offerer),
	)

	return &connection{
		id:                   uuid.NewString(),
		offerer:              offerer,
		remoteId:             remoteId,
		context:              ctx,
		owner:                owner,
		onCandidatesGathered: owner.onCandidatesGathered,
		onStateChanged:       owner.onConnectionStateChanged,
	}
}

func (c *connection) ID() string {
	return c.id
}

func (c *connection) wrapError(format string, a ...any) error {
	return &PeerError{Context: c.context, RemoteId: c.remoteId, Err: fmt.Errorf(format, a...)}
}

func (c *connection) logger() *applog.Logger {
	return applog.FromContext(c.context)
}

// open creates the pion peer connection with the owner's ICE servers. A
// forced relay policy falls back to all candidates when it cannot be set up.
func (c *connection) open() error {
	iceServers, forceRelay, ready := c.owner.iceConfig()
	if !ready {
		return c.wrapError("peer is not registered: %w", transport.ErrClosed)
	}

	policy := webrtc.ICETransportPolicyAll
	c.forceTurnRelay = forceRelay
	if forceRelay {
		policy = webrtc.ICETransportPolicyRelay
	}

	pc, err := c.newPeerConnection(webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = pc.Close()
		return transport.ErrClosed
	}
	c.pc = pc
	c.mu.Unlock()

	c.registerConnectionHandlers(pc)
	return nil
}

func (c *connection) newPeerConnection(config webrtc.Configuration) (*webrtc.PeerConnection, error) {
	c.logger().Info("Creating new WebRTC connection",
		zap.String("ICETransportPolicy", config.ICETransportPolicy.String()),
	)

	pc, err := c.owner.api.NewPeerConnection(config)
	if err != nil {
		if config.ICETransportPolicy == webrtc.ICETransportPolicyRelay && c.forceTurnRelay {
			c.logger().Warn(
				"Failed to create peer connection with ICE-Relay policy, falling back",
				zap.Error(err),
			)

			c.forceTurnRelay = false
			config.ICETransportPolicy = webrtc.ICETransportPolicyAll
			return c.newPeerConnection(config)
		}

		return nil, c.wrapError("cannot create peer connection: %w", err)
	}

	return pc, nil
}

func (c *connection) registerConnectionHandlers(pc *webrtc.PeerConnection) {
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		c.mu.Lock()

		if candidate != nil {
			c.pendingCandidates = append(c.pendingCandidates, candidate.ToJSON())
			c.mu.Unlock()
			return
		}

		// Gathering finished: ship the description with every candidate.
		candidates := c.pendingCandidates
		c.pendingCandidates = nil
		description := pc.LocalDescription()
		c.mu.Unlock()

		c.onCandidatesGathered(c, description, candidates)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if c.onStateChanged != nil {
			c.onStateChanged(c, state)
		}
	})

	pc.OnDataChannel(func(dataChannel *webrtc.DataChannel) {
		if dataChannel.Label() != gameDataChannelLabel {
			c.logger().Warn("Ignoring unexpected data channel", zap.String("label", dataChannel.Label()))
			return
		}

		c.mu.Lock()
		c.dataChannel = dataChannel
		c.mu.Unlock()

		c.owner.post(transport.Event{Kind: transport.EventIncomingChannel, Channel: c})
		c.registerDataChannel(dataChannel)
	})
}

// initiate creates the data channel and the offer. Only the joiner offers.
func (c *connection) initiate() error {
	c.logger().Info("Initiating connection")
	pc := c.peerConnection()

	// default is ordered and reliable, we don't need to pass options
	dataChannel, err := pc.CreateDataChannel(gameDataChannelLabel, nil)
	if err != nil {
		return c.wrapError("cannot create data channel: %w", err)
	}

	c.mu.Lock()
	c.dataChannel = dataChannel
	c.mu.Unlock()
	c.registerDataChannel(dataChannel)

	// Note: this will start the gathering of ICE candidates
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return c.wrapError("cannot create offer: %w", err)
	}

	if err = pc.SetLocalDescription(offer); err != nil {
		return c.wrapError("cannot set local description: %w", err)
	}

	return nil
}

// addCandidates applies the remote description and candidates. The answerer
// then answers, which starts its own gathering.
func (c *connection) addCandidates(session *webrtc.SessionDescription, candidates []webrtc.ICECandidateInit) error {
	if session == nil {
		return c.wrapError("candidates message without session description")
	}
	pc := c.peerConnection()
	if pc == nil {
		return c.wrapError("connection is not open: %w", transport.ErrClosed)
	}

	if err := pc.SetRemoteDescription(*session); err != nil {
		return c.wrapError("cannot set remote description: %w", err)
	}

	for _, candidate := range candidates {
		if err := pc.AddICECandidate(candidate); err != nil {
			return c.wrapError("cannot add candidate to peer: %w", err)
		}
	}

	if !c.offerer {
		answer, err := pc.CreateAnswer(nil)
		if err != nil {
			return c.wrapError("cannot create answer: %w", err)
		}

		if err = pc.SetLocalDescription(answer); err != nil {
			return c.wrapError("cannot set local description (answer): %w", err)
		}
	}

	return nil
}

func (c *connection) registerDataChannel(dataChannel *webrtc.DataChannel) {
	c.logger().Info(
		"Registering data channel handlers",
		zap.String("label", dataChannel.Label()),
		zap.Any("id", util.PtrValueOrDef(dataChannel.ID(), 0)),
	)

	dataChannel.OnOpen(func() {
		c.logger().Info(
			"Data channel opened",
			zap.String("label", dataChannel.Label()),
			zap.Any("id", util.PtrValueOrDef(dataChannel.ID(), 0)),
		)
		c.owner.post(transport.Event{Kind: transport.EventChannelOpen, Channel: c})
	})

	dataChannel.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.owner.post(transport.Event{Kind: transport.EventData, Channel: c, Data: msg.Data})
	})

	dataChannel.OnError(func(err error) {
		c.owner.post(transport.Event{
			Kind:    transport.EventChannelError,
			Channel: c,
			Err:     c.wrapError("data channel error: %w", err),
		})
	})

	dataChannel.OnClose(func() {
		if c.isClosed() {
			return
		}
		c.logger().Info("Data channel closed by remote")
		c.owner.post(transport.Event{Kind: transport.EventClosed, Channel: c})
	})
}

func (c *connection) Send(data []byte) error {
	c.mu.Lock()
	dataChannel, closed := c.dataChannel, c.closed
	c.mu.Unlock()

	if closed || dataChannel == nil {
		return transport.ErrClosed
	}
	if dataChannel.ReadyState() != webrtc.DataChannelStateOpen {
		return c.wrapError("data channel is %s: %w", dataChannel.ReadyState(), transport.ErrClosed)
	}

	if err := dataChannel.Send(data); err != nil {
		return c.wrapError("could not send data to WebRTC data channel: %w", err)
	}
	return nil
}

func (c *connection) peerConnection() *webrtc.PeerConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pc
}

func (c *connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close shuts the peer connection and tells the remote side.
func (c *connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pc := c.pc
	c.mu.Unlock()

	c.owner.forget(c)
	closing := signaling.NewPeerClosing(c.owner.id, c.remoteId)
	if c.owner.isClosed() {
		c.owner.sendEvent(closing)
	} else {
		go c.owner.sendEvent(closing)
	}

	if pc == nil {
		return nil
	}
	if err := pc.Close(); err != nil {
		return c.wrapError("cannot close peerConnection: %w", err)
	}
	return nil
}

// awaitingAnswer reports whether this is an offer still missing the remote
// description.
func (c *connection) awaitingAnswer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offerer && !c.closed && c.pc != nil && c.pc.RemoteDescription() == nil
}

// drop closes the connection after the remote side went away, without
// telling it.
func (c *connection) drop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pc := c.pc
	c.mu.Unlock()

	c.owner.forget(c)
	if pc != nil {
		_ = pc.Close()
	}
}
