package session

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"peertag/game"
	"peertag/protocol"
	"peertag/transport"
	"slices"
	"testing"
	"time"
)

const reconnectingStatus = "Connection lost. Reconnecting..."

func TestReconnectAfterSeverKeepsMatch(t *testing.T) {
	p := newPair(t)
	p.play()
	p.separate()

	p.net.Sever("joinid")
	p.pump()
	require.False(t, p.host.Connected())
	require.False(t, p.joiner.Connected())
	assert.Equal(t, reconnectingStatus, p.hostUI.lastStatus())
	assert.Equal(t, reconnectingStatus, p.joinUI.lastStatus())

	seen := len(p.hostTap.kinds)

	// Messages produced while offline are queued; poses are not.
	p.host.SetUsername("Alicia")
	p.host.Tick(game.Input{})
	p.joiner.Tick(game.Input{Forward: true})
	assert.Zero(t, p.joiner.QueuedMessages())
	assert.Equal(t, 1, p.host.QueuedMessages())

	p.idle(2 * time.Second)

	assert.True(t, p.host.Connected())
	assert.True(t, p.joiner.Connected())
	assert.Equal(t, StateTeamAssigned, p.host.State())
	assert.Equal(t, StateTeamAssigned, p.joiner.State())
	assert.Equal(t, PhasePlaying, p.host.Phase())
	assert.Equal(t, protocol.TeamTagger, p.host.Team())
	assert.Equal(t, protocol.TeamRunner, p.joiner.Team())
	assert.Equal(t, "Alicia", p.joiner.RemoteUsername())
	assert.Zero(t, p.joiner.QueuedMessages())

	// No second handshake.
	assert.Equal(t, 1, p.hostTap.count(protocol.KindRequestTeam))
	assert.Equal(t, 1, p.joinTap.count(protocol.KindTeamAssignment))

	// The current pose is delivered before the post-reconnect name.
	resumed := p.hostTap.kinds[seen:]
	require.NotEmpty(t, resumed)
	assert.Equal(t, protocol.KindMovement, resumed[0])
	assert.Greater(t, slices.Index(resumed, protocol.KindUsername), 0)
}

func TestServerDropReconnects(t *testing.T) {
	p := newPair(t)
	p.connect()

	p.net.DropServer("abc123")
	p.pump()
	assert.False(t, p.host.Connected())
	assert.False(t, p.joiner.Connected())
	assert.Equal(t, reconnectingStatus, p.hostUI.lastStatus())

	p.idle(3 * time.Second)

	assert.True(t, p.host.Connected())
	assert.True(t, p.joiner.Connected())
	assert.Equal(t, protocol.TeamTagger, p.host.Team())
	assert.Equal(t, 1, p.hostTap.count(protocol.KindRequestTeam))
	assert.Empty(t, p.hostUI.alerts)
	assert.Empty(t, p.joinUI.alerts)
}

func TestJoinMissingRoomFailsThenRetrySucceeds(t *testing.T) {
	p := newPair(t)

	require.NoError(t, p.joiner.JoinRoom("abc123"))
	p.pump()

	assert.Equal(t, StateFailed, p.joiner.State())
	require.Len(t, p.joinUI.alerts, 1)
	assert.ErrorIs(t, p.joinUI.alerts[0], transport.ErrPeerUnavailable)
	assert.Equal(t, "Connection failed.", p.joinUI.lastStatus())

	// Nothing retries on its own.
	p.idle(3 * time.Second)
	assert.Equal(t, StateFailed, p.joiner.State())

	require.NoError(t, p.host.CreateRoom("abc123"))
	require.NoError(t, p.joiner.JoinRoom("abc123"))
	p.pump()

	assert.Equal(t, StateTeamAssigned, p.joiner.State())
	assert.Equal(t, protocol.TeamRunner, p.joiner.Team())
}

func TestRoomIDTaken(t *testing.T) {
	p := newPair(t)
	require.NoError(t, p.host.CreateRoom("abc123"))

	other, ui, _ := newTestSession(p.clock, p.net, "otherid", "Carol")
	err := other.CreateRoom("abc123")

	assert.ErrorIs(t, err, transport.ErrIDTaken)
	assert.Equal(t, StateFailed, other.State())
	require.Len(t, ui.alerts, 1)
	assert.ErrorIs(t, ui.alerts[0], transport.ErrIDTaken)
}

func TestSilentPeerTriggersReconnect(t *testing.T) {
	p := newPair(t)
	raw := &rawPeer{t: t}
	_, err := p.net.CreateAsHost("abc123", raw)
	require.NoError(t, err)
	require.NoError(t, p.joiner.JoinRoom("abc123"))
	p.pump()
	require.True(t, p.joiner.Connected())

	p.clock.Advance(59 * time.Second)
	p.joiner.Tick(game.Input{})
	p.pump()
	assert.True(t, p.joiner.Connected())

	p.clock.Advance(2 * time.Second)
	p.joiner.Tick(game.Input{})
	p.pump()

	assert.False(t, p.joiner.Connected())
	assert.Equal(t, StatePeerOpening, p.joiner.State())
	assert.Equal(t, reconnectingStatus, p.joinUI.lastStatus())

	p.idle(time.Second + testTick)
	assert.True(t, p.joiner.Connected())
	assert.Equal(t, StateTeamRequested, p.joiner.State())
}

func TestLivenessCheckCanBeDisabled(t *testing.T) {
	p := newPair(t)
	p.joiner.cfg.LivenessMissedIntervals = 0
	raw := &rawPeer{t: t}
	_, err := p.net.CreateAsHost("abc123", raw)
	require.NoError(t, err)
	require.NoError(t, p.joiner.JoinRoom("abc123"))
	p.pump()

	p.clock.Advance(10 * time.Minute)
	p.joiner.Tick(game.Input{})
	p.pump()

	assert.True(t, p.joiner.Connected())
}

func TestHeartbeatsKeepLinkAlive(t *testing.T) {
	p := newPair(t)
	p.connect()

	// Ended rounds send no movement; heartbeats are the only traffic.
	inject(t, p.host, &protocol.Tag{}, "joinid")
	inject(t, p.joiner, &protocol.Tag{}, "hostid")
	p.idle(90 * time.Second)

	assert.True(t, p.host.Connected())
	assert.True(t, p.joiner.Connected())
	assert.GreaterOrEqual(t, p.joinTap.count(protocol.KindHeartbeat), 5)
}

func TestHostRejectsSecondChannel(t *testing.T) {
	p := newPair(t)
	p.connect()

	intruder := &rawPeer{t: t}
	peer, err := p.net.CreateAsJoiner("intruder", intruder)
	require.NoError(t, err)
	_, err = peer.Connect("abc123")
	require.NoError(t, err)
	p.pump()

	closed := slices.ContainsFunc(intruder.events, func(e transport.Event) bool {
		return e.Kind == transport.EventClosed
	})
	assert.True(t, closed)
	assert.Empty(t, intruder.messages)

	assert.True(t, p.host.Connected())
	assert.True(t, p.joiner.Connected())
	p.host.SetUsername("Alicia")
	p.pump()
	assert.Equal(t, "Alicia", p.joiner.RemoteUsername())
}

func TestCloseStopsEverything(t *testing.T) {
	p := newPair(t)
	p.connect()

	p.host.Close()
	p.pump()

	assert.False(t, p.host.Connected())
	assert.Zero(t, p.host.tasks.Pending())
}

// flakyFactory fails the first few peer creations as if the rendezvous
// server were unreachable, then hands out loopback peers.
type flakyFactory struct {
	next     transport.PeerFactory
	failures int
	calls    int
}

func (f *flakyFactory) fail() error {
	f.calls++
	if f.calls <= f.failures {
		return transport.ErrServerDisconnected
	}
	return nil
}

func (f *flakyFactory) CreateAsHost(roomID string, sink transport.EventSink) (transport.Peer, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.next.CreateAsHost(roomID, sink)
}

func (f *flakyFactory) CreateAsJoiner(localID string, sink transport.EventSink) (transport.Peer, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.next.CreateAsJoiner(localID, sink)
}

func TestUnreachableServerAtStartRetriesInBackground(t *testing.T) {
	p := newPair(t)
	flaky := &flakyFactory{next: p.net, failures: 2}
	p.host, p.hostUI, p.hostTap = newTestSession(p.clock, flaky, "hostid", "Alice")

	require.NoError(t, p.host.CreateRoom("abc123"))
	assert.Equal(t, StatePeerOpening, p.host.State())
	assert.Equal(t, reconnectingStatus, p.hostUI.lastStatus())
	assert.Empty(t, p.hostUI.alerts)
	assert.Equal(t, 1, flaky.calls)

	p.idle(time.Second + testTick)
	assert.Equal(t, 2, flaky.calls)
	assert.Equal(t, StatePeerOpening, p.host.State())

	p.idle(time.Second + testTick)
	assert.Equal(t, 3, flaky.calls)

	require.NoError(t, p.joiner.JoinRoom("abc123"))
	p.pump()
	assert.Equal(t, StateTeamAssigned, p.host.State())
	assert.Equal(t, StateTeamAssigned, p.joiner.State())
	assert.Empty(t, p.hostUI.alerts)
}

func TestOfflineTicksQueueNoMovement(t *testing.T) {
	p := newPair(t)
	p.play()
	p.separate()

	p.net.Sever("joinid")
	p.pump()
	require.False(t, p.host.Connected())

	for elapsed := time.Duration(0); elapsed < 5*time.Second; elapsed += testTick {
		p.clock.Advance(testTick)
		p.host.Tick(game.Input{Forward: true})
	}
	assert.Zero(t, p.host.QueuedMessages())

	seen := len(p.joinTap.kinds)
	p.idle(2 * time.Second)
	require.True(t, p.host.Connected())
	assert.Zero(t, p.host.QueuedMessages())

	// The current pose arrives first, then one per tick.
	resumed := &tap{kinds: p.joinTap.kinds[seen:]}
	require.NotEmpty(t, resumed.kinds)
	assert.Equal(t, protocol.KindMovement, resumed.kinds[0])
	assert.LessOrEqual(t, resumed.count(protocol.KindMovement), 2*60+1)
}
