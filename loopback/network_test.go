package loopback

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"peertag/transport"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []transport.Event
}

func (r *recorder) PostTransportEvent(e transport.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []transport.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]transport.EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *recorder) last() transport.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func TestManualNetworkConnectAndExchange(t *testing.T) {
	n := NewManualNetwork()
	hostRec, joinRec := &recorder{}, &recorder{}

	_, err := n.CreateAsHost("room", hostRec)
	require.NoError(t, err)
	joiner, err := n.CreateAsJoiner("j1", joinRec)
	require.NoError(t, err)

	assert.Empty(t, hostRec.kinds(), "nothing is delivered before Pump")
	n.Pump()
	assert.Equal(t, []transport.EventKind{transport.EventOpened}, hostRec.kinds())
	assert.Equal(t, []transport.EventKind{transport.EventOpened}, joinRec.kinds())

	ch, err := joiner.Connect("room")
	require.NoError(t, err)
	n.Pump()

	assert.Equal(t, []transport.EventKind{
		transport.EventOpened, transport.EventIncomingChannel, transport.EventChannelOpen,
	}, hostRec.kinds())
	hostChannel := hostRec.last().Channel

	require.NoError(t, ch.Send([]byte("hello")))
	require.NoError(t, hostChannel.Send([]byte("world")))
	n.Pump()

	assert.Equal(t, "hello", string(hostRec.last().Data))
	assert.Equal(t, "world", string(joinRec.last().Data))
	assert.Equal(t, "room", hostRec.last().PeerID)
}

func TestRegisterDuplicateID(t *testing.T) {
	n := NewManualNetwork()
	_, err := n.CreateAsHost("room", &recorder{})
	require.NoError(t, err)

	_, err = n.CreateAsHost("room", &recorder{})
	assert.ErrorIs(t, err, transport.ErrIDTaken)
}

func TestConnectToMissingHost(t *testing.T) {
	n := NewManualNetwork()
	joiner, err := n.CreateAsJoiner("j1", &recorder{})
	require.NoError(t, err)

	_, err = joiner.Connect("nowhere")
	assert.ErrorIs(t, err, transport.ErrPeerUnavailable)
}

func TestChannelCloseNotifiesBothEnds(t *testing.T) {
	n := NewManualNetwork()
	hostRec, joinRec := &recorder{}, &recorder{}
	_, _ = n.CreateAsHost("room", hostRec)
	joiner, _ := n.CreateAsJoiner("j1", joinRec)

	ch, err := joiner.Connect("room")
	require.NoError(t, err)
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	n.Pump()

	assert.Equal(t, transport.EventClosed, hostRec.last().Kind)
	assert.Equal(t, transport.EventClosed, joinRec.last().Kind)
	assert.ErrorIs(t, ch.Send([]byte("x")), transport.ErrClosed)
}

func TestSeverReportsLostConnection(t *testing.T) {
	n := NewManualNetwork()
	hostRec, joinRec := &recorder{}, &recorder{}
	_, _ = n.CreateAsHost("room", hostRec)
	joiner, _ := n.CreateAsJoiner("j1", joinRec)
	_, err := joiner.Connect("room")
	require.NoError(t, err)
	n.Pump()

	n.Sever("j1")
	n.Pump()

	assert.Equal(t, transport.EventDisconnected, hostRec.last().Kind)
	assert.ErrorIs(t, hostRec.last().Err, transport.ErrLostConnection)
	assert.ErrorIs(t, joinRec.last().Err, transport.ErrLostConnection)
}

func TestClosedPeerFreesIDAndStopsDelivery(t *testing.T) {
	n := NewManualNetwork()
	rec := &recorder{}
	host, err := n.CreateAsHost("room", rec)
	require.NoError(t, err)

	require.NoError(t, host.Close())
	n.Pump()
	assert.Empty(t, rec.kinds())

	_, err = n.CreateAsHost("room", &recorder{})
	assert.NoError(t, err)
}

func TestAsyncNetworkDeliversInOrder(t *testing.T) {
	n := NewNetwork()
	hostRec := &recorder{}
	_, err := n.CreateAsHost("room", hostRec)
	require.NoError(t, err)
	joiner, err := n.CreateAsJoiner("j1", &recorder{})
	require.NoError(t, err)

	ch, err := joiner.Connect("room")
	require.NoError(t, err)
	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, ch.Send([]byte(msg)))
	}

	require.Eventually(t, func() bool { return len(hostRec.kinds()) == 6 }, time.Second, 5*time.Millisecond)

	hostRec.mu.Lock()
	defer hostRec.mu.Unlock()
	assert.Equal(t, "a", string(hostRec.events[3].Data))
	assert.Equal(t, "c", string(hostRec.events[5].Data))
}
