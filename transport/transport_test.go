package transport

import (
	"errors"
	"fmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
)

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrServerDisconnected))
	assert.True(t, IsTransient(fmt.Errorf("sse stream: %w", ErrServerDisconnected)))
	assert.True(t, IsTransient(ErrLostConnection))

	assert.False(t, IsTransient(ErrIDTaken))
	assert.False(t, IsTransient(ErrPeerUnavailable))
	assert.False(t, IsTransient(errors.New("boom")))
	assert.False(t, IsTransient(nil))
}

func TestEventString(t *testing.T) {
	e := Event{Kind: EventData, PeerID: "p1", Data: []byte("abc")}
	assert.Equal(t, "Event { Kind=data, PeerID=p1, Channel=nil, Bytes=3, Err=<nil> }", e.String())
	assert.Equal(t, "EventKind(42)", EventKind(42).String())
}

func TestEventSinkFunc(t *testing.T) {
	var got []EventKind
	sink := EventSinkFunc(func(e Event) { got = append(got, e.Kind) })

	sink.PostTransportEvent(Event{Kind: EventOpened})
	sink.PostTransportEvent(Event{Kind: EventClosed})

	assert.Equal(t, []EventKind{EventOpened, EventClosed}, got)
}

func TestMailboxDeliversInOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	box := NewMailbox(EventSinkFunc(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.PeerID)
	}))
	defer box.Stop()

	for _, id := range []string{"a", "b", "c"} {
		box.Push(Event{Kind: EventOpened, PeerID: id})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestMailboxStopIsIdempotent(t *testing.T) {
	box := NewMailbox(EventSinkFunc(func(Event) {}))
	box.Stop()
	box.Stop()
	box.Push(Event{Kind: EventOpened})
}
