package rendezvous

import (
	"errors"
	"github.com/google/uuid"
	"peertag/transport"
	"sync"
	"time"
)

const mailboxSize = 64

var (
	ErrUnauthorized = errors.New("unknown or mismatching token")
	ErrMailboxFull  = errors.New("recipient mailbox is full")
)

type peerEntry struct {
	id        string
	token     string
	events    chan []byte
	listeners int
	idleSince time.Time
}

// Registry holds registered peer ids and their pending events. An id whose
// owner has not listened for staleAfter may be claimed by someone else.
type Registry struct {
	mu         sync.Mutex
	peers      map[string]*peerEntry
	staleAfter time.Duration
	now        func() time.Time
}

func NewRegistry(staleAfter time.Duration) *Registry {
	return &Registry{
		peers:      make(map[string]*peerEntry),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Register claims id and returns the token that authorizes its owner.
func (r *Registry) Register(id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.peers[id]; ok {
		if !r.isStale(existing) {
			return "", transport.ErrIDTaken
		}
		close(existing.events)
	}

	entry := &peerEntry{
		id:        id,
		token:     uuid.NewString(),
		events:    make(chan []byte, mailboxSize),
		idleSince: r.now(),
	}
	r.peers[id] = entry
	return entry.token, nil
}

func (r *Registry) isStale(e *peerEntry) bool {
	return e.listeners == 0 && r.staleAfter > 0 && r.now().Sub(e.idleSince) > r.staleAfter
}

func (r *Registry) lookup(id, token string) (*peerEntry, error) {
	entry, ok := r.peers[id]
	if !ok {
		return nil, transport.ErrPeerUnavailable
	}
	if entry.token != token {
		return nil, ErrUnauthorized
	}
	return entry, nil
}

// Authenticate reports whether token belongs to id.
func (r *Registry) Authenticate(id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.lookup(id, token)
	return err
}

func (r *Registry) Unregister(id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := r.lookup(id, token)
	if err != nil {
		return err
	}

	delete(r.peers, id)
	close(entry.events)
	return nil
}

// Deliver queues data for recipient without blocking.
func (r *Registry) Deliver(recipient string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.peers[recipient]
	if !ok {
		return transport.ErrPeerUnavailable
	}

	select {
	case entry.events <- data:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Subscribe hands out the event queue of id. The returned release must be
// called when the listener goes away. The channel is closed when the id is
// unregistered or taken over.
func (r *Registry) Subscribe(id, token string) (<-chan []byte, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := r.lookup(id, token)
	if err != nil {
		return nil, nil, err
	}

	entry.listeners++
	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			entry.listeners--
			if entry.listeners == 0 {
				entry.idleSince = r.now()
			}
		})
	}
	return entry.events, release, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
