package session

import (
	"context"
	"github.com/stretchr/testify/require"
	"peertag/game"
	"peertag/loopback"
	"peertag/protocol"
	"peertag/transport"
	"peertag/world"
	"testing"
	"time"
)

const testTick = time.Second / 60

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingDisplay struct {
	NopDisplay
	statuses      []string
	alerts        []error
	role          protocol.Team
	localScore    int
	remoteScore   int
	remoteName    string
	countdowns    []int
	endMessages   int
	restartStatus string
	bonuses       int
}

func (d *recordingDisplay) SetStatus(text string)      { d.statuses = append(d.statuses, text) }
func (d *recordingDisplay) Alert(err error)            { d.alerts = append(d.alerts, err) }
func (d *recordingDisplay) SetRole(team protocol.Team) { d.role = team }
func (d *recordingDisplay) ShowEndMessage(string)      { d.endMessages++ }
func (d *recordingDisplay) SetRestartStatus(t string)  { d.restartStatus = t }
func (d *recordingDisplay) ShowBonus()                 { d.bonuses++ }

func (d *recordingDisplay) SetScores(_ string, local int, remoteName string, remote int) {
	d.localScore, d.remoteScore, d.remoteName = local, remote, remoteName
}

func (d *recordingDisplay) SetCountdown(value int, visible bool) {
	if visible {
		d.countdowns = append(d.countdowns, value)
	}
}

func (d *recordingDisplay) lastStatus() string {
	if len(d.statuses) == 0 {
		return ""
	}
	return d.statuses[len(d.statuses)-1]
}

// sequenceSeeds hands out 1, 2, 3, ...
func sequenceSeeds() func() int64 {
	var n int64
	return func() int64 {
		n++
		return n
	}
}

type pair struct {
	t       *testing.T
	net     *loopback.Network
	clock   *fakeClock
	host    *Session
	joiner  *Session
	hostUI  *recordingDisplay
	joinUI  *recordingDisplay
	hostTap *tap
	joinTap *tap
}

func testConfig(clock Clock, localID, username string) Config {
	cfg := DefaultConfig()
	cfg.LocalID = localID
	cfg.Username = username
	cfg.Clock = clock
	cfg.World = world.NewFlatArena()
	cfg.SeedSource = sequenceSeeds()
	return cfg
}

// tap records the kinds of messages a session receives, in order.
type tap struct {
	kinds []string
}

func (t *tap) count(kind string) int {
	n := 0
	for _, k := range t.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func newTestSession(clock Clock, factory transport.PeerFactory, localID, username string) (*Session, *recordingDisplay, *tap) {
	ui := &recordingDisplay{}
	received := &tap{}
	s := New(context.Background(), testConfig(clock, localID, username), factory, ui)
	s.AttachSink(transport.EventSinkFunc(func(e transport.Event) {
		if e.Kind == transport.EventData {
			if msg, err := protocol.Decode(e.Data); err == nil {
				received.kinds = append(received.kinds, msg.Kind())
			}
		}
		s.HandleTransportEvent(e)
	}))
	return s, ui, received
}

func newPair(t *testing.T) *pair {
	t.Helper()
	net := loopback.NewManualNetwork()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	p := &pair{t: t, net: net, clock: clock}
	p.host, p.hostUI, p.hostTap = newTestSession(clock, net, "hostid", "Alice")
	p.joiner, p.joinUI, p.joinTap = newTestSession(clock, net, "joinid", "Bob")
	return p
}

func (p *pair) pump() {
	p.net.Pump()
}

// connect runs the whole handshake: room, channel, team assignment.
func (p *pair) connect() {
	p.t.Helper()
	require.NoError(p.t, p.host.CreateRoom("abc123"))
	require.NoError(p.t, p.joiner.JoinRoom("abc123"))
	p.pump()
	require.Equal(p.t, StateTeamAssigned, p.host.State())
	require.Equal(p.t, StateTeamAssigned, p.joiner.State())
}

// run advances time in ticks, pumping the network after each one.
func (p *pair) run(d time.Duration, hostIn, joinIn game.Input) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += testTick {
		p.clock.Advance(testTick)
		p.host.Tick(hostIn)
		p.joiner.Tick(joinIn)
		p.pump()
	}
}

func (p *pair) idle(d time.Duration) {
	p.run(d, game.Input{}, game.Input{})
}

// play connects and waits for the countdown to finish on both sides.
func (p *pair) play() {
	p.t.Helper()
	p.connect()
	p.idle(3*time.Second + testTick)
	require.Equal(p.t, PhasePlaying, p.host.Phase())
	require.Equal(p.t, PhasePlaying, p.joiner.Phase())
}

// separate moves both players apart so no accidental tag happens.
func (p *pair) separate() {
	for _, s := range []*Session{p.host, p.joiner} {
		s.entities[EntityA].Place(game.Vec3{X: -50, Y: 1}, 0)
		s.entities[EntityB].Place(game.Vec3{X: 50, Y: 1}, 0)
	}
}

// overlap puts both entities on top of each other on both peers.
func (p *pair) overlap() {
	for _, s := range []*Session{p.host, p.joiner} {
		s.entities[EntityA].Place(game.Vec3{Y: 1}, 0)
		s.entities[EntityB].Place(game.Vec3{X: 0.5, Y: 1}, 0)
	}
}

// endRound makes the host tag the joiner.
func (p *pair) endRound() {
	p.t.Helper()
	p.overlap()
	p.host.Tick(game.Input{})
	p.pump()
	require.Equal(p.t, PhaseEnded, p.host.Phase())
	require.Equal(p.t, PhaseEnded, p.joiner.Phase())
}

// injector delivers a message straight into a session as if it came from
// the other peer.
func inject(t *testing.T, s *Session, msg protocol.Message, sender string) {
	t.Helper()
	msg.GetHeader().Sender = sender
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	s.onData(data)
}
