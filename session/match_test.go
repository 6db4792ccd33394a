package session

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"peertag/game"
	"peertag/protocol"
	"testing"
	"time"
)

func TestCountdownStepsDownThenPlays(t *testing.T) {
	p := newPair(t)
	p.connect()

	value, active := p.host.Countdown()
	assert.Equal(t, 3, value)
	assert.True(t, active)

	p.idle(3*time.Second + testTick)

	assert.Equal(t, []int{3, 2, 1}, p.hostUI.countdowns)
	assert.Equal(t, []int{3, 2, 1}, p.joinUI.countdowns)
	assert.Equal(t, PhasePlaying, p.host.Phase())
	_, active = p.host.Countdown()
	assert.False(t, active)
}

func TestSimultaneousTagEndsRoundOnce(t *testing.T) {
	p := newPair(t)
	p.play()
	p.overlap()

	// Both detect the overlap before either tag arrives.
	p.host.Tick(game.Input{})
	p.joiner.Tick(game.Input{})
	p.pump()

	assert.Equal(t, PhaseEnded, p.host.Phase())
	assert.Equal(t, PhaseEnded, p.joiner.Phase())
	assert.Equal(t, 1, p.hostUI.endMessages)
	assert.Equal(t, 1, p.joinUI.endMessages)

	local, remote := p.host.Scores()
	assert.Equal(t, 1, local)
	assert.Equal(t, 0, remote)
	local, remote = p.joiner.Scores()
	assert.Equal(t, 0, local)
	assert.Equal(t, 1, remote)
}

func TestTagEndsRoundOnRemoteSide(t *testing.T) {
	p := newPair(t)
	p.play()
	p.endRound()

	assert.Equal(t, 1, p.joinTap.count(protocol.KindTag))
	_, remote := p.joiner.Scores()
	assert.Equal(t, 1, remote)
	assert.Equal(t, 1, p.joinUI.remoteScore)

	// No movement is simulated once the round is over.
	before := p.joiner.LocalPlayer().Position
	p.run(time.Second, game.Input{}, game.Input{Forward: true})
	assert.Equal(t, before, p.joiner.LocalPlayer().Position)
}

func TestTagDuringCountdownEndsRound(t *testing.T) {
	p := newPair(t)
	p.connect()
	require.Equal(t, PhaseCountdown, p.joiner.Phase())

	inject(t, p.joiner, &protocol.Tag{}, "hostid")
	assert.Equal(t, PhaseEnded, p.joiner.Phase())

	p.idle(4 * time.Second)
	assert.Equal(t, PhaseEnded, p.joiner.Phase())
}

func TestTagBeforeAssignmentIgnored(t *testing.T) {
	p := newPair(t)
	raw := &rawPeer{t: t}
	_, err := p.net.CreateAsHost("abc123", raw)
	require.NoError(t, err)
	require.NoError(t, p.joiner.JoinRoom("abc123"))
	p.pump()

	raw.send(&protocol.Tag{}, "rawhost")
	p.pump()

	assert.Equal(t, PhaseHandshaking, p.joiner.Phase())
	assert.Zero(t, p.joinUI.endMessages)
}

func TestOwnMessagesAreDiscarded(t *testing.T) {
	p := newPair(t)
	p.connect()

	inject(t, p.joiner, &protocol.Tag{}, "joinid")

	assert.Equal(t, PhaseCountdown, p.joiner.Phase())
}

func TestUnknownAndMalformedMessagesAreDropped(t *testing.T) {
	p := newPair(t)
	p.connect()

	p.joiner.onData([]byte(`{"type":"dance","sender":"hostid"}`))
	p.joiner.onData([]byte(`{"sender":"hostid"}`))
	p.joiner.onData([]byte(`not json`))

	assert.Equal(t, PhaseCountdown, p.joiner.Phase())
	assert.Equal(t, protocol.TeamRunner, p.joiner.Team())
}

func TestMovementSetsTargetAndConverges(t *testing.T) {
	p := newPair(t)
	p.play()
	p.separate()

	target := game.Vec3{X: 10, Y: 1, Z: -20}
	inject(t, p.host, &protocol.Movement{X: target.X, Y: target.Y, Z: target.Z, Rotation: 1.5}, "joinid")

	remote := p.host.RemotePlayer()
	got, ok := remote.Target()
	require.True(t, ok)
	assert.Equal(t, target, got)
	assert.Equal(t, 1.5, remote.Yaw)
	assert.NotEqual(t, target, remote.Position)

	for i := 0; i < 120; i++ {
		p.clock.Advance(testTick)
		p.host.Tick(game.Input{})
	}
	assert.InDelta(t, target.X, remote.Position.X, 1e-6)
	assert.InDelta(t, target.Z, remote.Position.Z, 1e-6)
}

func TestMovementBeforeAssignmentIgnored(t *testing.T) {
	p := newPair(t)

	inject(t, p.host, &protocol.Movement{X: 1}, "joinid")

	assert.Nil(t, p.host.RemotePlayer())
}

func TestRunnerEarnsBonusForSustainedSpeed(t *testing.T) {
	p := newPair(t)
	p.play()
	p.separate()

	p.run(3600*time.Millisecond, game.Input{}, game.Input{Forward: true})

	local, _ := p.joiner.Scores()
	assert.Equal(t, 1, local)
	assert.Equal(t, 1, p.joinUI.bonuses)

	_, remote := p.host.Scores()
	assert.Equal(t, 1, remote)
	assert.Equal(t, 1, p.hostUI.bonuses)
	assert.Equal(t, PhasePlaying, p.host.Phase())
}

func TestSlowingDownResetsBonus(t *testing.T) {
	p := newPair(t)
	p.play()
	p.separate()

	p.run(2*time.Second, game.Input{}, game.Input{Forward: true})
	p.run(2*time.Second, game.Input{}, game.Input{})
	p.run(2*time.Second, game.Input{}, game.Input{Forward: true})

	local, _ := p.joiner.Scores()
	assert.Zero(t, local)
}

func TestRunnerIgnoresBonusMessage(t *testing.T) {
	p := newPair(t)
	p.play()

	inject(t, p.joiner, &protocol.Bonus{}, "hostid")

	local, remote := p.joiner.Scores()
	assert.Zero(t, local)
	assert.Zero(t, remote)
	assert.Zero(t, p.joinUI.bonuses)
}

func TestUsernameUpdates(t *testing.T) {
	p := newPair(t)
	p.connect()

	p.joiner.SetUsername("  Bobby ")
	p.pump()
	assert.Equal(t, "Bobby", p.joiner.Username())
	assert.Equal(t, "Bobby", p.host.RemoteUsername())
	assert.Equal(t, "Bobby", p.hostUI.remoteName)
	assert.Equal(t, "Bobby", p.host.RemotePlayer().Name)

	inject(t, p.host, &protocol.Username{Username: ""}, "joinid")
	assert.Equal(t, DefaultUsername, p.host.RemoteUsername())

	p.joiner.SetUsername("   ")
	assert.Equal(t, "Bobby", p.joiner.Username())
}

func TestJumpOnlyWhilePlaying(t *testing.T) {
	p := newPair(t)
	p.connect()
	assert.False(t, p.joiner.Jump())

	p.idle(3*time.Second + testTick)
	assert.True(t, p.joiner.Jump())
}
