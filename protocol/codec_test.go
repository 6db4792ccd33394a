package protocol

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestEncodeStampsType(t *testing.T) {
	data, err := Encode(&Username{Header: Header{Sender: "abc"}, Username: "Alice"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"username","sender":"abc","username":"Alice"}`, string(data))
}

func TestEncodeOmitsAbsentSeed(t *testing.T) {
	data, err := Encode(&TeamAssignment{Header: Header{Sender: "h"}, Team: TeamTagger})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"teamAssignment","sender":"h","team":"tagger"}`, string(data))
}

func TestDecodeMovement(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"movement","sender":"p2","x":1.5,"y":2,"z":-3,"rotation":0.25}`))
	require.NoError(t, err)

	mv, ok := msg.(*Movement)
	require.True(t, ok)
	assert.Equal(t, "p2", mv.Sender)
	assert.Equal(t, 1.5, mv.X)
	assert.Equal(t, -3.0, mv.Z)
	assert.Equal(t, 0.25, mv.Rotation)
}

func TestDecodeTeamAssignmentWithSeed(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"teamAssignment","sender":"h","team":"tagger","seed":42}`))
	require.NoError(t, err)

	ta := msg.(*TeamAssignment)
	assert.Equal(t, TeamTagger, ta.Team)
	require.NotNil(t, ta.Seed)
	assert.EqualValues(t, 42, *ta.Seed)
}

func TestDecodeLegacyTeamNames(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"teamAssignment","sender":"h","team":"red"}`))
	require.NoError(t, err)
	assert.Equal(t, TeamTagger, msg.(*TeamAssignment).Team)

	msg, err = Decode([]byte(`{"type":"swap","sender":"h","team":"blue"}`))
	require.NoError(t, err)
	assert.Equal(t, TeamRunner, msg.(*Swap).Team)
}

func TestDecodeResumeAsSwap(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"resume","sender":"h"}`))
	require.NoError(t, err)

	swap, ok := msg.(*Swap)
	require.True(t, ok)
	assert.Equal(t, KindResume, swap.Kind())
	assert.Equal(t, TeamNone, swap.Team)
}

func TestDecodeUnknownKind(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"emote","sender":"x","name":"wave"}`))
	require.NoError(t, err)

	unknown, ok := msg.(*UnknownMessage)
	require.True(t, ok)
	assert.Equal(t, "emote", unknown.Kind())
	assert.Contains(t, string(unknown.Raw), "wave")
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"sender":"x"}`))
	assert.ErrorIs(t, err, ErrMissingType)

	_, err = Decode([]byte(`{"type":"teamAssignment","team":"green"}`))
	assert.Error(t, err)
}

func TestTeamOpposite(t *testing.T) {
	assert.Equal(t, TeamRunner, TeamTagger.Opposite())
	assert.Equal(t, TeamTagger, TeamRunner.Opposite())
	assert.Equal(t, TeamNone, TeamNone.Opposite())
	assert.False(t, TeamNone.IsAssigned())
	assert.Equal(t, "unassigned", TeamNone.String())
}
