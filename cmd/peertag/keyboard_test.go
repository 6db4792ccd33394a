package main

import (
	"github.com/stretchr/testify/assert"
	"peertag/game"
	"peertag/session"
	"testing"
)

type countingPoster struct {
	posts int
}

func (p *countingPoster) Do(func(*session.Session)) bool {
	p.posts++
	return true
}

func TestParseKeys(t *testing.T) {
	assert.Equal(t, game.Input{Forward: true, Left: true}, parseKeys("WA"))
	assert.Equal(t, game.Input{Backward: true, Right: true}, parseKeys("sdx"))
	assert.Equal(t, game.Input{}, parseKeys(""))
}

func TestKeyboardHoldsKeysUntilStop(t *testing.T) {
	k := &keyboardController{}
	p := &countingPoster{}

	k.handle(p, []string{"hold", "w"})
	in, jump := k.Next(nil)
	assert.Equal(t, game.Input{Forward: true}, in)
	assert.False(t, jump)

	in, _ = k.Next(nil)
	assert.True(t, in.Forward)

	k.handle(p, []string{"stop"})
	in, _ = k.Next(nil)
	assert.Equal(t, game.Input{}, in)
	assert.Zero(t, p.posts)
}

func TestKeyboardJumpFiresOnce(t *testing.T) {
	k := &keyboardController{}
	k.handle(&countingPoster{}, []string{"jump"})

	_, jump := k.Next(nil)
	assert.True(t, jump)
	_, jump = k.Next(nil)
	assert.False(t, jump)
}

func TestKeyboardPostsSessionCommands(t *testing.T) {
	k := &keyboardController{}
	p := &countingPoster{}

	k.handle(p, []string{"restart"})
	k.handle(p, []string{"name", "Big", "Bob"})
	k.handle(p, []string{"status"})
	k.handle(p, []string{"dance"})
	assert.Equal(t, 3, p.posts)
}
