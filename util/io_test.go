package util

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
)

func TestReadCommandsSplitsLines(t *testing.T) {
	var got [][]string
	err := ReadCommands(context.Background(), strings.NewReader("name Bob\n\n  restart \njump"), func(fields []string) {
		got = append(got, fields)
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"name", "Bob"}, {"restart"}, {"jump"}}, got)
}

func TestReadCommandsStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := ReadCommands(ctx, strings.NewReader("jump\n"), func([]string) { calls++ })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
