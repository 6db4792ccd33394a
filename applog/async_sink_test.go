package applog

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"testing"
	"time"
)

// blockingCore stalls every write until release is closed.
type blockingCore struct {
	zapcore.LevelEnabler
	release chan struct{}
}

func (c *blockingCore) With([]zap.Field) zapcore.Core { return c }
func (c *blockingCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return ce.AddCore(e, c)
}
func (c *blockingCore) Write(zapcore.Entry, []zap.Field) error {
	<-c.release
	return nil
}
func (c *blockingCore) Sync() error { return nil }

func TestAsyncSinkWritesAfterShutdown(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := newAsyncSink(core, 16)

	logger := zap.New(sink).With(zap.String("session", "s1"))
	logger.Info("first")
	logger.Warn("second", zap.Int("n", 2))

	sink.Shutdown(time.Second)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, "s1", entries[0].ContextMap()["session"])
	assert.EqualValues(t, 2, entries[1].ContextMap()["n"])
}

func TestAsyncSinkRespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := newAsyncSink(core, 4)

	assert.False(t, sink.Enabled(zapcore.InfoLevel))
	assert.True(t, sink.Enabled(zapcore.ErrorLevel))

	logger := zap.New(sink)
	logger.Info("filtered")
	logger.Error("kept")
	sink.Shutdown(time.Second)

	assert.Equal(t, 1, logs.Len())
}

func TestAsyncSinkOverflowReturnsError(t *testing.T) {
	core := &blockingCore{LevelEnabler: zapcore.DebugLevel, release: make(chan struct{})}
	sink := newAsyncSink(core, 1)

	entry := zapcore.Entry{Level: zapcore.InfoLevel, Message: "x"}
	var overflow error
	for i := 0; i < 10 && overflow == nil; i++ {
		overflow = sink.Write(entry, nil)
	}

	require.Error(t, overflow)
	assert.Contains(t, overflow.Error(), "channel log buffer overflow (capacity: 1)")

	close(core.release)
	sink.Shutdown(time.Second)
}

func TestAsyncSinkWithSharesQueue(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := newAsyncSink(core, 8)

	child := sink.With([]zap.Field{zap.String("a", "1")}).(*asyncSink)
	grandChild := child.With([]zap.Field{zap.String("b", "2")}).(*asyncSink)

	assert.Equal(t, sink.entryChan, grandChild.entryChan)
	assert.Len(t, grandChild.extraFields, 2)
	assert.Empty(t, sink.extraFields)

	require.NoError(t, grandChild.Write(zapcore.Entry{Message: "m"}, nil))
	sink.Shutdown(time.Second)

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "1", ctx["a"])
	assert.Equal(t, "2", ctx["b"])
}

func TestAsyncSinkShutdownIsIdempotent(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	sink := newAsyncSink(core, 1)

	sink.Shutdown(time.Second)
	assert.NotPanics(t, func() { sink.Shutdown(time.Second) })
}
