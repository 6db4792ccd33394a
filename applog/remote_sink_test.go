package applog

import (
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"strings"
	"testing"
	"time"
)

func newTestEntry(msg string) *LogEntry {
	return &LogEntry{
		Entry:  &zapcore.Entry{Level: zapcore.InfoLevel, Time: time.Unix(0, 0), Message: msg},
		Fields: []zap.Field{zap.String("k", "v")},
	}
}

func TestRemoteSinkFlushesOnShutdown(t *testing.T) {
	sender := &fakeRemoteLogSender{}
	rs := newRemoteSink(sender, 16, getEncoderConfig())

	require.NoError(t, rs.Write(newTestEntry("one")))
	require.NoError(t, rs.Write(newTestEntry("two")))
	rs.Shutdown(time.Second)

	entries := sender.entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "one", entries[0].Entry.Message)
	assert.Equal(t, "two", entries[1].Entry.Message)
}

func TestRemoteSinkSplitsBatchesBySize(t *testing.T) {
	sender := &fakeRemoteLogSender{}
	rs := newRemoteSink(sender, 64, getEncoderConfig())

	big := strings.Repeat("x", remoteSinkBatchSizeLimit/3)
	for i := 0; i < 6; i++ {
		require.NoError(t, rs.Write(newTestEntry(big)))
	}
	rs.Shutdown(time.Second)

	sender.mu.Lock()
	batches := len(sender.batches)
	sender.mu.Unlock()

	assert.Greater(t, batches, 1)
	assert.Len(t, sender.entries(), 6)
}

func TestRemoteSinkDropsUnserializableEntries(t *testing.T) {
	sender := &fakeRemoteLogSender{}
	rs := newRemoteSink(sender, 4, getEncoderConfig())

	require.NoError(t, rs.Write(&LogEntry{}))
	rs.Shutdown(time.Second)

	assert.Empty(t, sender.entries())
}

func TestRemoteSinkKeepsBatchWhenSenderFails(t *testing.T) {
	sender := &fakeRemoteLogSender{err: errors.New("offline")}
	rs := newRemoteSink(sender, 4, getEncoderConfig())

	require.NoError(t, rs.Write(newTestEntry("kept")))
	rs.Shutdown(time.Second)

	assert.Empty(t, sender.entries())
	assert.Len(t, rs.batch, 1)
}

func TestRemoteSinkOverflow(t *testing.T) {
	rs := &remoteSink{entryChan: make(chan *LogEntry, 1)}

	require.NoError(t, rs.Write(newTestEntry("a")))
	err := rs.Write(newTestEntry("b"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote log buffer overflow (capacity: 1)")
}
