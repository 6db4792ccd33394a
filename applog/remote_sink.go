package applog

import (
	"fmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sync"
	"sync/atomic"
	"time"
)

type remoteSink struct {
	sender    RemoteLogSender
	entryChan chan *LogEntry
	quit      chan struct{}
	quitOnce  sync.Once
	wg        sync.WaitGroup
	batch     []*LogEntry
	batchSize int
	encoder   zapcore.Encoder
}

func newRemoteSink(sender RemoteLogSender, bufferSize int, encoderConfig zapcore.EncoderConfig) *remoteSink {
	s := &remoteSink{
		sender:    sender,
		entryChan: make(chan *LogEntry, bufferSize),
		quit:      make(chan struct{}),
		encoder:   zapcore.NewJSONEncoder(encoderConfig),
	}

	s.wg.Add(1)
	go s.process()
	return s
}

func (rs *remoteSink) Write(entry *LogEntry) error {
	select {
	case rs.entryChan <- entry:
		return nil
	default:
		return fmt.Errorf("remote log buffer overflow (capacity: %d)", cap(rs.entryChan))
	}
}

func (rs *remoteSink) process() {
	defer rs.wg.Done()
	for {
		select {
		case entry := <-rs.entryChan:
			rs.add(entry)
		case <-rs.quit:
			for {
				select {
				case entry := <-rs.entryChan:
					rs.add(entry)
				default:
					rs.flush()
					return
				}
			}
		}
	}
}

func (rs *remoteSink) add(entry *LogEntry) {
	entrySize := rs.getEntrySize(entry)
	if entrySize <= 0 {
		NoRemote().Error(
			"Failed to get log entry size for remoteSink, unserializable entry; dropping",
			zap.Any("entry", entry),
		)
		return
	}

	// Send what is buffered first if the new entry would overflow the batch.
	if rs.batchSize+entrySize > remoteSinkBatchSizeLimit && len(rs.batch) > 0 {
		rs.flush()
	}
	rs.batch = append(rs.batch, entry)
	rs.batchSize += entrySize

	if rs.batchSize >= remoteSinkBatchSizeLimit {
		rs.flush()
	}
}

func (rs *remoteSink) getEntrySize(e *LogEntry) int {
	if e == nil || e.Entry == nil {
		return 0
	}

	buf, err := rs.encoder.EncodeEntry(*e.Entry, e.Fields)
	if err != nil {
		return 0
	}
	defer buf.Free()

	return buf.Len()
}

func (rs *remoteSink) flush() {
	if len(rs.batch) == 0 {
		return
	}

	if err := rs.sender.WriteLogEntryToRemote(rs.batch); err != nil {
		NoRemote().Warn("Failed to upload log batch",
			zap.Int("entries", len(rs.batch)),
			zap.Error(err),
		)
		return
	}

	rs.batch = nil
	rs.batchSize = 0
}

func (rs *remoteSink) Shutdown(timeout time.Duration) {
	rs.quitOnce.Do(func() {
		close(rs.quit)
	})

	done := make(chan struct{})
	go func() {
		rs.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// remoteCore is the zap side of the remote sink: it is always part of the
// global tee and forwards only while a sender is configured.
type remoteCore struct {
	zapcore.LevelEnabler
	fields []zap.Field
}

func newRemoteCore(enabler zapcore.LevelEnabler) *remoteCore {
	return &remoteCore{LevelEnabler: enabler}
}

func (c *remoteCore) With(fields []zap.Field) zapcore.Core {
	merged := make([]zap.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &remoteCore{LevelEnabler: c.LevelEnabler, fields: merged}
}

func (c *remoteCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

func (c *remoteCore) Write(entry zapcore.Entry, fields []zap.Field) error {
	if atomic.LoadInt32(&acceptingLogs) == 0 {
		return nil
	}

	remoteMu.RLock()
	rs := remoteSinkInstance
	remoteMu.RUnlock()
	if rs == nil {
		return nil
	}

	all := make([]zap.Field, 0, len(c.fields)+len(fields))
	all = append(all, c.fields...)
	all = append(all, fields...)
	return rs.Write(&LogEntry{Entry: &entry, Fields: all})
}

func (c *remoteCore) Sync() error {
	return nil
}
