package applog

import (
	"fmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sync"
	"time"
)

// asyncSink decouples the caller from a slow writer (a blocked stdout pipe
// must never stall the simulation loop). Entries beyond the buffer are
// rejected instead of blocking.
type asyncSink struct {
	core        zapcore.Core
	extraFields []zap.Field
	entryChan   chan *LogEntry
	quit        chan struct{}
	quitOnce    *sync.Once
	wg          *sync.WaitGroup
}

func newAsyncSink(core zapcore.Core, bufferSize int) *asyncSink {
	s := &asyncSink{
		core:      core,
		entryChan: make(chan *LogEntry, bufferSize),
		quit:      make(chan struct{}),
		quitOnce:  &sync.Once{},
		wg:        &sync.WaitGroup{},
	}

	s.wg.Add(1)
	go s.process()
	return s
}

func (s *asyncSink) process() {
	defer s.wg.Done()
	for {
		select {
		case entry := <-s.entryChan:
			s.writeEntry(entry)
		case <-s.quit:
			for {
				select {
				case entry := <-s.entryChan:
					s.writeEntry(entry)
				default:
					_ = s.core.Sync()
					return
				}
			}
		}
	}
}

func (s *asyncSink) writeEntry(entry *LogEntry) {
	if entry == nil || entry.Entry == nil {
		return
	}
	_ = s.core.Write(*entry.Entry, entry.Fields)
}

func (s *asyncSink) Sync() error {
	return s.core.Sync()
}

func (s *asyncSink) Write(entry zapcore.Entry, fields []zap.Field) error {
	all := fields
	if len(s.extraFields) > 0 {
		all = make([]zap.Field, 0, len(s.extraFields)+len(fields))
		all = append(all, s.extraFields...)
		all = append(all, fields...)
	}

	select {
	case s.entryChan <- &LogEntry{Entry: &entry, Fields: all}:
	default:
		return fmt.Errorf("channel log buffer overflow (capacity: %d)", cap(s.entryChan))
	}
	return nil
}

func (s *asyncSink) Enabled(lvl zapcore.Level) bool {
	return s.core.Enabled(lvl)
}

// With keeps the shared queue and worker; fields are prepended on Write so
// the underlying core stays unmodified.
func (s *asyncSink) With(fields []zap.Field) zapcore.Core {
	extra := make([]zap.Field, 0, len(s.extraFields)+len(fields))
	extra = append(extra, s.extraFields...)
	extra = append(extra, fields...)

	return &asyncSink{
		core:        s.core,
		extraFields: extra,
		entryChan:   s.entryChan,
		quit:        s.quit,
		quitOnce:    s.quitOnce,
		wg:          s.wg,
	}
}

func (s *asyncSink) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if s.Enabled(entry.Level) {
		return ce.AddCore(entry, s)
	}
	return ce
}

func (s *asyncSink) Shutdown(timeout time.Duration) {
	s.quitOnce.Do(func() {
		close(s.quit)
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
