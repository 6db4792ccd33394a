package util

import (
	"context"
	"sync"
	"time"
)

// ShutdownJob hands out a context that stays alive after its parent is
// cancelled, until either Done is called or the grace period runs out.
// Cleanup that still needs the network, like leaving the rendezvous
// server, runs on it.
type ShutdownJob struct {
	jobDone chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

func (j *ShutdownJob) Done() {
	j.once.Do(func() {
		close(j.jobDone)
	})
}

func (j *ShutdownJob) Context() context.Context {
	return j.ctx
}

func DelayedCancelContextWithJob(parent context.Context, grace time.Duration) *ShutdownJob {
	jobDone := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-parent.Done():
		case <-jobDone:
			cancel()
			return
		}

		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-jobDone:
		case <-timer.C:
		}
		cancel()
	}()

	return &ShutdownJob{
		ctx:     ctx,
		cancel:  cancel,
		jobDone: jobDone,
	}
}
