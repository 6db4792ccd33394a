package session

import (
	"sort"
	"time"
)

// Task is a cancellable timer owned by the session. Tasks only fire from
// Scheduler.Run, so their callbacks run on the session goroutine.
type Task struct {
	name      string
	due       time.Time
	interval  time.Duration
	fn        func(now time.Time)
	cancelled bool
	fired     bool
}

func (t *Task) Cancel() {
	if t != nil {
		t.cancelled = true
	}
}

// Active reports whether the task may still fire.
func (t *Task) Active() bool {
	return t != nil && !t.cancelled && (t.interval > 0 || !t.fired)
}

func (t *Task) Name() string {
	return t.name
}

type Scheduler struct {
	tasks []*Task
}

// After runs fn once, delay after now.
func (s *Scheduler) After(name string, now time.Time, delay time.Duration, fn func(now time.Time)) *Task {
	t := &Task{name: name, due: now.Add(delay), fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// Every runs fn each interval, the first time one interval after now.
func (s *Scheduler) Every(name string, now time.Time, interval time.Duration, fn func(now time.Time)) *Task {
	t := &Task{name: name, due: now.Add(interval), interval: interval, fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// Run fires every task due at now in deadline order. A repeating task fires
// at most once per Run; missed periods are skipped. Tasks scheduled by
// callbacks wait for the next Run.
func (s *Scheduler) Run(now time.Time) int {
	due := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.Active() && !t.due.After(now) {
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].due.Before(due[j].due)
	})

	fired := 0
	for _, t := range due {
		// An earlier callback may have cancelled it.
		if !t.Active() {
			continue
		}
		if t.interval > 0 {
			for !t.due.After(now) {
				t.due = t.due.Add(t.interval)
			}
		} else {
			t.fired = true
		}
		t.fn(now)
		fired++
	}

	s.compact()
	return fired
}

func (s *Scheduler) CancelAll() {
	for _, t := range s.tasks {
		t.Cancel()
	}
	s.tasks = nil
}

func (s *Scheduler) Pending() int {
	n := 0
	for _, t := range s.tasks {
		if t.Active() {
			n++
		}
	}
	return n
}

func (s *Scheduler) compact() {
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if t.Active() {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(s.tasks); i++ {
		s.tasks[i] = nil
	}
	s.tasks = kept
}
