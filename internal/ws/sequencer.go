package ws

import (
	"log"
	"runtime/debug"
	"sync"
)

// sequencer runs tasks one at a time per key, in submission order. A key's
// drain goroutine exists only while that key has queued work.
type sequencer struct {
	mu     sync.Mutex
	queues map[int]*serialQueue
}

type serialQueue struct {
	tasks []func()
}

func newSequencer() *sequencer {
	return &sequencer{queues: make(map[int]*serialQueue)}
}

// Do queues fn behind earlier tasks for key and blocks until it has run.
func (s *sequencer) Do(key int, fn func()) {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("ws task panic key=%d: %v\n%s", key, rec, debug.Stack())
			}
		}()
		fn()
	}

	s.mu.Lock()
	q, running := s.queues[key]
	if !running {
		q = &serialQueue{}
		s.queues[key] = q
	}
	q.tasks = append(q.tasks, task)
	s.mu.Unlock()

	if !running {
		go s.drain(key, q)
	}
	<-done
}

func (s *sequencer) drain(key int, q *serialQueue) {
	for {
		s.mu.Lock()
		if len(q.tasks) == 0 {
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		s.mu.Unlock()

		task()
	}
}

func (s *sequencer) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}
