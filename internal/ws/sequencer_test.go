package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencerRunsKeyInOrder(t *testing.T) {
	s := newSequencer()
	var mu sync.Mutex
	var got []int

	first := make(chan struct{})
	release := make(chan struct{})
	go s.Do(1, func() {
		close(first)
		<-release
		mu.Lock()
		got = append(got, 0)
		mu.Unlock()
	})
	<-first

	var wg sync.WaitGroup
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Do(1, func() {
				mu.Lock()
				got = append(got, i)
				mu.Unlock()
			})
		}(i)
		// Submission order is what the queue preserves.
		require.Eventually(t, func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			return len(s.queues[1].tasks) == i
		}, time.Second, time.Millisecond)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, got)
	require.Eventually(t, func() bool { return s.pending() == 0 }, time.Second, time.Millisecond)
}

func TestSequencerKeysRunIndependently(t *testing.T) {
	s := newSequencer()
	blocked := make(chan struct{})
	release := make(chan struct{})
	go s.Do(1, func() {
		close(blocked)
		<-release
	})
	<-blocked

	done := make(chan struct{})
	go func() {
		s.Do(2, func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("key 2 waited on key 1")
	}
	close(release)
}

func TestSequencerRecoversPanic(t *testing.T) {
	s := newSequencer()
	s.Do(3, func() { panic("boom") })

	ran := false
	s.Do(3, func() { ran = true })
	assert.True(t, ran)
}
