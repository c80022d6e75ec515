package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceCountsConnections(t *testing.T) {
	p := NewPresenceStore()

	assert.True(t, p.SetOnline(1))
	assert.False(t, p.SetOnline(1))
	assert.Equal(t, 1, p.OnlineCount())

	assert.False(t, p.SetOffline(1, time.Now()))
	assert.True(t, p.IsOnline(1))

	seen := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.True(t, p.SetOffline(1, seen))
	assert.False(t, p.IsOnline(1))
	assert.Equal(t, 0, p.OnlineCount())

	rec, ok := p.Lookup(1)
	require.True(t, ok)
	assert.False(t, rec.Online)
	assert.Equal(t, seen, rec.LastSeen)

	last, ok := p.LastSeen(1)
	require.True(t, ok)
	assert.Equal(t, seen, last)
	_, ok = p.LastSeen(2)
	assert.False(t, ok)
}

func TestPresenceOfflineWithoutConnection(t *testing.T) {
	p := NewPresenceStore()
	assert.False(t, p.SetOffline(42, time.Now()))

	_, ok := p.Lookup(42)
	assert.False(t, ok)

	p.SetOnline(42)
	p.SetOffline(42, time.Now())
	assert.False(t, p.SetOffline(42, time.Now()))
	assert.Equal(t, 0, p.OnlineCount())
}

func TestPresenceConcurrent(t *testing.T) {
	p := NewPresenceStore()
	const users, conns = 8, 50

	var wg sync.WaitGroup
	for u := 1; u <= users; u++ {
		for i := 0; i < conns; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				p.SetOnline(id)
			}(u)
		}
	}
	wg.Wait()
	assert.Equal(t, users, p.OnlineCount())

	var offline sync.Map
	for u := 1; u <= users; u++ {
		for i := 0; i < conns; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				if p.SetOffline(id, time.Now()) {
					_, dup := offline.LoadOrStore(id, true)
					assert.False(t, dup, "user %d went offline twice", id)
				}
			}(u)
		}
	}
	wg.Wait()
	assert.Equal(t, 0, p.OnlineCount())
	for u := 1; u <= users; u++ {
		_, ok := offline.Load(u)
		assert.True(t, ok)
	}
}
