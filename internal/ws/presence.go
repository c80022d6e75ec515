package ws

import (
	"sync"
	"time"
)

// Presence is a point-in-time view of a user's presence record.
type Presence struct {
	Online   bool
	LastSeen time.Time
}

type presenceRecord struct {
	conns    int
	lastSeen time.Time
}

// PresenceStore derives online state from live connection counts. Records
// are created on first connect and kept afterwards as last-seen history.
type PresenceStore struct {
	mu      sync.Mutex
	records map[int]*presenceRecord
	online  int
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{records: make(map[int]*presenceRecord)}
}

// SetOnline registers one more live connection and reports whether the user
// just came online.
func (p *PresenceStore) SetOnline(userID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[userID]
	if !ok {
		rec = &presenceRecord{}
		p.records[userID] = rec
	}
	rec.conns++
	rec.lastSeen = time.Now()
	if rec.conns == 1 {
		p.online++
		return true
	}
	return false
}

// SetOffline releases one live connection and reports whether it was the last.
func (p *PresenceStore) SetOffline(userID int, lastSeen time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[userID]
	if !ok || rec.conns == 0 {
		return false
	}
	rec.conns--
	if rec.conns > 0 {
		return false
	}
	rec.lastSeen = lastSeen
	p.online--
	return true
}

func (p *PresenceStore) IsOnline(userID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[userID]
	return ok && rec.conns > 0
}

// Lookup returns the user's record, if the user ever connected.
func (p *PresenceStore) Lookup(userID int) (Presence, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[userID]
	if !ok {
		return Presence{}, false
	}
	return Presence{Online: rec.conns > 0, LastSeen: rec.lastSeen}, true
}

// LastSeen returns the last time the user connected or disconnected.
func (p *PresenceStore) LastSeen(userID int) (time.Time, bool) {
	rec, ok := p.Lookup(userID)
	return rec.LastSeen, ok
}

// OnlineCount returns how many users currently have a live connection.
func (p *PresenceStore) OnlineCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}
