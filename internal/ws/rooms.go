package ws

import (
	"log"
	"sort"
	"sync"
)

// room's subs and dead are guarded by mu. A dead room has been unlinked from
// the table and must not be used; callers look it up again.
type room struct {
	mu   sync.Mutex
	subs map[*Connection]struct{}
	dead bool
}

// RoomTable maps group ids to their live subscribers. Each connection keeps
// the mirror set of its joined rooms, and both sides change under the room's
// lock, so R ∈ roomsOf(C) ⇔ C ∈ subscribers(R) holds whenever no call is in
// flight. Lock order is room.mu, then Connection.mu; table.mu is never held
// while acquiring a room lock.
type RoomTable struct {
	mu    sync.Mutex
	rooms map[int]*room
}

func NewRoomTable() *RoomTable {
	return &RoomTable{rooms: make(map[int]*room)}
}

// lockRoom returns the room locked, creating it when create is set. It
// returns nil if the room does not exist and create is false.
func (t *RoomTable) lockRoom(groupID int, create bool) *room {
	for {
		t.mu.Lock()
		r, ok := t.rooms[groupID]
		if !ok {
			if !create {
				t.mu.Unlock()
				return nil
			}
			r = &room{subs: make(map[*Connection]struct{})}
			t.rooms[groupID] = r
		}
		t.mu.Unlock()

		r.mu.Lock()
		if !r.dead {
			return r
		}
		r.mu.Unlock()
	}
}

// unlockRoom releases the room, unlinking it first if it has no subscribers.
func (t *RoomTable) unlockRoom(groupID int, r *room) {
	if len(r.subs) == 0 {
		r.dead = true
		t.mu.Lock()
		if t.rooms[groupID] == r {
			delete(t.rooms, groupID)
		}
		t.mu.Unlock()
	}
	r.mu.Unlock()
}

// Join subscribes conn to the room. Closed connections are refused.
func (t *RoomTable) Join(conn *Connection, groupID int) bool {
	r := t.lockRoom(groupID, true)
	defer t.unlockRoom(groupID, r)
	if !conn.addRoom(groupID) {
		return false
	}
	r.subs[conn] = struct{}{}
	return true
}

// Leave unsubscribes conn from the room. Leaving a room not joined is a no-op.
func (t *RoomTable) Leave(conn *Connection, groupID int) {
	r := t.lockRoom(groupID, false)
	if r == nil {
		conn.removeRoom(groupID)
		return
	}
	delete(r.subs, conn)
	conn.removeRoom(groupID)
	t.unlockRoom(groupID, r)
}

// LeaveAll unsubscribes conn everywhere and returns the rooms it left.
func (t *RoomTable) LeaveAll(conn *Connection) []int {
	ids := conn.roomIDs()
	for _, id := range ids {
		t.Leave(conn, id)
	}
	return ids
}

// Subscribers returns a snapshot of the room's connections.
func (t *RoomTable) Subscribers(groupID int) []*Connection {
	r := t.lockRoom(groupID, false)
	if r == nil {
		return nil
	}
	defer r.mu.Unlock()
	conns := make([]*Connection, 0, len(r.subs))
	for c := range r.subs {
		conns = append(conns, c)
	}
	return conns
}

// HasSubscribers reports whether the room currently exists.
func (t *RoomTable) HasSubscribers(groupID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.rooms[groupID]
	return ok
}

// RoomsOf returns the rooms conn has joined, sorted.
func (t *RoomTable) RoomsOf(conn *Connection) []int {
	return conn.roomIDs()
}

// RoomIDs lists every room with at least one subscriber, sorted.
func (t *RoomTable) RoomIDs() []int {
	t.mu.Lock()
	ids := make([]int, 0, len(t.rooms))
	for id := range t.rooms {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	sort.Ints(ids)
	return ids
}

// Broadcast queues payload to every subscriber accepted by allow. The room
// stays locked for the whole fan-out, so two broadcasts to one room reach
// each subscriber in the same order. Subscribers with a full queue are kicked
// after the lock is released. It returns the number of connections reached.
func (t *RoomTable) Broadcast(groupID int, payload []byte, allow func(*Connection) bool) int {
	r := t.lockRoom(groupID, false)
	if r == nil {
		return 0
	}

	delivered := 0
	var slow []*Connection
	for c := range r.subs {
		if allow != nil && !allow(c) {
			continue
		}
		switch err := c.enqueue(payload); err {
		case nil:
			delivered++
		case errQueueFull:
			slow = append(slow, c)
		}
	}
	r.mu.Unlock()

	for _, c := range slow {
		log.Printf("ws outbound queue full conn_id=%s user_id=%d group_id=%d, kicking", c.ID, c.UserID, groupID)
		c.Kick()
	}
	return delivered
}
