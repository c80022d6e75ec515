package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"groupchat-service/internal/models"
)

var (
	errConnClosed = errors.New("connection closed")
	errQueueFull  = errors.New("outbound queue full")
)

// ConnInfo is handshake metadata carried into lifecycle events and audit records.
type ConnInfo struct {
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Connection is one authenticated realtime session. UserID never changes
// after construction; the joined room set is mutated only by the RoomTable.
type Connection struct {
	ID     string
	UserID int
	Info   ConnInfo

	mu     sync.Mutex
	rooms  map[int]struct{}
	send   chan []byte
	closed bool
	kick   func()
}

// NewConnection creates an open connection with a bounded outbound queue.
func NewConnection(userID int, info ConnInfo, buffer int) *Connection {
	if buffer <= 0 {
		buffer = 1
	}
	if info.ConnectedAt.IsZero() {
		info.ConnectedAt = time.Now()
	}
	return &Connection{
		ID:     uuid.NewString(),
		UserID: userID,
		Info:   info,
		rooms:  make(map[int]struct{}),
		send:   make(chan []byte, buffer),
	}
}

// Outbound yields encoded frames for the writer. It is closed on teardown.
func (c *Connection) Outbound() <-chan []byte {
	return c.send
}

// Send encodes and queues a single event for this connection only.
func (c *Connection) Send(event models.OutboundEvent) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws encode error conn_id=%s type=%s: %v", c.ID, event.Type, err)
		return false
	}
	err = c.enqueue(payload)
	if errors.Is(err, errQueueFull) {
		log.Printf("ws outbound queue full conn_id=%s user_id=%d, kicking", c.ID, c.UserID)
		c.Kick()
	}
	return err == nil
}

func (c *Connection) enqueue(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errQueueFull
	}
}

// SetKick installs the function that force-closes the underlying transport.
func (c *Connection) SetKick(fn func()) {
	c.mu.Lock()
	c.kick = fn
	c.mu.Unlock()
}

// Kick closes the transport so the read loop tears the session down.
func (c *Connection) Kick() {
	c.mu.Lock()
	fn := c.kick
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Closed reports whether teardown has started.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// markClosed flips the connection to closed exactly once and closes the
// outbound queue. It reports whether this call did the flip.
func (c *Connection) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

func (c *Connection) addRoom(groupID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.rooms[groupID] = struct{}{}
	return true
}

func (c *Connection) removeRoom(groupID int) {
	c.mu.Lock()
	delete(c.rooms, groupID)
	c.mu.Unlock()
}

func (c *Connection) roomIDs() []int {
	c.mu.Lock()
	ids := make([]int, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Ints(ids)
	return ids
}
