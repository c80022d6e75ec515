package ws

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// readPump decodes frames and dispatches them until the transport fails. It
// returns the close reason and whether the close was abnormal.
func (h *Handler) readPump(ctx context.Context, ws *websocket.Conn, conn *Connection) (string, bool) {
	if h.opts.MaxMessageSize > 0 {
		ws.SetReadLimit(h.opts.MaxMessageSize)
	}
	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("ws set read deadline failed conn_id=%s: %v", conn.ID, err)
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := newRateLimiter(h.opts.RateLimit.Burst, h.opts.RateLimit.RefillInterval)
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return err.Error(), isAbnormalClose(err)
		}

		if !limiter.allow() {
			log.Printf("ws rate limit exceeded conn_id=%s user_id=%d; discarding frame", conn.ID, conn.UserID)
			h.router.Reject(conn, "rate_limited")
			continue
		}

		ev, err := ParseInbound(raw)
		if err != nil {
			log.Printf("ws invalid frame conn_id=%s user_id=%d: %v", conn.ID, conn.UserID, err)
			h.router.Reject(conn, "invalid")
			continue
		}
		h.router.Dispatch(ctx, conn, ev)
	}
}

func isAbnormalClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return false
	}
	return true
}

// writePump drains the connection's outbound queue onto the socket and keeps
// it alive with pings. It exits when the queue is closed or a write fails.
func writePump(ws *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case payload, ok := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error conn_id=%s: %v", conn.ID, err)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("websocket ping error conn_id=%s: %v", conn.ID, err)
				return
			}
		}
	}
}
