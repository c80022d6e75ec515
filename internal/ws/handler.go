package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"groupchat-service/internal/config"
	"groupchat-service/internal/observability"
)

const lifecycleRoutingKey = "ws_events.groups"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Options tunes the transport of each session.
type Options struct {
	MaxMessageSize int64
	RateLimit      config.RateLimit
}

// Handler upgrades authenticated requests to realtime sessions.
type Handler struct {
	manager *Manager
	router  *Router
	opts    Options
}

// NewHandler constructs a Handler.
func NewHandler(manager *Manager, router *Router, opts Options) *Handler {
	return &Handler{manager: manager, router: router, opts: opts}
}

// Handle authenticates the handshake, upgrades the connection and starts its pumps.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	info := ConnInfo{
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	conn, err := h.manager.Connect(ctx, Handshake{
		Credential: observability.BearerTokenFromRequest(c.Request),
		Info:       info,
	})
	if err != nil {
		observability.IncWSRejected("handshake", "unauthenticated")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.manager.Disconnect(ctx, conn)
		return
	}
	conn.SetKick(func() { _ = ws.Close() })

	// The session outlives the request; keep only its trace linkage.
	session := trace.ContextWithSpanContext(context.Background(), span.SpanContext())

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	publishLifecycle(session, "ws_connect", conn, "")

	go writePump(ws, conn)
	go func() {
		reason, abnormal := h.readPump(session, ws, conn)
		if abnormal {
			observability.IncWSEvent("ws_error")
			publishLifecycle(session, "ws_error", conn, reason)
		}
		h.manager.Disconnect(session, conn)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		publishLifecycle(session, "ws_disconnect", conn, reason)
		_ = ws.Close()
	}()
}

func publishLifecycle(ctx context.Context, event string, conn *Connection, reason string) {
	_ = observability.PublishEvent(ctx, lifecycleRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        "group",
				"event":       event,
				"conn_id":     conn.ID,
				"duration_ms": time.Since(conn.Info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   conn.UserID,
				"device_id": conn.Info.DeviceID,
				"ip":        conn.Info.IP,
			},
		},
	}, observability.BuildHeaders(conn.Info.RequestID, conn.Info.TraceID))
}
