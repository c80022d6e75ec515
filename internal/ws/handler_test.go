package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat-service/internal/auth"
	"groupchat-service/internal/config"
	"groupchat-service/internal/models"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*httptest.Server, *testService, *auth.JWTVerifier) {
	t.Helper()
	s := newTestService(t)
	verifier := auth.NewJWTVerifier(testSecret, s.store)
	s.manager = NewManager(verifier, s.router, NewPresenceStore(), 64)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	handler := NewHandler(s.manager, s.router, Options{
		MaxMessageSize: config.Default().MaxMessageSize,
		RateLimit:      config.RateLimit{Burst: 20, RefillInterval: time.Second},
	})
	engine.GET("/ws", handler.Handle)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv, s, verifier
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.OutboundEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev models.OutboundEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHandlerRejectsUnauthenticated(t *testing.T) {
	srv, s, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, s.manager.Presence().OnlineCount())
}

func TestHandlerEndToEnd(t *testing.T) {
	srv, s, verifier := newTestServer(t)
	aliceToken, err := verifier.Issue(alice, time.Minute)
	require.NoError(t, err)
	bobToken, err := verifier.Issue(bob, time.Minute)
	require.NoError(t, err)

	a := dial(t, srv, aliceToken)
	require.Eventually(t, func() bool { return s.manager.Presence().IsOnline(alice) }, 2*time.Second, 10*time.Millisecond)
	b := dial(t, srv, bobToken)

	online := readEvent(t, a)
	assert.Equal(t, models.EventUserOnline, online.Type)
	assert.Equal(t, bob, online.UserID)

	require.NoError(t, a.WriteJSON(map[string]interface{}{"type": "send_message", "group_id": lobby, "content": "hi bob"}))
	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		assert.Equal(t, models.EventNewMessage, ev.Type)
		require.NotNil(t, ev.Message)
		assert.Equal(t, "hi bob", ev.Message.Content)
	}

	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte(`{"type":"nonsense"}`)))
	ev := readEvent(t, b)
	assert.Equal(t, models.EventError, ev.Type)
	assert.Equal(t, "Invalid event", ev.Error)

	require.NoError(t, b.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	offline := readEvent(t, a)
	assert.Equal(t, models.EventUserOffline, offline.Type)
	assert.Equal(t, bob, offline.UserID)
	assert.False(t, s.manager.Presence().IsOnline(bob))
}

func TestHandlerAcceptsFullyEscapedMaxLengthMessage(t *testing.T) {
	srv, s, verifier := newTestServer(t)
	token, err := verifier.Issue(alice, time.Minute)
	require.NoError(t, err)
	a := dial(t, srv, token)

	// Each rune arrives as an escaped surrogate pair, the widest JSON form.
	frame := `{"type":"send_message","group_id":10,"content":"` + strings.Repeat(`\ud83d\ude00`, models.MaxContentLength) + `"}`
	require.Greater(t, len(frame), 12000)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(frame)))

	ev := readEvent(t, a)
	require.Equal(t, models.EventNewMessage, ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, models.MaxContentLength, utf8.RuneCountInString(ev.Message.Content))

	require.NoError(t, a.WriteJSON(map[string]interface{}{"type": "send_message", "group_id": lobby, "content": "still here"}))
	assert.Equal(t, "still here", readEvent(t, a).Message.Content)
	assert.True(t, s.manager.Presence().IsOnline(alice))
}
