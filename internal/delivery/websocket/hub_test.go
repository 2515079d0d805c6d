package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(nil, zap.NewNop())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// регистрация клиента асинхронна, поэтому отправляем, пока сообщение не дойдет.
// После таймаута чтения соединение gorilla непригодно, поэтому читаем в отдельной горутине.
func awaitDelivery(t *testing.T, conn *websocket.Conn, send func()) Message {
	t.Helper()
	received := make(chan Message, 1)
	go func() {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if json.Unmarshal(raw, &msg) == nil {
			received <- msg
		}
	}()

	var msg Message
	require.Eventually(t, func() bool {
		select {
		case msg = <-received:
			return true
		default:
			send()
			return false
		}
	}, 2*time.Second, 50*time.Millisecond)
	return msg
}

func TestHub_SendToUser(t *testing.T) {
	hub, srv := startHub(t)
	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")

	msg := awaitDelivery(t, alice, func() {
		hub.SendToUser("alice", "task_update", "tasks", map[string]string{"status": "completed"})
	})
	assert.Equal(t, "task_update", msg.Type)
	assert.Equal(t, "tasks", msg.Topic)

	msg = awaitDelivery(t, bob, func() {
		hub.Broadcast("image_result", "image_jobs", "hello")
	})
	assert.Equal(t, "image_result", msg.Type)
	assert.Equal(t, "hello", msg.Payload)
}

func TestHub_RejectsUnknownOrigin(t *testing.T) {
	hub := NewHub([]string{"http://localhost:3000"}, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, hub.upgrader.CheckOrigin(req))

	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, hub.upgrader.CheckOrigin(req))
}

func TestClient_Subscriptions(t *testing.T) {
	c := &Client{topics: map[string]bool{}}
	c.Subscribe("tasks")
	assert.True(t, c.IsSubscribed("tasks"))
	c.Unsubscribe("tasks")
	assert.False(t, c.IsSubscribed("tasks"))
}
