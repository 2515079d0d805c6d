package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 256
)

// Темы, на которые клиент подписан сразу после подключения
var defaultTopics = []string{"tasks", "image_jobs"}

// Message - сообщение, отправляемое клиенту.
type Message struct {
	Type    string      `json:"type"`
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
	Target  string      `json:"-"` // пусто = всем подписанным
}

// Hub управляет WebSocket-соединениями и рассылкой уведомлений.
type Hub struct {
	clients    map[uuid.UUID]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// Client - подключенный пользователь.
type Client struct {
	ID     uuid.UUID
	UserID string
	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte

	mu     sync.RWMutex
	topics map[string]bool
}

// NewHub создает хаб. Пустой allowedOrigins разрешает любой Origin.
func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	h := &Hub{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 64),
		done:       make(chan struct{}),
		logger:     logger.Named("WebSocketHub"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// Run обрабатывает регистрацию клиентов и рассылку до отмены ctx.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.logger.Info("WebSocket hub stopped")
			return

		case c := <-h.register:
			h.clients[c.ID] = c
			h.logger.Debug("Client connected", zap.String("client_id", c.ID.String()), zap.String("user_id", c.UserID))

		case c := <-h.unregister:
			if _, ok := h.clients[c.ID]; ok {
				close(c.send)
				delete(h.clients, c.ID)
				h.logger.Debug("Client disconnected", zap.String("client_id", c.ID.String()))
			}

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("Failed to marshal websocket message", zap.String("type", msg.Type), zap.Error(err))
				continue
			}
			for id, c := range h.clients {
				if msg.Target != "" && c.UserID != msg.Target {
					continue
				}
				if !c.IsSubscribed(msg.Topic) {
					continue
				}
				select {
				case c.send <- data:
				default:
					// медленный клиент
					close(c.send)
					delete(h.clients, id)
					h.logger.Warn("Dropping slow websocket client", zap.String("client_id", id.String()))
				}
			}
		}
	}
}

func (h *Hub) enqueue(msg Message) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// SendToUser отправляет сообщение всем соединениям пользователя.
func (h *Hub) SendToUser(userID, messageType, topic string, payload interface{}) {
	h.enqueue(Message{Type: messageType, Topic: topic, Payload: payload, Target: userID})
}

// Broadcast отправляет сообщение всем клиентам, подписанным на тему.
func (h *Hub) Broadcast(messageType, topic string, payload interface{}) {
	h.enqueue(Message{Type: messageType, Topic: topic, Payload: payload})
}

// ServeWS переводит соединение в WebSocket для уже аутентифицированного пользователя.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		ID:     uuid.New(),
		UserID: userID,
		conn:   conn,
		hub:    h,
		send:   make(chan []byte, sendBuffer),
		topics: make(map[string]bool, len(defaultTopics)),
	}
	for _, t := range defaultTopics {
		c.topics[t] = true
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read error", zap.String("client_id", c.ID.String()), zap.Error(err))
			}
			return
		}

		var cmd struct {
			Action string `json:"action"`
			Topic  string `json:"topic"`
		}
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.hub.logger.Debug("Invalid websocket command", zap.Error(err))
			continue
		}
		switch cmd.Action {
		case "subscribe":
			c.Subscribe(cmd.Topic)
		case "unsubscribe":
			c.Unsubscribe(cmd.Topic)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Subscribe подписывает клиента на тему
func (c *Client) Subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topic] = true
}

// Unsubscribe отписывает клиента от темы
func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, topic)
}

// IsSubscribed проверяет, подписан ли клиент на тему
func (c *Client) IsSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics[topic]
}
