package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/orchestrator"
)

// Client is one websocket connection attached to a hub topic.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	topic   string
	roomID  string // empty for lobby clients
	session *domain.Session
	send    chan []byte

	sendMu sync.Mutex
	closed bool

	// orch is set by the hub when a room client registers.
	orch *orchestrator.Orchestrator
}

func NewClient(hub *Hub, conn *websocket.Conn, topic string, session *domain.Session) *Client {
	c := &Client{
		hub:     hub,
		conn:    conn,
		topic:   topic,
		session: session,
		send:    make(chan []byte, 256),
	}
	if roomID, ok := roomOfTopic(topic); ok {
		c.roomID = roomID
	}
	return c
}

// Run starts the read and write pumps.
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) logger() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"user_id": c.UserID(), "topic": c.topic})
}

// ReadPump forwards inbound frames to the hub until the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.messageChan <- HubMessage{Type: "unregister", Topic: c.topic, UserID: c.UserID(), Client: c}:
		case <-time.After(1 * time.Second):
			c.logger().Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		c.logger().Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger().WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				c.logger().Debug("WebSocket connection closed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.logger().Debugf("Ignoring non-text message type: %d", messageType)
			continue
		}
		c.hub.QueueMessage(HubMessage{
			Type:    "command",
			Topic:   c.topic,
			UserID:  c.UserID(),
			Client:  c,
			RawData: message,
		})
	}
}

// WritePump drains the send channel to the connection and keeps it alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger().Info("writePump exited")
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
				c.logger().WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger().WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

// Push queues an envelope without blocking. It reports false when the client is
// gone or its buffer is full.
func (c *Client) Push(env Envelope) bool {
	b, err := json.Marshal(env)
	if err != nil {
		c.logger().WithError(err).Error("Failed to marshal outbound frame")
		return false
	}
	return c.pushRaw(b)
}

func (c *Client) pushRaw(b []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		c.logger().Warn("Client send channel full, frame dropped")
		return false
	}
}

func (c *Client) pushError(err error) {
	c.Push(Envelope{Type: OutError, Data: errorBody{Message: err.Error()}})
}

// closeSend closes the send channel once; WritePump then sends a close frame.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) Topic() string  { return c.topic }
func (c *Client) RoomID() string { return c.roomID }

func (c *Client) UserID() string {
	if c.session == nil {
		return ""
	}
	return c.session.UserID
}

func (c *Client) CloseConn() {
	if c.conn != nil {
		c.conn.Close()
	}
}
