package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 8 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from the SPA origin; restrict in deployment.
		return true
	},
}

// Client is one live websocket connection. Its send channel doubles as the
// bus subscriber, so anything published to a group the session joined is
// written to the peer verbatim.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	log  *slog.Logger

	closeOnce sync.Once
	teardown  func()
}

func newClient(conn *websocket.Conn, log *slog.Logger, teardown func()) *Client {
	id := uuid.NewString()
	return &Client{
		ID:       id,
		conn:     conn,
		send:     make(chan []byte, 256),
		log:      log.With("conn_id", id),
		teardown: teardown,
	}
}

// readPump consumes inbound frames and hands them to the session handler one
// at a time, preserving arrival order. It returns when the peer goes away,
// gracefully or not, and both exits run the same teardown exactly once.
func (c *Client) readPump(handle func(data []byte)) {
	defer c.close()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("connection dropped", "error", err)
			}
			return
		}
		handle(data)
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
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close runs the session teardown, then closes the send channel so writePump
// flushes and exits. Teardown unsubscribes from the bus first, which makes
// closing the channel safe: no publish can reach it afterwards.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		if c.teardown != nil {
			c.teardown()
		}
		close(c.send)
		c.conn.Close()
	})
}
