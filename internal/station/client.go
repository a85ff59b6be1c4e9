package station

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

// Command is a control message a feed client may send.
type Command struct {
	Type   string  `json:"type"` // toggle, play, pause, mute, volume
	Volume float64 `json:"volume,omitempty"`
}

// Client is one websocket connection to the feed.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	exec func(Command) error
}

func newClient(hub *Hub, conn *websocket.Conn, exec func(Command) error) *Client {
	return &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		exec: exec,
	}
}

// readPump reads control commands until the connection fails, then
// unregisters the client. It is the only reader of the connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("read error", "id", c.id, "error", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.logger.Debug("invalid command", "id", c.id, "error", err)
			continue
		}
		if err := c.exec(cmd); err != nil {
			c.hub.logger.Debug("command failed", "id", c.id, "type", cmd.Type, "error", err)
		}
	}
}

// writePump sends frames and keepalive pings. It is the only writer of the
// connection and exits when the hub closes the send channel.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
