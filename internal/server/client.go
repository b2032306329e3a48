package server

import (
	"log/slog"
	"time"

	"github.com/amkisko/snake/internal/signaling"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP offers fit comfortably.
	maxMessageSize = 64 * 1024
)

// Client is the relay side of one websocket connection. A connection belongs
// to at most one room at a time.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// send is drained by WritePump. Only the hub writes to or closes it.
	send chan *signaling.Message

	// room and peerID are owned by the hub goroutine.
	room   *Room
	peerID string

	log *slog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan *signaling.Message, 256),
		log:  hub.log.With("remote", conn.RemoteAddr().String()),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// There is at most one reader on a connection: all reads happen on the
// goroutine running ReadPump.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg signaling.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("read failed", "err", err)
			}
			return
		}

		select {
		case c.hub.inbound <- inbound{client: c, msg: &msg}:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// There is at most one writer on a connection: all writes happen on the
// goroutine running WritePump.
func (c *Client) WritePump() {
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
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.log.Debug("write failed", "err", err)
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
