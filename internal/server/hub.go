package server

import (
	"context"
	"crypto/rand"
	"log/slog"
	"math/big"
	"strings"

	"github.com/amkisko/snake/internal/signaling"
)

// inbound pairs a decoded message with the connection it came from.
type inbound struct {
	client *Client
	msg    *signaling.Message
}

// Hub is the central brain of the relay.
// It owns every room and connection; all state is touched only from Run.
type Hub struct {
	rooms   map[roomKey]*Room
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound

	// done is closed when Run returns so pumps never block on a dead hub.
	done chan struct{}

	maxPeers int
	log      *slog.Logger
}

// NewHub creates a hub admitting at most maxPeers peers per room.
func NewHub(maxPeers int) *Hub {
	return &Hub{
		rooms:      make(map[roomKey]*Room),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		done:       make(chan struct{}),
		maxPeers:   maxPeers,
		log:        slog.Default().With("component", "hub"),
	}
}

// Run is the hub's processing loop. It returns when ctx is cancelled, closing
// every connection's send queue on the way out.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			close(c.send)
		}
		h.clients = nil
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			c.log.Debug("client registered")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; !ok {
				continue
			}
			h.leave(c)
			delete(h.clients, c)
			close(c.send)
			c.log.Debug("client unregistered")

		case in := <-h.inbound:
			h.handle(in.client, in.msg)
		}
	}
}

func (h *Hub) handle(c *Client, msg *signaling.Message) {
	c.log.Debug("message received", "type", msg.Type)

	switch msg.Type {
	case signaling.MessageTypeCreateRoom:
		h.createRoom(c, msg)
	case signaling.MessageTypeJoinRoom:
		h.joinRoom(c, msg)
	case signaling.MessageTypeLeaveRoom:
		h.leave(c)
	case signaling.MessageTypeSignal:
		h.relay(c, msg)
	default:
		c.log.Warn("unknown message type", "type", msg.Type)
		h.fail(c, "Unknown message type")
	}
}

func (h *Hub) createRoom(c *Client, msg *signaling.Message) {
	if c.room != nil {
		h.fail(c, "Already in a room")
		return
	}
	if msg.PeerID == "" {
		h.fail(c, "Peer id is required")
		return
	}

	key := roomKey{appID: msg.AppID, roomID: h.generateRoomID(msg.AppID)}
	room := newRoom(key)
	h.rooms[key] = room
	h.admit(c, room, msg.PeerID)

	reply, err := signaling.NewMessage(signaling.MessageTypeRoomCreated, nil)
	if err != nil {
		c.log.Error("failed to build reply", "err", err)
		return
	}
	reply.RoomID = room.ID
	reply.PeerID = msg.PeerID
	h.deliver(c, reply)
	c.log.Info("room created", "room", room.ID)
}

func (h *Hub) joinRoom(c *Client, msg *signaling.Message) {
	if c.room != nil {
		h.fail(c, "Already in a room")
		return
	}
	roomID := strings.TrimSpace(msg.RoomID)
	if roomID == "" {
		h.fail(c, "Room id is required")
		return
	}
	if msg.PeerID == "" {
		h.fail(c, "Peer id is required")
		return
	}

	key := roomKey{appID: msg.AppID, roomID: roomID}
	room, ok := h.rooms[key]
	if !ok {
		room = newRoom(key)
		h.rooms[key] = room
	}
	if _, taken := room.Peers[msg.PeerID]; taken {
		h.fail(c, "Peer id already in use")
		return
	}
	if len(room.Peers) >= h.maxPeers {
		h.fail(c, "Room is full")
		return
	}

	existing := room.peerIDs("")
	h.admit(c, room, msg.PeerID)

	reply, err := signaling.NewMessage(signaling.MessageTypeJoinSuccess, signaling.JoinPayload{
		PeerID: msg.PeerID,
		Peers:  existing,
	})
	if err != nil {
		c.log.Error("failed to build reply", "err", err)
		return
	}
	reply.RoomID = room.ID
	h.deliver(c, reply)

	for _, id := range existing {
		h.deliver(room.Peers[id], &signaling.Message{
			Type:   signaling.MessageTypePeerJoined,
			RoomID: room.ID,
			PeerID: msg.PeerID,
		})
	}
	c.log.Info("peer joined", "room", room.ID, "peers", len(room.Peers))
}

func (h *Hub) admit(c *Client, room *Room, peerID string) {
	room.Peers[peerID] = c
	c.room = room
	c.peerID = peerID
	c.log = c.log.With("peer", peerID)
}

// leave detaches c from its room, telling the remaining peers and deleting
// the room once it is empty.
func (h *Hub) leave(c *Client) {
	room := c.room
	if room == nil {
		return
	}
	delete(room.Peers, c.peerID)
	c.room = nil

	if len(room.Peers) == 0 {
		delete(h.rooms, room.key())
		c.log.Info("room deleted", "room", room.ID)
		return
	}
	for _, other := range room.Peers {
		h.deliver(other, &signaling.Message{
			Type:   signaling.MessageTypePeerLeft,
			RoomID: room.ID,
			PeerID: c.peerID,
		})
	}
	c.log.Info("peer left", "room", room.ID, "peers", len(room.Peers))
}

// relay forwards an addressed signal to a peer in the sender's room, stamping
// the sender's id.
func (h *Hub) relay(c *Client, msg *signaling.Message) {
	if c.room == nil {
		h.fail(c, "Not in a room")
		return
	}
	target, ok := c.room.Peers[msg.To]
	if !ok || target == c {
		c.log.Debug("signal target not found", "to", msg.To)
		return
	}
	h.deliver(target, &signaling.Message{
		Type:    signaling.MessageTypeSignal,
		Payload: msg.Payload,
		RoomID:  c.room.ID,
		PeerID:  c.peerID,
	})
}

func (h *Hub) fail(c *Client, text string) {
	h.deliver(c, signaling.ErrorMessage(text))
}

// deliver queues msg without blocking the hub. A connection whose queue is
// full is too slow to keep up and gets dropped.
func (h *Hub) deliver(c *Client, msg *signaling.Message) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.log.Warn("send queue full, dropping connection")
		h.leave(c)
		delete(h.clients, c)
		close(c.send)
	}
}

// generateRoomID returns an unused word-word-word-word lobby name, drawing
// each word from a different pool.
func (h *Hub) generateRoomID(appID string) string {
	for {
		pools := make([][]string, len(wordPools))
		copy(pools, wordPools)
		words := make([]string, 0, 4)
		for range 4 {
			i := randomIndex(len(pools))
			words = append(words, pools[i][randomIndex(len(pools[i]))])
			pools = append(pools[:i], pools[i+1:]...)
		}

		id := strings.Join(words, "-")
		if _, taken := h.rooms[roomKey{appID: appID, roomID: id}]; !taken {
			return id
		}
	}
}

// randomIndex returns a cryptographically secure random index below n.
func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("server: failed to read random index: " + err.Error())
	}
	return int(v.Int64())
}
