package signaling

import (
	"log/slog"
	"sync"
)

// Signal is a relayed WebRTC signal together with the peer that sent it.
type Signal struct {
	From    string
	Payload SignalPayload
}

// Handler routes incoming signaling messages to typed channels.
type Handler struct {
	client      *Client
	RoomCreated chan string
	JoinSuccess chan *JoinPayload
	PeerJoined  chan string
	PeerLeft    chan string
	Signal      chan *Signal
	Error       chan string

	done      chan struct{}
	gone      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:      client,
		RoomCreated: make(chan string, 1),
		JoinSuccess: make(chan *JoinPayload, 1),
		PeerJoined:  make(chan string, 16),
		PeerLeft:    make(chan string, 16),
		Signal:      make(chan *Signal, 64),
		Error:       make(chan string, 4),
		done:        make(chan struct{}),
		gone:        make(chan struct{}),
		log:         slog.Default().With("component", "signaling"),
	}
}

// Start begins listening to incoming messages and routing them. It returns
// when the connection drops or the handler is closed.
func (h *Handler) Start() {
	defer close(h.gone)

	for msg := range h.client.Incoming() {
		if !h.route(msg) {
			return
		}
	}
}

func (h *Handler) route(msg *Message) bool {
	switch msg.Type {
	case MessageTypeRoomCreated:
		return deliver(h, h.RoomCreated, msg.RoomID)

	case MessageTypeJoinSuccess:
		var join JoinPayload
		if err := msg.DecodePayload(&join); err != nil {
			return deliver(h, h.Error, "malformed join payload")
		}
		return deliver(h, h.JoinSuccess, &join)

	case MessageTypePeerJoined:
		return deliver(h, h.PeerJoined, msg.PeerID)

	case MessageTypePeerLeft:
		return deliver(h, h.PeerLeft, msg.PeerID)

	case MessageTypeSignal:
		var payload SignalPayload
		if err := msg.DecodePayload(&payload); err != nil {
			h.log.Debug("dropping malformed signal", "from", msg.PeerID, "err", err)
			return true
		}
		return deliver(h, h.Signal, &Signal{From: msg.PeerID, Payload: payload})

	case MessageTypeError:
		var errPayload ErrorPayload
		if err := msg.DecodePayload(&errPayload); err != nil || errPayload.Error == "" {
			return deliver(h, h.Error, "unknown error from server")
		}
		return deliver(h, h.Error, errPayload.Error)

	default:
		h.log.Debug("unknown message type", "type", msg.Type)
		return true
	}
}

func deliver[T any](h *Handler, ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.done:
		return false
	}
}

// Disconnected is closed once the relay connection is gone.
func (h *Handler) Disconnected() <-chan struct{} {
	return h.gone
}

// Close stops routing. Channels stay open so late readers never panic.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}
