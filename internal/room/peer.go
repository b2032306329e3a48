package room

import (
	"sync"

	pion "github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Peer is what a room knows about one remote participant.
type Peer struct {
	ID string

	mu                    sync.Mutex
	state                 map[string]any
	lastMessage           msgpack.RawMessage
	lastMessageReceivedAt int64
	stream                *pion.TrackRemote
	subscribers           []func(msgpack.RawMessage)
}

func newPeer(id string) *Peer {
	return &Peer{ID: id, state: make(map[string]any)}
}

// Get returns a value from the peer's free-form state.
func (p *Peer) Get(key string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.state[key]
	return v, ok
}

// Set stores a value in the peer's free-form state.
func (p *Peer) Set(key string, v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state[key] = v
}

// LastMessage returns the latest payload from the peer and the room time it
// arrived at. The payload is nil before the first message.
func (p *Peer) LastMessage() (msgpack.RawMessage, int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastMessage, p.lastMessageReceivedAt
}

// Stream returns the peer's media track, if it sent one.
func (p *Peer) Stream() *pion.TrackRemote {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream
}

// OnMessage subscribes cb to payloads from this peer only.
func (p *Peer) OnMessage(cb func(payload msgpack.RawMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, cb)
}

// record stores payload and returns the subscribers to notify.
func (p *Peer) record(payload msgpack.RawMessage, at int64) []func(msgpack.RawMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastMessage = payload
	p.lastMessageReceivedAt = at
	return append([]func(msgpack.RawMessage){}, p.subscribers...)
}

func (p *Peer) setStream(track *pion.TrackRemote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stream = track
}
