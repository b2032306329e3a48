// Package room joins a namespace on the signaling relay and keeps a WebRTC
// data channel open to every other peer in it.
package room

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/amkisko/snake/internal/config"
	"github.com/amkisko/snake/internal/signaling"
	"github.com/amkisko/snake/internal/webrtc"
	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	selfOnce sync.Once
	selfID   string
)

// SelfID is this process's peer id. Every room uses it unless told
// otherwise, so peers recognise each other across rooms.
func SelfID() string {
	selfOnce.Do(func() { selfID = uuid.NewString() })
	return selfID
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// SignalTimeout bounds how long the relay may take to answer a join.
var SignalTimeout = 30 * time.Second

// Options configure a room. All callbacks are optional and run on transport
// goroutines; receivers should hand work off rather than block.
type Options struct {
	// ID of the namespace to join. Empty means NextID(Seed).
	ID    string
	AppID string
	Seed  string
	// PeerID is our id in the room. Empty means SelfID().
	PeerID string

	OnJoin    func(peerID string)
	OnLeave   func(peerID string)
	OnStream  func(track *pion.TrackRemote, peerID string)
	OnMessage func(peerID string, payload msgpack.RawMessage)
}

// Room is a joined namespace.
type Room struct {
	id     string
	appID  string
	peerID string

	cfg     *config.Config
	opts    Options
	client  *signaling.Client
	handler *signaling.Handler
	clock   *Clock

	mu     sync.Mutex
	peers  map[string]*Peer
	links  map[string]*webrtc.Link
	joined map[string]bool
	left   bool

	done chan struct{}
	log  *slog.Logger
}

// Join connects to the relay, enters the namespace under a fresh peer id and
// offers a data channel to every peer already there.
func Join(ctx context.Context, cfg *config.Config, opts Options) (*Room, error) {
	if opts.ID == "" {
		opts.ID = NextID(opts.Seed)
	}

	r, err := dial(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	if err := r.send(&signaling.Message{
		Type:   signaling.MessageTypeJoinRoom,
		RoomID: r.id,
		AppID:  r.appID,
		PeerID: r.peerID,
	}); err != nil {
		r.shutdown()
		return nil, webrtc.WrapError("join", webrtc.ErrSignalingError, err.Error())
	}

	join, err := await(ctx, r, "join", r.handler.JoinSuccess)
	if err != nil {
		return nil, err
	}

	r.log = r.log.With("room", r.id)
	r.start(ctx, join.Peers)
	return r, nil
}

// Create asks the relay for a fresh memorable namespace and joins it.
func Create(ctx context.Context, cfg *config.Config, opts Options) (*Room, error) {
	r, err := dial(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	if err := r.send(&signaling.Message{
		Type:   signaling.MessageTypeCreateRoom,
		AppID:  r.appID,
		PeerID: r.peerID,
	}); err != nil {
		r.shutdown()
		return nil, webrtc.WrapError("create", webrtc.ErrSignalingError, err.Error())
	}

	id, err := await(ctx, r, "create", r.handler.RoomCreated)
	if err != nil {
		return nil, err
	}

	r.id = id
	r.log = r.log.With("room", r.id)
	r.start(ctx, nil)
	return r, nil
}

func dial(ctx context.Context, cfg *config.Config, opts Options) (*Room, error) {
	client := signaling.NewClient(cfg.WebSocketURL)
	if err := client.Connect(ctx); err != nil {
		return nil, webrtc.WrapError("connect", webrtc.ErrSignalingError, err.Error())
	}

	handler := signaling.NewHandler(client)
	go handler.Start()

	return &Room{
		id:      opts.ID,
		appID:   opts.AppID,
		peerID:  firstNonEmpty(opts.PeerID, SelfID()),
		cfg:     cfg,
		opts:    opts,
		client:  client,
		handler: handler,
		clock:   NewClock(),
		peers:   make(map[string]*Peer),
		links:   make(map[string]*webrtc.Link),
		joined:  make(map[string]bool),
		done:    make(chan struct{}),
		log:     slog.Default(),
	}, nil
}

// await waits for the relay's reply to a join or create, turning relay
// errors, timeouts and disconnects into errors. The room is shut down on
// failure.
func await[T any](ctx context.Context, r *Room, op string, reply <-chan T) (T, error) {
	var zero T

	timeout := time.NewTimer(SignalTimeout)
	defer timeout.Stop()

	var err error
	select {
	case v := <-reply:
		return v, nil
	case text := <-r.handler.Error:
		err = relayError(op, text)
	case <-timeout.C:
		err = webrtc.WrapError(op, webrtc.ErrTimeout, "no answer from relay")
	case <-r.handler.Disconnected():
		err = webrtc.WrapError(op, webrtc.ErrSignalingError, "relay closed the connection")
	case <-ctx.Done():
		err = ctx.Err()
	}

	r.shutdown()
	return zero, err
}

func relayError(op, text string) error {
	if text == "Room is full" {
		return webrtc.NewError(op, webrtc.ErrRoomFull)
	}
	return webrtc.WrapError(op, webrtc.ErrSignalingError, text)
}

func (r *Room) start(ctx context.Context, peers []string) {
	r.log.Info("joined", "peer", r.peerID, "peers", len(peers))

	for _, id := range peers {
		r.connect(id, true)
	}
	go r.listen(ctx)
}

func (r *Room) listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.Leave()
			return

		case <-r.done:
			return

		case <-r.handler.Disconnected():
			// Open data channels outlive the relay; only discovery stops.
			r.log.Warn("relay connection lost")
			return

		case id := <-r.handler.PeerJoined:
			// The newcomer offers; we answer when its signal arrives.
			r.addPeer(id)

		case id := <-r.handler.PeerLeft:
			r.peerGone(id, nil)

		case sig := <-r.handler.Signal:
			r.handleSignal(sig)

		case text := <-r.handler.Error:
			r.log.Warn("relay error", "error", text)
		}
	}
}

func (r *Room) handleSignal(sig *signaling.Signal) {
	r.mu.Lock()
	link := r.links[sig.From]
	r.mu.Unlock()

	if link == nil {
		link = r.connect(sig.From, false)
		if link == nil {
			return
		}
	}
	if err := link.HandleSignal(sig.Payload); err != nil {
		r.log.Warn("failed to handle signal", "peer", sig.From, "err", err)
	}
}

// connect creates the link to id, offering when we are the newcomer.
func (r *Room) connect(id string, offer bool) *webrtc.Link {
	r.addPeer(id)

	var link *webrtc.Link
	link, err := webrtc.NewLink(r.cfg, id, func(p signaling.SignalPayload) error {
		return r.signal(id, p)
	}, webrtc.Handlers{
		OnOpen:    func() { r.peerOpened(id) },
		OnClose:   func() { r.peerGone(id, link) },
		OnMessage: func(msg webrtc.Message) { r.received(id, msg) },
		OnTrack:   func(track *pion.TrackRemote) { r.streamed(id, track) },
	})
	if err != nil {
		r.log.Error("failed to create link", "peer", id, "err", err)
		return nil
	}

	r.mu.Lock()
	if r.left {
		r.mu.Unlock()
		link.Close()
		return nil
	}
	if old := r.links[id]; old != nil {
		defer old.Close()
	}
	r.links[id] = link
	r.mu.Unlock()

	if offer {
		if err := link.Offer(); err != nil {
			r.log.Warn("failed to offer", "peer", id, "err", err)
			link.Close()
			return nil
		}
	}
	return link
}

func (r *Room) signal(to string, payload signaling.SignalPayload) error {
	msg, err := signaling.NewMessage(signaling.MessageTypeSignal, payload)
	if err != nil {
		return err
	}
	msg.To = to
	return r.send(msg)
}

func (r *Room) send(msg *signaling.Message) error {
	return r.client.SendMessage(msg)
}

func (r *Room) addPeer(id string) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addPeerLocked(id)
}

func (r *Room) addPeerLocked(id string) *Peer {
	p, ok := r.peers[id]
	if !ok {
		p = newPeer(id)
		r.peers[id] = p
	}
	return p
}

func (r *Room) peerOpened(id string) {
	r.mu.Lock()
	if r.left || r.joined[id] {
		r.mu.Unlock()
		return
	}
	r.addPeerLocked(id)
	r.joined[id] = true
	r.mu.Unlock()

	r.log.Debug("peer joined", "peer", id)
	if r.opts.OnJoin != nil {
		r.opts.OnJoin(id)
	}
}

// peerGone forgets id. With a link given, only that link's closure counts, so
// a stale connection cannot evict a newer one.
func (r *Room) peerGone(id string, closed *webrtc.Link) {
	r.mu.Lock()
	link := r.links[id]
	if closed != nil && link != closed {
		r.mu.Unlock()
		return
	}
	wasJoined := r.joined[id]
	delete(r.links, id)
	delete(r.peers, id)
	delete(r.joined, id)
	left := r.left
	r.mu.Unlock()

	if link != nil && link != closed {
		link.Close()
	}
	if left || !wasJoined {
		return
	}

	r.log.Debug("peer left", "peer", id)
	if r.opts.OnLeave != nil && r.live() {
		r.opts.OnLeave(id)
	}
}

func (r *Room) received(id string, msg webrtc.Message) {
	if msg.Type != webrtc.MessageTypeAction {
		r.log.Debug("ignoring unknown action", "peer", id, "type", msg.Type)
		return
	}

	r.mu.Lock()
	if r.left {
		r.mu.Unlock()
		return
	}
	p := r.addPeerLocked(id)
	r.mu.Unlock()

	for _, cb := range p.record(msg.Payload, r.clock.Now()) {
		if !r.live() {
			return
		}
		cb(msg.Payload)
	}
	if r.opts.OnMessage != nil && r.live() {
		r.opts.OnMessage(id, msg.Payload)
	}
}

func (r *Room) streamed(id string, track *pion.TrackRemote) {
	r.mu.Lock()
	if r.left {
		r.mu.Unlock()
		return
	}
	p := r.addPeerLocked(id)
	r.mu.Unlock()

	p.setStream(track)
	if r.opts.OnStream != nil && r.live() {
		r.opts.OnStream(track, id)
	}
}

// live reports whether callbacks may still fire. It is checked again right
// before each callback since a callback may itself leave the room.
func (r *Room) live() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.left
}

// SendMessage sends v to the named peers, or to every joined peer when none
// are named.
func (r *Room) SendMessage(v any, peerIDs ...string) error {
	msg, err := webrtc.NewMessage(webrtc.MessageTypeAction, v)
	if err != nil {
		return webrtc.NewError("encode message", err)
	}

	var errs []error
	var targets []*webrtc.Link

	r.mu.Lock()
	if r.left {
		r.mu.Unlock()
		return webrtc.NewError("send", webrtc.ErrLinkClosed)
	}
	if len(peerIDs) == 0 {
		for id, link := range r.links {
			if r.joined[id] {
				targets = append(targets, link)
			}
		}
	} else {
		for _, id := range peerIDs {
			link, ok := r.links[id]
			if !ok {
				errs = append(errs, webrtc.NewPeerError("send", id, webrtc.ErrPeerDisconnected))
				continue
			}
			targets = append(targets, link)
		}
	}
	r.mu.Unlock()

	for _, link := range targets {
		if err := link.Send(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Peer returns the record for id.
func (r *Room) Peer(id string) (*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	return p, ok
}

// Peers returns the ids of every known peer, sorted.
func (r *Room) Peers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ID returns the namespace id.
func (r *Room) ID() string {
	return r.id
}

func (r *Room) AppID() string {
	return r.appID
}

// PeerID returns our own id within the room.
func (r *Room) PeerID() string {
	return r.peerID
}

// Time returns the room's logical time in milliseconds.
func (r *Room) Time() int64 {
	return r.clock.Now()
}

// SetTime overwrites the room's logical time.
func (r *Room) SetTime(ts int64) {
	r.clock.Set(ts)
}

// Connected reports whether the room has not been left.
func (r *Room) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.left
}

// Leave exits the namespace and closes every link. No callback fires after
// Leave returns.
func (r *Room) Leave() {
	r.mu.Lock()
	if r.left {
		r.mu.Unlock()
		return
	}
	r.left = true
	links := r.links
	r.links = make(map[string]*webrtc.Link)
	r.peers = make(map[string]*Peer)
	r.joined = make(map[string]bool)
	r.mu.Unlock()

	if err := r.send(&signaling.Message{Type: signaling.MessageTypeLeaveRoom}); err != nil {
		r.log.Debug("failed to send leave", "err", err)
	}
	for _, link := range links {
		link.Close()
	}
	close(r.done)
	r.shutdown()
	r.log.Info("left")
}

func (r *Room) shutdown() {
	r.clock.Stop()
	r.handler.Close()
	r.client.Close()
}
