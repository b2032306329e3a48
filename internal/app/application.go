// Package app runs a player's session: it sits in a lobby room, negotiates
// with every peer there who should host a game room, and keeps the shared
// game in sync inside that room.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/amkisko/snake/internal/config"
	"github.com/amkisko/snake/internal/game"
	"github.com/amkisko/snake/internal/room"
	"github.com/amkisko/snake/internal/version"
	"github.com/vmihailenco/msgpack/v5"
)

// Game room resolution outcomes.
const (
	StatusCreated  = "created"
	StatusAccepted = "accepted"
	StatusPlaying  = "playing"
)

// PosInterval is how often our position is broadcast to the game room.
const PosInterval = time.Second

// Room is the part of a joined room the application drives.
type Room interface {
	ID() string
	PeerID() string
	Time() int64
	SetTime(ts int64)
	Connected() bool
	SendMessage(v any, peerIDs ...string) error
	Leave()
}

// Opener joins or creates a room.
type Opener func(ctx context.Context, opts room.Options) (Room, error)

type Options struct {
	// Lobby names the lobby to join. Empty means the next default lobby.
	Lobby string
	// Private asks the relay for a fresh lobby name instead.
	Private bool

	Emoji int
	View  game.Viewport

	// OnStatus is told whenever the lobby or game room changes. It runs on
	// the application goroutine.
	OnStatus func(Status)

	// Join and Create open rooms; they default to the mesh rooms.
	Join   Opener
	Create Opener
	// Rand returns values in [0, 1); it defaults to math/rand.
	Rand func() float64
	// Now returns wall-clock milliseconds for message timestamps.
	Now func() int64
}

// Status describes where the session stands.
type Status struct {
	Lobby      string
	LobbyLink  string
	GameRoom   string
	GameStatus string
	Hosting    bool
	Players    int
}

type eventKind int

const (
	eventJoin eventKind = iota
	eventLeave
	eventMessage
	eventAccel
	eventLog
)

type scope int

const (
	scopeLobby scope = iota
	scopeGame
	scopeLocal
)

// event is anything the application goroutine reacts to.
type event struct {
	kind    eventKind
	scope   scope
	roomID  string
	peerID  string
	payload msgpack.RawMessage
	accel   game.Vec
	text    string
}

// Application owns the lobby, the current game room and the game. All of
// its state is touched only from Run.
type Application struct {
	cfg  *config.Config
	opts Options
	game *game.Game

	lobby       Room
	gameRoom    Room
	gameStatus  string
	hosting     bool
	decisions   map[string]*Decision
	invitations map[string]int64

	events chan event
	done   chan struct{}
	rand   func() float64
	now    func() int64

	summary Summary
	log     *slog.Logger
}

// New prepares a session. Nothing is joined until Run.
func New(cfg *config.Config, opts Options) *Application {
	a := &Application{
		cfg:         cfg,
		opts:        opts,
		game:        game.New(opts.View, opts.Emoji),
		decisions:   make(map[string]*Decision),
		invitations: make(map[string]int64),
		events:      make(chan event, 256),
		done:        make(chan struct{}),
		rand:        opts.Rand,
		now:         opts.Now,
		log:         slog.Default().With("component", "app"),
	}

	if a.rand == nil {
		a.rand = rand.Float64
	}
	if a.now == nil {
		a.now = func() int64 { return time.Now().UnixMilli() }
	}
	if a.opts.Join == nil {
		a.opts.Join = func(ctx context.Context, opts room.Options) (Room, error) {
			r, err := room.Join(ctx, cfg, opts)
			if err != nil {
				return nil, err
			}
			return r, nil
		}
	}
	if a.opts.Create == nil {
		a.opts.Create = func(ctx context.Context, opts room.Options) (Room, error) {
			r, err := room.Create(ctx, cfg, opts)
			if err != nil {
				return nil, err
			}
			return r, nil
		}
	}
	return a
}

// Game returns the shared game.
func (a *Application) Game() *game.Game {
	return a.game
}

// Join enters the lobby. Room events queue up until Run.
func (a *Application) Join(ctx context.Context) error {
	opts := a.roomOptions(scopeLobby, a.opts.Lobby)
	open := a.opts.Join
	if a.opts.Private {
		open = a.opts.Create
	}

	lobby, err := open(ctx, opts)
	if err != nil {
		return fmt.Errorf("join lobby: %w", err)
	}
	a.lobby = lobby
	a.summary.Lobby = lobby.ID()
	a.log = a.log.With("lobby", lobby.ID())
	a.log.Info("joined lobby", "peer", lobby.PeerID())
	a.notify()
	return nil
}

// Lobby returns the lobby id once joined.
func (a *Application) Lobby() string {
	if a.lobby == nil {
		return ""
	}
	return a.lobby.ID()
}

// Run processes events until ctx ends, joining the lobby first if Join was
// not called.
func (a *Application) Run(ctx context.Context) error {
	defer close(a.done)

	if a.lobby == nil {
		if err := a.Join(ctx); err != nil {
			return err
		}
	}
	a.game.UpdateState()

	ticker := time.NewTicker(PosInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return nil
		case ev := <-a.events:
			a.dispatch(ctx, ev)
		case <-ticker.C:
			a.broadcastPos()
		}
	}
}

// SetAccel sets our velocity and tells the game room.
func (a *Application) SetAccel(v game.Vec) {
	a.post(event{kind: eventAccel, scope: scopeLocal, accel: v})
}

// SendLog broadcasts a chat line to the lobby.
func (a *Application) SendLog(text string) {
	if text == "" {
		return
	}
	a.post(event{kind: eventLog, scope: scopeLocal, text: text})
}

// Summary returns what happened during the session. Call it after Run.
func (a *Application) Summary() Summary {
	return a.summary
}

func (a *Application) post(ev event) {
	select {
	case a.events <- ev:
	case <-a.done:
	}
}

// roomOptions wires a room's callbacks to the event queue, tagged so events
// from a room we already left are ignored.
func (a *Application) roomOptions(s scope, id string) room.Options {
	return room.Options{
		ID:    id,
		AppID: version.AppID,
		OnJoin: func(peerID string) {
			a.post(event{kind: eventJoin, scope: s, roomID: id, peerID: peerID})
		},
		OnLeave: func(peerID string) {
			a.post(event{kind: eventLeave, scope: s, roomID: id, peerID: peerID})
		},
		OnMessage: func(peerID string, payload msgpack.RawMessage) {
			a.post(event{kind: eventMessage, scope: s, roomID: id, peerID: peerID, payload: payload})
		},
	}
}

func (a *Application) dispatch(ctx context.Context, ev event) {
	switch ev.scope {
	case scopeLocal:
		a.handleLocal(ev)
		return
	case scopeGame:
		if a.gameRoom == nil || a.gameRoom.ID() != ev.roomID {
			return
		}
	}

	var msg Message
	if ev.kind == eventMessage {
		var err error
		if msg, err = decodeMessage(ev.payload); err != nil {
			a.log.Debug("dropping malformed message", "peer", ev.peerID, "err", err)
			return
		}
		a.summary.Received++
	}

	switch {
	case ev.scope == scopeLobby && ev.kind == eventJoin:
		a.onLobbyJoin(ev.peerID)
	case ev.scope == scopeLobby && ev.kind == eventLeave:
		a.onLobbyLeave(ctx, ev.peerID)
	case ev.scope == scopeLobby && ev.kind == eventMessage:
		a.onLobbyMessage(ctx, ev.peerID, msg)
	case ev.scope == scopeGame && ev.kind == eventJoin:
		a.onGameJoin(ev.peerID)
	case ev.scope == scopeGame && ev.kind == eventLeave:
		a.onGameLeave(ev.peerID)
	case ev.scope == scopeGame && ev.kind == eventMessage:
		a.onGameMessage(ev.peerID, msg)
	}
}

func (a *Application) handleLocal(ev event) {
	switch ev.kind {
	case eventAccel:
		a.game.SetAccel(ev.accel, "")
		if a.gameRoom != nil {
			a.send(a.gameRoom, QueryAccel, ev.accel, "", 0)
		}
	case eventLog:
		a.log.Info("you say", "text", ev.text)
		if a.lobby != nil {
			a.send(a.lobby, QueryLog, ev.text, "", 0)
		}
	}
}

// send builds and sends a query. Without peers it goes to everyone.
func (a *Application) send(r Room, q string, d any, rid string, ts int64, peerIDs ...string) {
	msg, err := NewMessage(q, d)
	if err != nil {
		a.log.Error("failed to encode message", "query", q, "err", err)
		return
	}
	msg.RID = rid
	msg.TS = ts
	a.sendMessage(r, msg, peerIDs...)
}

// sendMessage stamps the wall-clock time when the message carries none.
func (a *Application) sendMessage(r Room, msg Message, peerIDs ...string) {
	if msg.TS == 0 {
		msg.TS = a.now()
	}
	if err := r.SendMessage(msg, peerIDs...); err != nil {
		a.log.Debug("failed to send", "query", msg.Q, "err", err)
		return
	}
	a.summary.Sent++
}

func (a *Application) broadcastPos() {
	if a.gameRoom == nil || !a.game.IsActive() {
		return
	}
	a.send(a.gameRoom, QueryPos, a.game.Self().Pos, "", 0)
}

func (a *Application) notify() {
	if a.opts.OnStatus == nil || a.lobby == nil {
		return
	}
	st := Status{
		Lobby:      a.lobby.ID(),
		LobbyLink:  a.cfg.GetRoomLink(a.lobby.ID()),
		GameStatus: a.gameStatus,
		Hosting:    a.hosting,
		Players:    len(a.game.Players()),
	}
	if a.gameRoom != nil {
		st.GameRoom = a.gameRoom.ID()
	}
	a.opts.OnStatus(st)
}

func (a *Application) shutdown() {
	a.game.StopAnimation()
	if a.gameRoom != nil {
		a.send(a.gameRoom, QueryPresence, PresenceOffline, "", 0)
		a.gameRoom.Leave()
		a.gameRoom = nil
	}
	if a.lobby != nil {
		a.lobby.Leave()
	}
	a.summary.Players = a.game.Players()
	a.log.Info("session ended", "sent", a.summary.Sent, "received", a.summary.Received)
}

// seed derives a game room seed from lobby time and a random suffix.
func (a *Application) seed() string {
	return fmt.Sprintf("%d%d", a.lobby.Time(), int(math.Round(a.rand()*1000)))
}

var errNoLobby = errors.New("not in a lobby")
