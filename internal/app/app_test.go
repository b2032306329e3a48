package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amkisko/snake/internal/config"
	"github.com/amkisko/snake/internal/game"
	"github.com/amkisko/snake/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type sentMessage struct {
	to  []string
	msg Message
}

type fakeRoom struct {
	id     string
	peerID string
	opts   room.Options

	mu   sync.Mutex
	time int64
	left bool
	sent []sentMessage
}

func (r *fakeRoom) ID() string     { return r.id }
func (r *fakeRoom) PeerID() string { return r.peerID }

func (r *fakeRoom) Time() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.time
}

func (r *fakeRoom) SetTime(ts int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.time = ts
}

func (r *fakeRoom) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.left
}

func (r *fakeRoom) SendMessage(v any, peerIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{to: peerIDs, msg: v.(Message)})
	return nil
}

func (r *fakeRoom) Leave() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left = true
}

func (r *fakeRoom) messages() []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMessage(nil), r.sent...)
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []*fakeRoom
}

func (o *fakeOpener) open(_ context.Context, opts room.Options) (Room, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := opts.ID
	if id == "" {
		id = "private-lobby"
	}
	r := &fakeRoom{id: id, peerID: "me", opts: opts, time: 1234}
	o.opened = append(o.opened, r)
	return r, nil
}

func (o *fakeOpener) rooms() []*fakeRoom {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeRoom(nil), o.opened...)
}

type testApp struct {
	*Application
	lobby  *fakeRoom
	opener *fakeOpener
}

func newTestApp(t *testing.T, rolls ...float64) *testApp {
	t.Helper()

	cfg, err := config.Load(config.Options{})
	require.NoError(t, err)

	if len(rolls) == 0 {
		rolls = []float64{0.5}
	}
	next := 0
	opener := &fakeOpener{}
	a := New(cfg, Options{
		Join:   opener.open,
		Create: opener.open,
		Rand: func() float64 {
			r := rolls[next%len(rolls)]
			next++
			return r
		},
		Now: func() int64 { return 99 },
	})

	lobby := &fakeRoom{id: "game#main#1", peerID: "me", time: 5000}
	a.lobby = lobby
	return &testApp{Application: a, lobby: lobby, opener: opener}
}

func (ta *testApp) lobbyMessage(t *testing.T, peerID string, msg Message) {
	t.Helper()
	ta.dispatch(context.Background(), event{kind: eventMessage, scope: scopeLobby, peerID: peerID, payload: encode(t, msg)})
}

func (ta *testApp) gameMessage(t *testing.T, peerID string, msg Message) {
	t.Helper()
	ta.dispatch(context.Background(), event{kind: eventMessage, scope: scopeGame, roomID: ta.gameRoom.ID(), peerID: peerID, payload: encode(t, msg)})
}

func encode(t *testing.T, msg Message) msgpack.RawMessage {
	t.Helper()
	b, err := msgpack.Marshal(msg)
	require.NoError(t, err)
	return b
}

func query(t *testing.T, q string, d any) Message {
	t.Helper()
	msg, err := NewMessage(q, d)
	require.NoError(t, err)
	return msg
}

func decodeD[T any](t *testing.T, msg Message) T {
	t.Helper()
	var v T
	require.NoError(t, msg.Decode(&v))
	return v
}

func TestLobbyJoinSendsPresence(t *testing.T) {
	ta := newTestApp(t)

	ta.dispatch(context.Background(), event{kind: eventJoin, scope: scopeLobby, peerID: "p"})

	sent := ta.lobby.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"p"}, sent[0].to)
	assert.Equal(t, QueryPresence, sent[0].msg.Q)
	assert.Equal(t, PresenceOnline, decodeD[string](t, sent[0].msg))
	assert.Equal(t, int64(99), sent[0].msg.TS)
}

func TestPresence(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(ta *testApp)
		validate func(t *testing.T, ta *testApp, sent []sentMessage)
	}{
		{
			name: "opens the tie-break",
			validate: func(t *testing.T, ta *testApp, sent []sentMessage) {
				require.Len(t, sent, 1)
				assert.Equal(t, QueryNewGameRoom, sent[0].msg.Q)
				assert.Equal(t, 1, decodeD[int](t, sent[0].msg))
				assert.Equal(t, []string{"p"}, sent[0].to)
				assert.Equal(t, 1, ta.decisions["p"].Value)
			},
		},
		{
			name: "invites to the current game room",
			setup: func(ta *testApp) {
				ta.gameRoom = &fakeRoom{id: "game#g#1", peerID: "me", time: 7000}
			},
			validate: func(t *testing.T, ta *testApp, sent []sentMessage) {
				require.Len(t, sent, 1)
				assert.Equal(t, QueryGameRoom, sent[0].msg.Q)
				assert.Equal(t, "game#g#1", sent[0].msg.RID)
				assert.Equal(t, int64(7000), sent[0].msg.TS)
				assert.Empty(t, ta.decisions)
			},
		},
		{
			name: "keeps a roll already exchanged",
			setup: func(ta *testApp) {
				ta.decisions["p"] = &Decision{Value: 2}
			},
			validate: func(t *testing.T, ta *testApp, sent []sentMessage) {
				assert.Empty(t, sent)
				assert.Equal(t, 2, ta.decisions["p"].Value)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t)
			if tt.setup != nil {
				tt.setup(ta)
			}

			ta.lobbyMessage(t, "p", query(t, QueryPresence, PresenceOnline))
			ta.lobbyMessage(t, "p", query(t, QueryPresence, PresenceOnline))

			assert.Equal(t, int64(5000), ta.invitations["p"])
			tt.validate(t, ta, ta.lobby.messages())
		})
	}
}

func TestNewGameRoomTieBreak(t *testing.T) {
	tests := []struct {
		name     string
		mine     int
		theirs   int
		validate func(t *testing.T, ta *testApp, sent []sentMessage)
	}{
		{
			name:   "equal rolls roll again",
			mine:   1,
			theirs: 1,
			validate: func(t *testing.T, ta *testApp, sent []sentMessage) {
				require.Len(t, sent, 1)
				assert.Equal(t, QueryNewGameRoom, sent[0].msg.Q)
				assert.Equal(t, 2, decodeD[int](t, sent[0].msg))
				assert.Equal(t, 2, ta.decisions["p"].Value)
				assert.Empty(t, ta.opener.rooms())
			},
		},
		{
			name:   "higher roll hosts",
			mine:   2,
			theirs: 0,
			validate: func(t *testing.T, ta *testApp, sent []sentMessage) {
				rooms := ta.opener.rooms()
				require.Len(t, rooms, 1)
				assert.True(t, strings.HasPrefix(rooms[0].id, "game#5000"), rooms[0].id)
				assert.True(t, ta.decisions["p"].Host)
				assert.True(t, ta.hosting)
				assert.Equal(t, StatusCreated, ta.gameStatus)

				require.Len(t, sent, 1)
				assert.Equal(t, QueryGameRoom, sent[0].msg.Q)
				assert.Equal(t, rooms[0].id, sent[0].msg.RID)
				assert.Equal(t, int64(1234), sent[0].msg.TS)
				assert.Equal(t, []string{"p"}, sent[0].to)
			},
		},
		{
			name:   "lower roll waits",
			mine:   0,
			theirs: 2,
			validate: func(t *testing.T, ta *testApp, sent []sentMessage) {
				assert.Empty(t, sent)
				assert.True(t, ta.decisions["p"].User)
				assert.Empty(t, ta.opener.rooms())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t, 0.9)
			ta.decisions["p"] = &Decision{Value: tt.mine}

			ta.lobbyMessage(t, "p", query(t, QueryNewGameRoom, tt.theirs))

			tt.validate(t, ta, ta.lobby.messages())
		})
	}
}

func TestNewGameRoomWithoutDecision(t *testing.T) {
	t.Run("rolls then compares", func(t *testing.T) {
		ta := newTestApp(t, 0.5)

		ta.lobbyMessage(t, "p", query(t, QueryNewGameRoom, 0))

		sent := ta.lobby.messages()
		require.Len(t, sent, 2)
		assert.Equal(t, QueryNewGameRoom, sent[0].msg.Q)
		assert.Equal(t, 1, decodeD[int](t, sent[0].msg))
		assert.Equal(t, QueryGameRoom, sent[1].msg.Q)
		assert.True(t, ta.decisions["p"].Host)
	})

	t.Run("invites when already playing", func(t *testing.T) {
		ta := newTestApp(t)
		ta.gameRoom = &fakeRoom{id: "game#g#1", peerID: "me", time: 7000}

		ta.lobbyMessage(t, "p", query(t, QueryNewGameRoom, 2))

		sent := ta.lobby.messages()
		require.Len(t, sent, 1)
		assert.Equal(t, QueryGameRoom, sent[0].msg.Q)
		assert.Empty(t, ta.decisions)
	})
}

func TestReuseHostedGameRoom(t *testing.T) {
	ta := newTestApp(t, 0.9)
	ta.decisions["p"] = &Decision{Value: 2}
	ta.decisions["q"] = &Decision{Value: 2}

	ta.lobbyMessage(t, "p", query(t, QueryNewGameRoom, 0))
	ta.lobbyMessage(t, "q", query(t, QueryNewGameRoom, 1))

	rooms := ta.opener.rooms()
	require.Len(t, rooms, 1)

	sent := ta.lobby.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, rooms[0].id, sent[0].msg.RID)
	assert.Equal(t, rooms[0].id, sent[1].msg.RID)
}

func TestGameRoomInvitation(t *testing.T) {
	ta := newTestApp(t)
	invite := func(rid string, ts int64) {
		ta.lobbyMessage(t, "host", Message{Q: QueryGameRoom, RID: rid, TS: ts})
	}

	invite("game#m#1", 4242)
	rooms := ta.opener.rooms()
	require.Len(t, rooms, 1)
	assert.Equal(t, "game#m#1", rooms[0].id)
	assert.Equal(t, int64(4242), rooms[0].Time())
	assert.Equal(t, StatusAccepted, ta.gameStatus)
	assert.Equal(t, "host", ta.game.HostID())
	assert.False(t, ta.hosting)

	invite("game#m#1", 1)
	assert.Len(t, ta.opener.rooms(), 1)
	assert.Equal(t, int64(4242), rooms[0].Time())

	ta.game.AddPlayer(game.Player{ID: "host"})
	invite("game#z#1", 1)
	assert.Len(t, ta.opener.rooms(), 1, "active players stay in the room that sorts first")
	sent := ta.lobby.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"host"}, sent[0].to)
	assert.Equal(t, QueryGameRoom, sent[0].msg.Q)
	assert.Equal(t, "game#m#1", sent[0].msg.RID)

	invite("game#a#1", 77)
	rooms = ta.opener.rooms()
	require.Len(t, rooms, 2)
	assert.False(t, rooms[0].Connected())
	assert.Equal(t, "game#a#1", ta.gameRoom.ID())
	assert.False(t, ta.game.IsActive())

	old := rooms[0].messages()
	require.NotEmpty(t, old)
	assert.Equal(t, QueryPresence, old[len(old)-1].msg.Q)
	assert.Equal(t, PresenceOffline, decodeD[string](t, old[len(old)-1].msg))
}

func TestDeclinedInvitationInvitesBack(t *testing.T) {
	// Our roll of 1 loses to a's 2, so a hosts and invites us to a room that
	// sorts after the one we already play in.
	ta := newTestApp(t, 0.5)

	ta.lobbyMessage(t, "a", query(t, QueryPresence, PresenceOnline))
	require.Contains(t, ta.decisions, "a")
	assert.Equal(t, 1, ta.decisions["a"].Value)

	ta.lobbyMessage(t, "c", Message{Q: QueryGameRoom, RID: "game#1#1", TS: 10})
	require.NotNil(t, ta.gameRoom)
	ta.game.AddPlayer(game.Player{ID: "d"})

	ta.lobbyMessage(t, "a", query(t, QueryNewGameRoom, 2))
	assert.True(t, ta.decisions["a"].User)
	assert.False(t, ta.decisions["a"].Host)

	before := len(ta.lobby.messages())
	ta.lobbyMessage(t, "a", Message{Q: QueryGameRoom, RID: "game#5#1", TS: 20})
	assert.Equal(t, "game#1#1", ta.gameRoom.ID())

	sent := ta.lobby.messages()[before:]
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"a"}, sent[0].to)
	assert.Equal(t, QueryGameRoom, sent[0].msg.Q)
	assert.Equal(t, "game#1#1", sent[0].msg.RID)
}

func TestLobbyLeave(t *testing.T) {
	tests := []struct {
		name       string
		decisions  map[string]*Decision
		leaving    string
		wantRehost bool
	}{
		{
			name:       "smallest id re-hosts",
			decisions:  map[string]*Decision{"a": {User: true}, "z": {User: true}},
			leaving:    "a",
			wantRehost: true,
		},
		{
			name:      "someone else has the smallest id",
			decisions: map[string]*Decision{"b": {User: true}, "c": {User: true}},
			leaving:   "b",
		},
		{
			name:      "undecided peers wait",
			decisions: map[string]*Decision{"a": {User: true}, "z": {User: true}, "y": {}},
			leaving:   "a",
		},
		{
			name:      "a host remains",
			decisions: map[string]*Decision{"a": {User: true}, "z": {Host: true}},
			leaving:   "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t)
			ta.decisions = tt.decisions
			ta.invitations[tt.leaving] = 1

			ta.dispatch(context.Background(), event{kind: eventLeave, scope: scopeLobby, peerID: tt.leaving})

			assert.NotContains(t, ta.decisions, tt.leaving)
			assert.NotContains(t, ta.invitations, tt.leaving)

			if !tt.wantRehost {
				assert.Empty(t, ta.opener.rooms())
				return
			}

			rooms := ta.opener.rooms()
			require.Len(t, rooms, 1)
			sent := ta.lobby.messages()
			require.Len(t, sent, len(ta.decisions))
			for _, s := range sent {
				assert.Equal(t, QueryGameRoom, s.msg.Q)
				assert.Equal(t, rooms[0].id, s.msg.RID)
			}
			for _, d := range ta.decisions {
				assert.True(t, d.Host)
			}
		})
	}
}

func TestGameRoomMessages(t *testing.T) {
	ta := newTestApp(t)
	g := &fakeRoom{id: "game#g#1", peerID: "me"}
	ta.gameRoom = g
	ta.hosting = true

	ta.gameMessage(t, "p", query(t, QueryPlayer, game.Player{Emoji: 3, Pos: game.Vec{X: 1, Y: 2}, Accel: game.Vec{Y: 1}}))

	players := ta.game.Players()
	require.Len(t, players, 1)
	assert.Equal(t, "p", players[0].ID)
	assert.Equal(t, 3, players[0].Emoji)
	assert.Equal(t, game.Vec{X: 1, Y: 2}, players[0].Pos)
	assert.Equal(t, game.Vec{Y: 1}, players[0].Accel)

	sent := g.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, QueryPlayers, sent[0].msg.Q)
	assert.Equal(t, []string{"p"}, sent[0].to)
	roster := decodeD[[]game.Player](t, sent[0].msg)
	require.Len(t, roster, 1)
	assert.Equal(t, "me", roster[0].ID)

	ta.gameMessage(t, "p", query(t, QueryAccel, game.Vec{X: -3}))
	ta.gameMessage(t, "p", query(t, QueryPos, game.Vec{X: 10, Y: 10}))
	players = ta.game.Players()
	assert.Equal(t, game.Vec{X: -3}, players[0].Accel)
	assert.Equal(t, game.Vec{X: 10, Y: 10}, players[0].Pos)

	ta.gameMessage(t, "stranger", query(t, QueryAccel, game.Vec{X: 50}))
	assert.Equal(t, game.Vec{}, ta.game.Self().Accel)

	ta.gameMessage(t, "p", query(t, QueryPlayers, []game.Player{{ID: "me"}, {ID: "p"}, {ID: "q", Emoji: 5}}))
	assert.Len(t, ta.game.Players(), 2)

	ta.gameMessage(t, "p", query(t, QueryPresence, PresenceOffline))
	assert.False(t, ta.game.HasPlayer("p"))

	ta.dispatch(context.Background(), event{kind: eventLeave, scope: scopeGame, roomID: "game#g#1", peerID: "q"})
	assert.False(t, ta.game.IsActive())
}

func TestGameRoomEventsFromOldRoomIgnored(t *testing.T) {
	ta := newTestApp(t)
	ta.gameRoom = &fakeRoom{id: "game#g#2", peerID: "me"}

	payload := encode(t, query(t, QueryPlayer, game.Player{Emoji: 1}))
	ta.dispatch(context.Background(), event{kind: eventMessage, scope: scopeGame, roomID: "game#g#1", peerID: "p", payload: payload})

	assert.False(t, ta.game.IsActive())
}

func TestGameJoinSendsPlayer(t *testing.T) {
	ta := newTestApp(t)
	g := &fakeRoom{id: "game#g#1", peerID: "me"}
	ta.gameRoom = g
	ta.game.SetEmoji(7)

	ta.dispatch(context.Background(), event{kind: eventJoin, scope: scopeGame, roomID: g.id, peerID: "p"})

	sent := g.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, QueryPlayer, sent[0].msg.Q)
	p := decodeD[game.Player](t, sent[0].msg)
	assert.Equal(t, "me", p.ID)
	assert.Equal(t, 7, p.Emoji)
}

func TestLocalEvents(t *testing.T) {
	ta := newTestApp(t)
	g := &fakeRoom{id: "game#g#1", peerID: "me"}
	ta.gameRoom = g

	ta.dispatch(context.Background(), event{kind: eventAccel, scope: scopeLocal, accel: game.Vec{X: 1}})
	assert.Equal(t, game.Vec{X: 1}, ta.game.Self().Accel)
	sent := g.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, QueryAccel, sent[0].msg.Q)
	assert.Empty(t, sent[0].to)

	ta.dispatch(context.Background(), event{kind: eventLog, scope: scopeLocal, text: "hello"})
	logs := ta.lobby.messages()
	require.Len(t, logs, 1)
	assert.Equal(t, QueryLog, logs[0].msg.Q)
	assert.Equal(t, "hello", decodeD[string](t, logs[0].msg))
}

func TestBroadcastPos(t *testing.T) {
	ta := newTestApp(t)
	g := &fakeRoom{id: "game#g#1", peerID: "me"}
	ta.gameRoom = g

	ta.broadcastPos()
	assert.Empty(t, g.messages(), "nobody to tell")

	ta.game.AddPlayer(game.Player{ID: "p"})
	ta.game.SetPos(game.Vec{X: 4}, "")
	ta.broadcastPos()

	sent := g.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, QueryPos, sent[0].msg.Q)
	assert.Equal(t, game.Vec{X: 4}, decodeD[game.Vec](t, sent[0].msg))
}

func TestRun(t *testing.T) {
	opener := &fakeOpener{}
	cfg, err := config.Load(config.Options{})
	require.NoError(t, err)

	var mu sync.Mutex
	var statuses []Status
	a := New(cfg, Options{
		Private: true,
		Join:    opener.open,
		Create:  opener.open,
		OnStatus: func(s Status) {
			mu.Lock()
			defer mu.Unlock()
			statuses = append(statuses, s)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return len(opener.rooms()) == 1 }, time.Second, 5*time.Millisecond)
	lobby := opener.rooms()[0]
	assert.Equal(t, "private-lobby", lobby.id)

	a.SendLog("hi")
	require.Eventually(t, func() bool { return len(lobby.messages()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	assert.False(t, lobby.Connected())
	assert.Equal(t, "private-lobby", a.Summary().Lobby)
	assert.Equal(t, 1, a.Summary().Sent)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, statuses)
	assert.Equal(t, "http://localhost:8080/r/private-lobby", statuses[0].LobbyLink)
}

func TestJoinQueuesEventsUntilRun(t *testing.T) {
	opener := &fakeOpener{}
	cfg, err := config.Load(config.Options{})
	require.NoError(t, err)

	a := New(cfg, Options{Lobby: "game#main#7", Join: opener.open, Create: opener.open})
	assert.Empty(t, a.Lobby())

	require.NoError(t, a.Join(context.Background()))
	assert.Equal(t, "game#main#7", a.Lobby())

	lobby := opener.rooms()[0]
	lobby.opts.OnJoin("peer-1")
	assert.Empty(t, lobby.messages())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return len(lobby.messages()) == 1 }, time.Second, 5*time.Millisecond)
	sent := lobby.messages()[0]
	assert.Equal(t, []string{"peer-1"}, sent.to)
	assert.Equal(t, QueryPresence, sent.msg.Q)

	cancel()
	require.NoError(t, <-done)
	assert.Len(t, opener.rooms(), 1)
}
