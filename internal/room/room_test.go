package room

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amkisko/snake/internal/config"
	"github.com/amkisko/snake/internal/server"
	"github.com/amkisko/snake/internal/webrtc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestClock(t *testing.T) {
	c := newClock(5_000)
	assert.Equal(t, int64(5_000), c.Now())

	c.advance()
	c.advance()
	assert.Equal(t, int64(7_000), c.Now())

	c.Set(100)
	assert.Equal(t, int64(100), c.Now())
	c.advance()
	assert.Equal(t, int64(1_100), c.Now())

	c.Stop()
	c.Stop()
}

func TestClockTicks(t *testing.T) {
	c := newClock(0)
	go c.run(5 * time.Millisecond)
	defer c.Stop()

	assert.Eventually(t, func() bool { return c.Now() >= 2_000 }, time.Second, time.Millisecond)
	assert.Zero(t, c.Now()%1000)
}

func TestNextID(t *testing.T) {
	tests := []struct {
		name string
		seed string
		want []string
	}{
		{name: "explicit seed", seed: "17000123", want: []string{"game#17000123#1", "game#17000123#2"}},
		{name: "another seed counts separately", seed: "other", want: []string{"game#other#1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, want := range tt.want {
				assert.Equal(t, want, NextID(tt.seed))
			}
		})
	}

	first := NextID("")
	assert.True(t, strings.HasPrefix(first, "game#main#"), first)
	assert.NotEqual(t, first, NextID(DefaultSeed))
}

func TestPeerRecord(t *testing.T) {
	p := newPeer("abc")

	payload, at := p.LastMessage()
	assert.Nil(t, payload)
	assert.Zero(t, at)

	var got []msgpack.RawMessage
	p.OnMessage(func(m msgpack.RawMessage) { got = append(got, m) })

	msg, err := msgpack.Marshal("hello")
	require.NoError(t, err)
	for _, cb := range p.record(msg, 42_000) {
		cb(msg)
	}

	payload, at = p.LastMessage()
	assert.Equal(t, msgpack.RawMessage(msg), payload)
	assert.Equal(t, int64(42_000), at)
	assert.Len(t, got, 1)

	p.Set("emoji", 3)
	v, ok := p.Get("emoji")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Nil(t, p.Stream())
}

func newRelay(t *testing.T, maxPeers int) *config.Config {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := server.NewHub(maxPeers)
	go hub.Run(ctx)

	srv := httptest.NewServer(server.NewRouter(&config.Server{MaxPeers: maxPeers, Port: 8080}, hub))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	cfg, err := config.Load(config.Options{Domain: strings.TrimPrefix(srv.URL, "http://")})
	require.NoError(t, err)
	return cfg
}

func join(t *testing.T, cfg *config.Config, opts Options) *Room {
	t.Helper()

	r, err := Join(context.Background(), cfg, opts)
	require.NoError(t, err)
	t.Cleanup(r.Leave)
	return r
}

func TestJoinDiscoversPeers(t *testing.T) {
	cfg := newRelay(t, 8)
	alice := join(t, cfg, Options{ID: "lobby", AppID: "snake-test", PeerID: "alice"})
	bob := join(t, cfg, Options{ID: "lobby", AppID: "snake-test", PeerID: "bob"})

	assert.Equal(t, "lobby", alice.ID())
	assert.Equal(t, "alice", alice.PeerID())
	assert.True(t, alice.Connected())

	assert.Equal(t, []string{alice.PeerID()}, bob.Peers())
	assert.Eventually(t, func() bool {
		peers := alice.Peers()
		return len(peers) == 1 && peers[0] == bob.PeerID()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestJoinGeneratesID(t *testing.T) {
	cfg := newRelay(t, 8)

	r := join(t, cfg, Options{AppID: "snake-test", Seed: "room-test"})
	assert.Equal(t, "game#room-test#1", r.ID())
	assert.Equal(t, SelfID(), r.PeerID())
}

func TestJoinFullRoom(t *testing.T) {
	cfg := newRelay(t, 2)
	opts := Options{ID: "lobby", AppID: "snake-test"}

	for _, id := range []string{"alice", "bob"} {
		opts.PeerID = id
		join(t, cfg, opts)
	}

	opts.PeerID = "carol"
	_, err := Join(context.Background(), cfg, opts)
	assert.ErrorIs(t, err, webrtc.ErrRoomFull)
}

func TestCreatePrivateRoom(t *testing.T) {
	cfg := newRelay(t, 8)

	r, err := Create(context.Background(), cfg, Options{AppID: "snake-test"})
	require.NoError(t, err)
	defer r.Leave()

	assert.Len(t, strings.Split(r.ID(), "-"), 4)

	guest := join(t, cfg, Options{ID: r.ID(), AppID: "snake-test", PeerID: "guest"})
	assert.Equal(t, []string{r.PeerID()}, guest.Peers())
}

func TestLeave(t *testing.T) {
	cfg := newRelay(t, 8)
	r := join(t, cfg, Options{ID: "lobby", AppID: "snake-test"})

	r.SetTime(1_000)
	assert.Equal(t, int64(1_000), r.Time())

	r.Leave()
	r.Leave()

	assert.False(t, r.Connected())
	assert.Empty(t, r.Peers())
	assert.ErrorIs(t, r.SendMessage("hi"), webrtc.ErrLinkClosed)
}

func TestSendMessageToUnknownPeer(t *testing.T) {
	cfg := newRelay(t, 8)
	r := join(t, cfg, Options{ID: "lobby", AppID: "snake-test"})

	assert.NoError(t, r.SendMessage("nobody home"))
	assert.ErrorIs(t, r.SendMessage("hi", "ghost"), webrtc.ErrPeerDisconnected)
}

type callbackLog struct {
	mu     sync.Mutex
	events []string
}

func (l *callbackLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *callbackLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *callbackLog) options(peerID string) Options {
	return Options{
		ID:      "lobby",
		AppID:   "snake-test",
		PeerID:  peerID,
		OnJoin:  func(id string) { l.add("join:" + id) },
		OnLeave: func(id string) { l.add("leave:" + id) },
		OnMessage: func(id string, payload msgpack.RawMessage) {
			var text string
			if err := msgpack.Unmarshal(payload, &text); err != nil {
				text = "<" + err.Error() + ">"
			}
			l.add("msg:" + id + ":" + text)
		},
	}
}

func TestDataChannelCallbacks(t *testing.T) {
	cfg := newRelay(t, 8)
	cfg.STUNServer, cfg.TURNServer = "", ""

	var aliceLog, bobLog callbackLog
	alice := join(t, cfg, aliceLog.options("alice"))
	bob := join(t, cfg, bobLog.options("bob"))

	require.Eventually(t, func() bool {
		return len(aliceLog.snapshot()) == 1 && len(bobLog.snapshot()) == 1
	}, 10*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"join:bob"}, aliceLog.snapshot())
	assert.Equal(t, []string{"join:alice"}, bobLog.snapshot())

	fromBob, ok := alice.Peer("bob")
	require.True(t, ok)
	var subscribed callbackLog
	fromBob.OnMessage(func(payload msgpack.RawMessage) { subscribed.add(string(payload)) })

	require.NoError(t, alice.SendMessage("hi"))
	require.NoError(t, bob.SendMessage("yo", "alice"))

	assert.Eventually(t, func() bool {
		return len(bobLog.snapshot()) == 2 && len(aliceLog.snapshot()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"join:alice", "msg:alice:hi"}, bobLog.snapshot())
	assert.Equal(t, []string{"join:bob", "msg:bob:yo"}, aliceLog.snapshot())
	assert.Len(t, subscribed.snapshot(), 1)

	payload, at := fromBob.LastMessage()
	var text string
	require.NoError(t, msgpack.Unmarshal(payload, &text))
	assert.Equal(t, "yo", text)
	assert.Positive(t, at)
	assert.LessOrEqual(t, at, alice.Time())

	bob.Leave()

	assert.Eventually(t, func() bool {
		return len(aliceLog.snapshot()) == 3
	}, 5*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool {
		return len(aliceLog.snapshot()) > 3
	}, 300*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, []string{"join:bob", "msg:bob:yo", "leave:bob"}, aliceLog.snapshot())
	assert.Equal(t, []string{"join:alice", "msg:alice:hi"}, bobLog.snapshot())
	assert.Empty(t, alice.Peers())
}

func TestNoCallbacksAfterLeave(t *testing.T) {
	cfg := newRelay(t, 8)

	var events callbackLog
	r := join(t, cfg, events.options("alice"))

	payload, err := msgpack.Marshal("late")
	require.NoError(t, err)
	msg := webrtc.Message{Type: webrtc.MessageTypeAction, Payload: payload}

	// A subscriber that leaves stops delivery to the rest.
	p := r.addPeer("bob")
	p.OnMessage(func(msgpack.RawMessage) {
		events.add("first")
		r.Leave()
	})
	p.OnMessage(func(msgpack.RawMessage) { events.add("second") })

	r.received("bob", msg)
	assert.Equal(t, []string{"first"}, events.snapshot())

	r.received("bob", msg)
	r.peerOpened("carol")
	r.streamed("carol", nil)
	r.peerGone("bob", nil)
	assert.Equal(t, []string{"first"}, events.snapshot())
}
