// Package game holds the shared toy world: every player's avatar, position
// and velocity, and the 24fps loop that draws it.
package game

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// FrameInterval is the render loop period.
const FrameInterval = time.Second / 24

const waitingText = "Waiting for others..."

// Viewport is where frames go.
type Viewport interface {
	// Size returns the drawable area in terminal cells.
	Size() (cols, rows int)
	Present(frame string)
}

// DrawFunc paints one frame. It runs with the game locked and must not call
// back into Game.
type DrawFunc func(stage *Stage)

type Game struct {
	mu      sync.Mutex
	players map[string]*Player
	emoji   int
	pos     Vec
	accel   Vec
	hostID  string

	view  Viewport
	stage *Stage
	stop  chan struct{}
	now   func() time.Time

	log *slog.Logger
}

// New creates a game wearing emoji. A nil view disables rendering.
func New(view Viewport, emoji int) *Game {
	return &Game{
		players: make(map[string]*Player),
		emoji:   emoji,
		view:    view,
		stage:   NewStage(0, 0),
		now:     time.Now,
		log:     slog.Default().With("component", "game"),
	}
}

// IsActive reports whether anyone else is playing.
func (g *Game) IsActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.players) > 0
}

func (g *Game) HostID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hostID
}

func (g *Game) SetHostID(peerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setHostIDLocked(peerID)
}

func (g *Game) setHostIDLocked(peerID string) {
	g.log.Debug("set host id", "peer", peerID)
	g.hostID = peerID
}

func (g *Game) Emoji() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.emoji
}

func (g *Game) SetEmoji(emoji int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.log.Debug("set emoji", "emoji", emoji)
	g.emoji = emoji
}

// Self returns the local player.
func (g *Game) Self() Player {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Player{Emoji: g.emoji, Pos: g.pos, Accel: g.accel}
}

// SetPos moves a known player, or the local player when peerID is empty or
// unknown.
func (g *Game) SetPos(v Vec, peerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.players[peerID]; ok && peerID != "" {
		p.Pos = v
		return
	}
	g.pos = v
}

// SetAccel sets a known player's velocity, or the local one when peerID is
// empty or unknown.
func (g *Game) SetAccel(v Vec, peerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.players[peerID]; ok && peerID != "" {
		p.Accel = v
		return
	}
	g.accel = v
}

// HasPlayer reports whether peerID is on the stage.
func (g *Game) HasPlayer(peerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.players[peerID]
	return ok
}

// Players returns the remote players sorted by id.
func (g *Game) Players() []Player {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Player, 0, len(g.players))
	for _, id := range g.playerIDsLocked() {
		out = append(out, *g.players[id])
	}
	return out
}

// AddPlayer puts a player on the stage at the centre, at rest.
func (g *Game) AddPlayer(p Player) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.log.Debug("add player", "peer", p.ID, "emoji", p.Emoji)
	g.players[p.ID] = &Player{ID: p.ID, Emoji: p.Emoji, Status: p.Status}
	g.updateStateLocked()
}

func (g *Game) RemovePlayer(peerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.log.Debug("remove player", "peer", peerID)
	delete(g.players, peerID)
	g.updateStateLocked()
}

// UpdateState shows the stage while anyone else plays; otherwise it resets
// the local player, forgets the host and shows the loader.
func (g *Game) UpdateState() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updateStateLocked()
}

func (g *Game) updateStateLocked() {
	if len(g.players) == 0 {
		g.pos = Vec{}
		g.accel = Vec{}
		g.setHostIDLocked("")
		g.startAnimationLocked(g.drawLoader)
		return
	}
	g.startAnimationLocked(g.drawStage)
}

// StartAnimation replaces any running animation with draw.
func (g *Game) StartAnimation(draw DrawFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.startAnimationLocked(draw)
}

func (g *Game) startAnimationLocked(draw DrawFunc) {
	g.stopAnimationLocked()
	if g.view == nil {
		return
	}

	stop := make(chan struct{})
	g.stop = stop
	go func() {
		ticker := time.NewTicker(FrameInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if !g.frame(stop, draw) {
					return
				}
			case <-stop:
				return
			}
		}
	}()
}

func (g *Game) StopAnimation() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopAnimationLocked()
}

func (g *Game) stopAnimationLocked() {
	if g.stop != nil {
		close(g.stop)
		g.stop = nil
	}
}

// frame renders once and presents the result outside the lock. It reports
// false once the animation was stopped.
func (g *Game) frame(stop chan struct{}, draw DrawFunc) bool {
	g.mu.Lock()
	select {
	case <-stop:
		g.mu.Unlock()
		return false
	default:
	}

	cols, rows := g.view.Size()
	if cols <= 0 || rows <= 0 {
		g.mu.Unlock()
		return true
	}
	g.stage.Resize(cols, rows)
	g.stage.Clear()
	draw(g.stage)
	out := g.stage.String()
	g.mu.Unlock()

	g.view.Present(out)
	return true
}

func (g *Game) drawLoader(stage *Stage) {
	sine := math.Sin(float64(g.now().UnixMilli()) / 1000 / 10)
	hue := sine*180 + 180
	cx, cy := stage.Width()/2, stage.Height()/2

	stage.FillText(waitingText, cx, cy, Hue(hue))

	layers := []struct {
		x, y float64
		hue  float64
	}{
		{cx + sine*20, cy, hue - 90},
		{cx - sine*20, cy, hue - 180},
		{cx, cy + sine*20, hue - 270},
		{cx, cy - sine*20, hue - 360},
	}
	for _, l := range layers {
		stage.FillText(waitingText, l.x, l.y, Hue(l.hue))
	}
}

func (g *Game) drawStage(stage *Stage) {
	self := Player{Emoji: g.emoji, Pos: g.pos, Accel: g.accel}
	renderPlayer(&self, stage)
	g.pos = self.Pos

	for _, id := range g.playerIDsLocked() {
		renderPlayer(g.players[id], stage)
	}
}

// renderPlayer draws p wrapped around the stage, tied to the centre by a
// line, then advances it by one frame of velocity.
func renderPlayer(p *Player, stage *Stage) {
	w, h := stage.Width(), stage.Height()
	x := math.Mod(w/2+p.Pos.X, w)
	y := math.Mod(h/2+p.Pos.Y, h)
	color := Hue(float64(p.Emoji) * 360 / 40)

	stage.Line(w/2, h/2, x, y, color)
	stage.FillText(Emoji(p.Emoji), x, y, color)

	p.Pos = p.Pos.Add(p.Accel)
}

func (g *Game) playerIDsLocked() []string {
	ids := make([]string, 0, len(g.players))
	for id := range g.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
