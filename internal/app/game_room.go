package app

import (
	"context"
	"fmt"

	"github.com/amkisko/snake/internal/game"
	"github.com/amkisko/snake/internal/room"
)

// GameRoomVisit records one game room of the session.
type GameRoomVisit struct {
	ID     string
	Status string
	At     int64
}

// Summary is what the session did, for the closing report.
type Summary struct {
	Lobby     string
	GameRooms []GameRoomVisit
	Players   []game.Player
	Sent      int
	Received  int
}

func (a *Application) resolveGameRoom(ctx context.Context, id string) (Room, error) {
	r, _, err := a.resolveGameRoomStatus(ctx, id)
	return r, err
}

// resolveGameRoomStatus puts us in game room id: already there is
// "playing", otherwise the current room is left and id joined, "accepted".
// Without an id the room we host is reused, or a new one is "created".
func (a *Application) resolveGameRoomStatus(ctx context.Context, id string) (Room, string, error) {
	if a.lobby == nil {
		return nil, "", errNoLobby
	}

	switch {
	case id != "" && a.gameRoom != nil && a.gameRoom.ID() == id:
		return a.gameRoom, StatusPlaying, nil
	case id == "" && a.gameRoom != nil && a.hosting:
		return a.gameRoom, StatusPlaying, nil
	}

	status := StatusAccepted
	if id == "" {
		id = room.NextID(a.seed())
		status = StatusCreated
	}

	a.leaveGameRoom()

	r, err := a.opts.Join(ctx, a.roomOptions(scopeGame, id))
	if err != nil {
		return nil, "", fmt.Errorf("open game room %s: %w", id, err)
	}

	a.gameRoom = r
	a.gameStatus = status
	a.hosting = status == StatusCreated
	if a.hosting {
		a.game.SetHostID(r.PeerID())
	}
	a.summary.GameRooms = append(a.summary.GameRooms, GameRoomVisit{ID: id, Status: status, At: a.lobby.Time()})
	a.log.Info("game room", "room", id, "status", status)
	a.notify()

	return r, status, nil
}

func (a *Application) leaveGameRoom() {
	if a.gameRoom == nil {
		return
	}
	if a.gameRoom.Connected() {
		a.send(a.gameRoom, QueryPresence, PresenceOffline, "", 0)
		a.gameRoom.Leave()
	}
	a.gameRoom = nil
	a.gameStatus = ""
	a.hosting = false

	for _, p := range a.game.Players() {
		a.game.RemovePlayer(p.ID)
	}
}

func (a *Application) self() game.Player {
	p := a.game.Self()
	p.ID = a.gameRoom.PeerID()
	p.Status = PresenceOnline
	return p
}

func (a *Application) onGameJoin(peerID string) {
	a.send(a.gameRoom, QueryPlayer, a.self(), "", 0, peerID)
}

func (a *Application) onGameLeave(peerID string) {
	if a.game.HasPlayer(peerID) {
		a.game.RemovePlayer(peerID)
		a.notify()
	}
}

func (a *Application) onGameMessage(peerID string, msg Message) {
	switch msg.Q {
	case QueryPlayer:
		var p game.Player
		if err := msg.Decode(&p); err != nil {
			a.log.Debug("bad player", "peer", peerID, "err", err)
			return
		}
		p.ID = peerID
		a.upsertPlayer(p)
		if a.hosting {
			a.send(a.gameRoom, QueryPlayers, a.roster(peerID), "", 0, peerID)
		}
		a.notify()

	case QueryPlayers:
		var players []game.Player
		if err := msg.Decode(&players); err != nil {
			a.log.Debug("bad players", "peer", peerID, "err", err)
			return
		}
		for _, p := range players {
			if p.ID == "" || p.ID == a.gameRoom.PeerID() || a.game.HasPlayer(p.ID) {
				continue
			}
			a.upsertPlayer(p)
		}
		a.notify()

	case QueryAccel:
		var v game.Vec
		if err := msg.Decode(&v); err == nil && a.game.HasPlayer(peerID) {
			a.game.SetAccel(v, peerID)
		}

	case QueryPos:
		var v game.Vec
		if err := msg.Decode(&v); err == nil && a.game.HasPlayer(peerID) {
			a.game.SetPos(v, peerID)
		}

	case QueryPresence:
		var status string
		if err := msg.Decode(&status); err == nil && status == PresenceOffline {
			a.onGameLeave(peerID)
		}

	case QueryLog:
		var text string
		if err := msg.Decode(&text); err == nil {
			a.log.Info("player says", "peer", peerID, "text", text)
		}

	default:
		a.log.Debug("unknown game query", "peer", peerID, "query", msg.Q)
	}
}

func (a *Application) upsertPlayer(p game.Player) {
	if !a.game.HasPlayer(p.ID) {
		a.game.AddPlayer(game.Player{ID: p.ID, Emoji: p.Emoji, Status: PresenceOnline})
	}
	a.game.SetPos(p.Pos, p.ID)
	a.game.SetAccel(p.Accel, p.ID)
}

// roster lists us and every player except the one asking.
func (a *Application) roster(except string) []game.Player {
	out := []game.Player{a.self()}
	for _, p := range a.game.Players() {
		if p.ID != except {
			out = append(out, p)
		}
	}
	return out
}
