package app

import (
	"context"
	"slices"
)

func (a *Application) onLobbyJoin(peerID string) {
	a.send(a.lobby, QueryPresence, PresenceOnline, "", 0, peerID)
}

func (a *Application) onLobbyMessage(ctx context.Context, peerID string, msg Message) {
	switch msg.Q {
	case QueryPresence:
		a.handlePresence(peerID)

	case QueryNewGameRoom:
		var d int
		if err := msg.Decode(&d); err != nil {
			a.log.Debug("bad new_game_room", "peer", peerID, "err", err)
			return
		}
		a.handleNewGameRoom(ctx, peerID, d)

	case QueryGameRoom:
		a.handleGameRoom(ctx, peerID, msg.RID, msg.TS)

	case QueryLog:
		var text string
		if err := msg.Decode(&text); err != nil {
			return
		}
		a.log.Info("peer says", "peer", peerID, "text", text)

	default:
		a.log.Debug("unknown lobby query", "peer", peerID, "query", msg.Q)
	}
}

// handlePresence answers a peer's first hello: an invitation to our game
// room, or an opening roll. A roll already exchanged with the peer stands.
func (a *Application) handlePresence(peerID string) {
	if _, seen := a.invitations[peerID]; seen {
		return
	}
	a.invitations[peerID] = a.lobby.Time()

	if _, ok := a.decisions[peerID]; ok {
		return
	}
	if a.gameRoom != nil {
		a.inviteToGameRoom(peerID)
		return
	}
	d := a.roll(peerID)
	a.send(a.lobby, QueryNewGameRoom, d.Value, "", 0, peerID)
}

// handleNewGameRoom runs the host tie-break against the peer's roll d.
func (a *Application) handleNewGameRoom(ctx context.Context, peerID string, d int) {
	dec, ok := a.decisions[peerID]
	if !ok {
		if a.gameRoom != nil {
			a.inviteToGameRoom(peerID)
			return
		}
		dec = a.roll(peerID)
		a.send(a.lobby, QueryNewGameRoom, dec.Value, "", 0, peerID)
	}

	switch {
	case d == dec.Value:
		dec = a.roll(peerID)
		a.send(a.lobby, QueryNewGameRoom, dec.Value, "", 0, peerID)

	case d < dec.Value:
		dec.Host = true
		if _, err := a.resolveGameRoom(ctx, ""); err != nil {
			a.log.Warn("failed to open game room", "err", err)
			return
		}
		a.inviteToGameRoom(peerID)

	default:
		dec.User = true
	}
}

// handleGameRoom follows an invitation. A player already sharing a game with
// others only moves to a room whose id sorts before its own; otherwise it
// invites the sender back, so both end up in the lower id.
func (a *Application) handleGameRoom(ctx context.Context, peerID, rid string, ts int64) {
	if rid == "" {
		return
	}
	if a.gameRoom != nil && a.gameRoom.ID() != rid && a.game.IsActive() && rid > a.gameRoom.ID() {
		a.log.Debug("staying in current game room", "invited", rid, "current", a.gameRoom.ID())
		a.inviteToGameRoom(peerID)
		return
	}

	r, status, err := a.resolveGameRoomStatus(ctx, rid)
	if err != nil {
		a.log.Warn("failed to join game room", "room", rid, "err", err)
		return
	}
	if status == StatusAccepted {
		r.SetTime(ts)
		a.game.SetHostID(peerID)
	}
}

func (a *Application) inviteToGameRoom(peerID string) {
	a.send(a.lobby, QueryGameRoom, nil, a.gameRoom.ID(), a.gameRoom.Time(), peerID)
}

// onLobbyLeave forgets the peer. When every remaining tie-break made us a
// user of a host that is now gone, the peer with the smallest id re-hosts
// and invites the rest.
func (a *Application) onLobbyLeave(ctx context.Context, peerID string) {
	delete(a.decisions, peerID)
	delete(a.invitations, peerID)

	if len(a.decisions) == 0 {
		return
	}
	c := a.countDecisions()
	if c.unknown > 0 || c.host > 0 || c.user == 0 {
		return
	}

	ids := []string{a.lobby.PeerID()}
	for id := range a.decisions {
		ids = append(ids, id)
	}
	if slices.Min(ids) != a.lobby.PeerID() {
		return
	}

	a.log.Info("host left, hosting a new game room")
	if _, err := a.resolveGameRoom(ctx, ""); err != nil {
		a.log.Warn("failed to open game room", "err", err)
		return
	}
	for id, d := range a.decisions {
		d.Host = true
		d.User = false
		a.inviteToGameRoom(id)
	}
}
