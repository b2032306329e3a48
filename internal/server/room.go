package server

import "slices"

// roomKey namespaces rooms per application so two builds speaking different
// protocol revisions never share a lobby.
type roomKey struct {
	appID  string
	roomID string
}

// Room is one signaling namespace: every peer in it may signal every other.
type Room struct {
	ID    string
	AppID string

	// Peers maps peer id to its connection.
	Peers map[string]*Client
}

func newRoom(key roomKey) *Room {
	return &Room{
		ID:    key.roomID,
		AppID: key.appID,
		Peers: make(map[string]*Client),
	}
}

func (r *Room) key() roomKey {
	return roomKey{appID: r.AppID, roomID: r.ID}
}

// peerIDs lists the room's peers except one, sorted for stable output.
func (r *Room) peerIDs(except string) []string {
	ids := make([]string, 0, len(r.Peers))
	for id := range r.Peers {
		if id != except {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
