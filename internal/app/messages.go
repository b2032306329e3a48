package app

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Queries exchanged in the lobby.
const (
	QueryPresence    = "presence"
	QueryNewGameRoom = "new_game_room"
	QueryGameRoom    = "game_room"
	QueryLog         = "log"
)

// Queries exchanged inside a game room.
const (
	QueryPlayer  = "player"
	QueryPlayers = "players"
	QueryAccel   = "accel"
	QueryPos     = "pos"
)

const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Message is the application payload carried by the room's "msg" action.
type Message struct {
	// Q names the query.
	Q string `msgpack:"q"`
	// D is the query argument: a number, a string or a struct.
	D msgpack.RawMessage `msgpack:"d,omitempty"`
	// RID is a game room id.
	RID string `msgpack:"rid,omitempty"`
	// TS is the sender's timestamp in milliseconds.
	TS int64 `msgpack:"ts,omitempty"`
}

// NewMessage builds a query with d encoded as its argument. A nil d leaves
// the argument out.
func NewMessage(q string, d any) (Message, error) {
	msg := Message{Q: q}
	if d == nil {
		return msg, nil
	}
	b, err := msgpack.Marshal(d)
	if err != nil {
		return Message{}, err
	}
	msg.D = b
	return msg, nil
}

// Decode unpacks the query argument into v.
func (m Message) Decode(v any) error {
	return msgpack.Unmarshal(m.D, v)
}

func decodeMessage(payload msgpack.RawMessage) (Message, error) {
	var msg Message
	err := msgpack.Unmarshal(payload, &msg)
	return msg, err
}
