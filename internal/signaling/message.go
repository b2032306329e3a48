package signaling

import "encoding/json"

// Message is the websocket envelope exchanged between peers and the relay.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	RoomID  string          `json:"room_id,omitempty"`
	AppID   string          `json:"app_id,omitempty"`

	// PeerID is the sender's id on join_room and the origin peer on relayed
	// signals and presence notifications.
	PeerID string `json:"peer_id,omitempty"`

	// To addresses a signal to one peer of the room.
	To string `json:"to,omitempty"`
}

// Message type constants.
const (
	MessageTypeCreateRoom = "create_room"
	MessageTypeJoinRoom   = "join_room"
	MessageTypeLeaveRoom  = "leave_room"
	MessageTypeSignal     = "signal"

	MessageTypeRoomCreated = "room_created"
	MessageTypeJoinSuccess = "join_success"
	MessageTypePeerJoined  = "peer_joined"
	MessageTypePeerLeft    = "peer_left"
	MessageTypeError       = "error"
)

// SignalPayload represents the WebRTC signaling data (SDP offer/answer or ICE candidate).
type SignalPayload struct {
	Type         string          `json:"type,omitempty"`
	SDP          string          `json:"sdp,omitempty"`
	ICECandidate json.RawMessage `json:"ice_candidate,omitempty"`
}

// JoinPayload answers join_room and create_room: the id the relay accepted
// for us and the peers already in the room.
type JoinPayload struct {
	PeerID string   `json:"peer_id"`
	Peers  []string `json:"peers"`
}

// ErrorPayload represents error messages from server.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewMessage builds an envelope with payload marshaled as JSON. A nil
// payload leaves the field empty.
func NewMessage(msgType string, payload any) (*Message, error) {
	msg := &Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg.Payload = b
	return msg, nil
}

// ErrorMessage builds an error envelope for the given text.
func ErrorMessage(text string) *Message {
	msg, _ := NewMessage(MessageTypeError, ErrorPayload{Error: text})
	return msg
}

// DecodePayload decodes the message payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
