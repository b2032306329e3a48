package webrtc

import "github.com/vmihailenco/msgpack/v5"

// MessageTypeAction carries an application payload. It is the only action
// the mesh speaks today.
const MessageTypeAction = "msg"

// Message represents all WebRTC data channel messages
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// DecodePayload decodes the message payload into the provided value
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewMessage creates a new Message with the given type and payload
func NewMessage(t string, payload any) (Message, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Type:    t,
		Payload: b,
	}, nil
}
