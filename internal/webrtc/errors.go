package webrtc

import (
	"errors"
	"fmt"
)

var (
	ErrPeerDisconnected = errors.New("peer disconnected")
	ErrSignalingError   = errors.New("signaling server error")
	ErrTimeout          = errors.New("timeout")
	ErrChannelNotOpen   = errors.New("channel not open")
	ErrUnexpectedSignal = errors.New("unexpected signal type")
	ErrRoomFull         = errors.New("room is full")
	ErrConnectionFailed = errors.New("connection failed")
	ErrLinkClosed       = errors.New("link closed")
)

// Error describes a failed mesh operation, optionally against one peer.
type Error struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Peer != "" {
		if e.Details != "" {
			return fmt.Sprintf("%s %s: %v (%s)", e.Op, e.Peer, e.Err, e.Details)
		}
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func NewPeerError(op, peer string, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
