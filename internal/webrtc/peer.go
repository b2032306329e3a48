// Package webrtc manages the mesh: one peer connection and one ordered data
// channel per remote peer, negotiated over the signaling relay.
package webrtc

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/amkisko/snake/internal/config"
	"github.com/amkisko/snake/internal/signaling"
	pion "github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// ChannelLabel names the single data channel opened between two peers.
const ChannelLabel = "snake"

// NewPeerConnection builds a peer connection from the configured ICE servers.
func NewPeerConnection(cfg *config.Config) (*pion.PeerConnection, error) {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	pc, err := pion.NewPeerConnection(pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, NewError("create peer connection", err)
	}
	return pc, nil
}

// SignalFunc sends a signal to the remote end of a link through the relay.
type SignalFunc func(payload signaling.SignalPayload) error

// Handlers are the link callbacks. They run on pion goroutines.
type Handlers struct {
	OnOpen    func()
	OnClose   func()
	OnMessage func(Message)
	OnTrack   func(*pion.TrackRemote)
}

// Link is the connection to one remote peer.
type Link struct {
	PeerID string

	pc       *pion.PeerConnection
	signal   SignalFunc
	handlers Handlers

	mu        sync.Mutex
	dc        *pion.DataChannel
	pending   []pion.ICECandidateInit
	remoteSet bool

	closeOnce sync.Once
	log       *slog.Logger
}

// NewLink prepares a connection to peerID. Call Offer on the side that starts
// negotiation; the other side feeds the offer to HandleSignal.
func NewLink(cfg *config.Config, peerID string, signal SignalFunc, handlers Handlers) (*Link, error) {
	pc, err := NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	l := &Link{
		PeerID:   peerID,
		pc:       pc,
		signal:   signal,
		handlers: handlers,
		log:      slog.Default().With("component", "link", "peer", peerID),
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		candidate, err := json.Marshal(c.ToJSON())
		if err != nil {
			l.log.Warn("failed to encode ICE candidate", "err", err)
			return
		}
		if err := l.signal(signaling.SignalPayload{ICECandidate: candidate}); err != nil {
			l.log.Debug("failed to send ICE candidate", "err", err)
		}
	})

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		l.log.Debug("connection state changed", "state", state.String())
		if state == pion.PeerConnectionStateFailed || state == pion.PeerConnectionStateClosed {
			go l.Close()
		}
	})

	pc.OnDataChannel(func(dc *pion.DataChannel) {
		if dc.Label() != ChannelLabel {
			l.log.Debug("ignoring unknown data channel", "label", dc.Label())
			return
		}
		l.attach(dc)
	})

	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		if l.handlers.OnTrack != nil {
			l.handlers.OnTrack(track)
		}
	})

	return l, nil
}

func (l *Link) attach(dc *pion.DataChannel) {
	l.mu.Lock()
	l.dc = dc
	l.mu.Unlock()

	dc.OnOpen(func() {
		l.log.Debug("data channel open")
		if l.handlers.OnOpen != nil {
			l.handlers.OnOpen()
		}
	})

	dc.OnClose(func() {
		l.log.Debug("data channel closed")
		go l.Close()
	})

	dc.OnMessage(func(raw pion.DataChannelMessage) {
		var msg Message
		if err := msgpack.Unmarshal(raw.Data, &msg); err != nil {
			l.log.Debug("dropping malformed message", "err", err)
			return
		}
		if l.handlers.OnMessage != nil {
			l.handlers.OnMessage(msg)
		}
	})
}

// Offer opens the data channel and sends an SDP offer to the remote peer.
func (l *Link) Offer() error {
	ordered := true
	dc, err := l.pc.CreateDataChannel(ChannelLabel, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return NewPeerError("create data channel", l.PeerID, err)
	}
	l.attach(dc)

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return NewPeerError("create offer", l.PeerID, err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return NewPeerError("set local description", l.PeerID, err)
	}

	desc := l.pc.LocalDescription()
	return l.signal(signaling.SignalPayload{Type: desc.Type.String(), SDP: desc.SDP})
}

// HandleSignal applies a signal relayed from the remote peer: an offer is
// answered, an answer completes negotiation, a candidate is added or held
// until the remote description is known.
func (l *Link) HandleSignal(payload signaling.SignalPayload) error {
	if payload.SDP != "" {
		switch payload.Type {
		case "offer":
			return l.answer(payload.SDP)
		case "answer":
			return l.setRemote(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: payload.SDP})
		default:
			return WrapError("handle signal", ErrUnexpectedSignal, payload.Type)
		}
	}

	if len(payload.ICECandidate) == 0 {
		return nil
	}

	var ice pion.ICECandidateInit
	if err := json.Unmarshal(payload.ICECandidate, &ice); err != nil {
		return NewPeerError("parse ICE candidate", l.PeerID, err)
	}

	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, ice)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if err := l.pc.AddICECandidate(ice); err != nil {
		return NewPeerError("add ICE candidate", l.PeerID, err)
	}
	return nil
}

func (l *Link) answer(sdp string) error {
	if err := l.setRemote(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: sdp}); err != nil {
		return err
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return NewPeerError("create answer", l.PeerID, err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return NewPeerError("set local description", l.PeerID, err)
	}

	desc := l.pc.LocalDescription()
	return l.signal(signaling.SignalPayload{Type: desc.Type.String(), SDP: desc.SDP})
}

func (l *Link) setRemote(desc pion.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return NewPeerError("set remote description", l.PeerID, err)
	}

	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, ice := range pending {
		if err := l.pc.AddICECandidate(ice); err != nil {
			l.log.Debug("failed to add buffered ICE candidate", "err", err)
		}
	}
	return nil
}

// Open reports whether the data channel is ready for Send.
func (l *Link) Open() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dc != nil && l.dc.ReadyState() == pion.DataChannelStateOpen
}

// Send encodes msg and writes it to the data channel.
func (l *Link) Send(msg Message) error {
	l.mu.Lock()
	dc := l.dc
	l.mu.Unlock()

	if dc == nil || dc.ReadyState() != pion.DataChannelStateOpen {
		return NewPeerError("send", l.PeerID, ErrChannelNotOpen)
	}

	b, err := msgpack.Marshal(msg)
	if err != nil {
		return NewPeerError("encode message", l.PeerID, err)
	}
	if err := dc.Send(b); err != nil {
		return NewPeerError("send", l.PeerID, err)
	}
	return nil
}

// Close tears the connection down. OnClose fires once, on the first call.
func (l *Link) Close() {
	l.closeOnce.Do(func() {
		if err := l.pc.Close(); err != nil {
			l.log.Debug("failed to close peer connection", "err", err)
		}
		if l.handlers.OnClose != nil {
			l.handlers.OnClose()
		}
	})
}
