package webrtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pion "github.com/pion/webrtc/v4"
)

// DataChannelLabel names the single game channel. Browser peers open the same label.
const DataChannelLabel = "gameData"

var ErrChannelNotOpen = errors.New("data channel not open")

// PionTransport is a Transport backed by a pion PeerConnection.
type PionTransport struct {
	pc   *pion.PeerConnection
	host bool

	mu       sync.Mutex
	dc       *pion.DataChannel
	handlers TransportHandlers

	openOnce sync.Once
	lostOnce sync.Once

	logger *slog.Logger
}

// NewPionTransport builds a peer connection from the ICE settings. The host
// creates the data channel; the guest waits for it.
func NewPionTransport(ice ICEConfig, host bool) (*PionTransport, error) {
	pc, err := pion.NewPeerConnection(ice.Configuration())
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	t := &PionTransport{
		pc:     pc,
		host:   host,
		logger: slog.With("component", "transport"),
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		b, err := json.Marshal(c.ToJSON())
		if err != nil {
			t.logger.Warn("marshal candidate", "error", err)
			return
		}
		if h := t.handlerSet().OnCandidate; h != nil {
			h(b)
		}
	})

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		t.logger.Debug("peer connection state", "state", state.String())
		switch state {
		case pion.PeerConnectionStateFailed, pion.PeerConnectionStateClosed:
			t.lost()
		}
	})

	if host {
		ordered := true
		dc, err := pc.CreateDataChannel(DataChannelLabel, &pion.DataChannelInit{
			Ordered: &ordered,
		})
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("create data channel: %w", err)
		}
		t.attach(dc)
	} else {
		pc.OnDataChannel(func(dc *pion.DataChannel) {
			if dc.Label() != DataChannelLabel {
				t.logger.Debug("ignoring data channel", "label", dc.Label())
				return
			}
			t.attach(dc)
		})
	}

	return t, nil
}

func (t *PionTransport) SetHandlers(h TransportHandlers) {
	t.mu.Lock()
	t.handlers = h
	t.mu.Unlock()
}

func (t *PionTransport) handlerSet() TransportHandlers {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handlers
}

func (t *PionTransport) attach(dc *pion.DataChannel) {
	t.mu.Lock()
	t.dc = dc
	t.mu.Unlock()

	dc.OnOpen(func() {
		t.openOnce.Do(func() {
			if h := t.handlerSet().OnOpen; h != nil {
				h()
			}
		})
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		if h := t.handlerSet().OnMessage; h != nil {
			h(msg.Data)
		}
	})
	dc.OnClose(t.lost)
}

func (t *PionTransport) lost() {
	t.lostOnce.Do(func() {
		if h := t.handlerSet().OnLost; h != nil {
			h()
		}
	})
}

func (t *PionTransport) CreateOffer() (json.RawMessage, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(t.pc.LocalDescription())
}

func (t *PionTransport) AcceptOffer(offer json.RawMessage) (json.RawMessage, error) {
	var desc pion.SessionDescription
	if err := json.Unmarshal(offer, &desc); err != nil {
		return nil, fmt.Errorf("parse offer: %w", err)
	}
	if desc.Type != pion.SDPTypeOffer {
		return nil, fmt.Errorf("parse offer: unexpected sdp type %s", desc.Type)
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(t.pc.LocalDescription())
}

func (t *PionTransport) AcceptAnswer(answer json.RawMessage) error {
	var desc pion.SessionDescription
	if err := json.Unmarshal(answer, &desc); err != nil {
		return fmt.Errorf("parse answer: %w", err)
	}
	if desc.Type != pion.SDPTypeAnswer {
		return fmt.Errorf("parse answer: unexpected sdp type %s", desc.Type)
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (t *PionTransport) AddCandidate(candidate json.RawMessage) error {
	var ice pion.ICECandidateInit
	if err := json.Unmarshal(candidate, &ice); err != nil {
		return fmt.Errorf("parse candidate: %w", err)
	}
	if err := t.pc.AddICECandidate(ice); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

func (t *PionTransport) Send(data []byte) error {
	t.mu.Lock()
	dc := t.dc
	t.mu.Unlock()

	if dc == nil || dc.ReadyState() != pion.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	return dc.Send(data)
}

func (t *PionTransport) Close() error {
	return t.pc.Close()
}
