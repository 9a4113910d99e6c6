package webrtc

import "encoding/json"

// TransportHandlers receive transport events. Handlers are invoked from the
// transport's own goroutines; callers are expected to hand them off.
type TransportHandlers struct {
	OnCandidate func(candidate json.RawMessage)
	OnOpen      func()
	OnMessage   func(data []byte)
	OnLost      func()
}

// Transport is one peer connection carrying a single ordered data channel.
// SDP and candidate payloads are opaque JSON relayed through signaling.
type Transport interface {
	SetHandlers(h TransportHandlers)
	CreateOffer() (json.RawMessage, error)
	AcceptOffer(offer json.RawMessage) (answer json.RawMessage, err error)
	AcceptAnswer(answer json.RawMessage) error
	AddCandidate(candidate json.RawMessage) error
	Send(data []byte) error
	Close() error
}
