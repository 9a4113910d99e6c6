package webrtc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Envelope types carried on the game channel.
const (
	MessageTypeMove   = "move"
	MessageTypeState  = "state"
	MessageTypeReady  = "ready"
	MessageTypeAssign = "assign"
)

var ErrEmptyType = errors.New("message has no type")

// Message is one decoded envelope. Its payload stays encoded until
// DecodePayload is called with the target type.
type Message struct {
	Type    string
	Payload []byte

	unmarshal func([]byte, any) error
}

// DecodePayload decodes the message payload into v.
func (m Message) DecodePayload(v any) error {
	if m.unmarshal == nil {
		return json.Unmarshal(m.Payload, v)
	}
	return m.unmarshal(m.Payload, v)
}

// Codec encodes envelopes for the wire.
type Codec interface {
	Name() string
	Encode(msgType string, payload any) ([]byte, error)
	Decode(data []byte) (Message, error)
}

// JSONCodec is understood by browser peers.
type JSONCodec struct{}

type jsonEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(msgType string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return json.Marshal(jsonEnvelope{Type: msgType, Payload: b})
}

func (JSONCodec) Decode(data []byte) (Message, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Message{}, ErrEmptyType
	}
	return Message{Type: env.Type, Payload: env.Payload, unmarshal: json.Unmarshal}, nil
}

// MsgpackCodec is the compact encoding used between two CLI peers.
type MsgpackCodec struct{}

type msgpackEnvelope struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Encode(msgType string, payload any) ([]byte, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return msgpack.Marshal(msgpackEnvelope{Type: msgType, Payload: b})
}

func (MsgpackCodec) Decode(data []byte) (Message, error) {
	var env msgpackEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Message{}, ErrEmptyType
	}
	return Message{Type: env.Type, Payload: env.Payload, unmarshal: msgpack.Unmarshal}, nil
}
