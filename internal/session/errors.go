package session

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to the front-end.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	RoomNotFound
	RoomFull
	TransportNegotiationFailed
	ProtocolViolation
	PeerConnectionLost
	SignalingUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case RoomNotFound:
		return "room-not-found"
	case RoomFull:
		return "room-full"
	case TransportNegotiationFailed:
		return "transport-negotiation-failed"
	case ProtocolViolation:
		return "protocol-violation"
	case PeerConnectionLost:
		return "peer-connection-lost"
	case SignalingUnavailable:
		return "signaling-unavailable"
	default:
		return "unknown"
	}
}

// Recoverable reports whether the user can simply try again.
func (k ErrorKind) Recoverable() bool {
	return k == RoomNotFound || k == RoomFull
}

var (
	ErrIdentityMismatch = errors.New("assignment does not name this participant")
	ErrHostAssigned     = errors.New("host received an assignment")
	ErrNegotiationTimer = errors.New("negotiation timed out")
	ErrUnknownEnvelope  = errors.New("unknown envelope type")
)

// Error wraps a failure with the operation that hit it.
type Error struct {
	Kind    ErrorKind
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func WrapError(kind ErrorKind, op string, err error, details string) *Error {
	return &Error{Kind: kind, Op: op, Err: err, Details: details}
}

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}
