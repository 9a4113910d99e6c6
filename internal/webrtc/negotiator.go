package webrtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// State is the negotiator's transport state.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateReady
	StateLost
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateReady:
		return "ready"
	case StateLost:
		return "lost"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Signal kinds relayed through the signaling gateway.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "ice-candidate"
)

var (
	ErrNotIdle    = errors.New("negotiation already started")
	ErrNotHost    = errors.New("only the host starts negotiation")
	ErrUnexpected = errors.New("unexpected negotiation message")
)

// NegotiatorConfig wires a negotiator to its surroundings.
type NegotiatorConfig struct {
	Transport Transport
	Host      bool

	// Signal relays an offer, answer or candidate to the peer.
	Signal func(kind string, payload json.RawMessage)

	// Async runs work off the caller's goroutine and hands the returned
	// continuation back to it. Defaults to running both inline.
	Async func(work func() func())

	// OnFailed is called once if SDP creation or application fails.
	OnFailed func(err error)
}

// Negotiator drives one transport from idle to ready. It is owned by a single
// goroutine and is not safe for concurrent use. Lost is terminal; a new
// negotiation needs a new Negotiator.
type Negotiator struct {
	cfg   NegotiatorConfig
	state State

	offerSeen  bool
	answerSeen bool
	remoteSet  bool
	pending    []json.RawMessage
	seen       map[string]struct{}

	logger *slog.Logger
}

func NewNegotiator(cfg NegotiatorConfig) *Negotiator {
	if cfg.Async == nil {
		cfg.Async = func(work func() func()) { work()() }
	}
	if cfg.OnFailed == nil {
		cfg.OnFailed = func(error) {}
	}
	role := "guest"
	if cfg.Host {
		role = "host"
	}
	return &Negotiator{
		cfg:    cfg,
		seen:   make(map[string]struct{}),
		logger: slog.With("component", "negotiator", "role", role),
	}
}

func (n *Negotiator) State() State { return n.state }

// Start creates an offer for the peer. Host only.
func (n *Negotiator) Start() error {
	if !n.cfg.Host {
		return ErrNotHost
	}
	if n.state != StateIdle {
		return ErrNotIdle
	}
	n.state = StateNegotiating

	t := n.cfg.Transport
	n.cfg.Async(func() func() {
		offer, err := t.CreateOffer()
		return func() { n.offerCreated(offer, err) }
	})
	return nil
}

func (n *Negotiator) offerCreated(offer json.RawMessage, err error) {
	if n.state != StateNegotiating {
		return
	}
	if err != nil {
		n.fail(fmt.Errorf("create offer: %w", err))
		return
	}
	n.cfg.Signal(SignalOffer, offer)
}

// HandleOffer answers the host's offer. Guest only; a repeated offer is ignored.
func (n *Negotiator) HandleOffer(offer json.RawMessage) error {
	if n.cfg.Host {
		return ErrUnexpected
	}
	if n.offerSeen || n.state == StateLost {
		return nil
	}
	n.offerSeen = true
	n.state = StateNegotiating

	t := n.cfg.Transport
	n.cfg.Async(func() func() {
		answer, err := t.AcceptOffer(offer)
		return func() { n.answerCreated(answer, err) }
	})
	return nil
}

func (n *Negotiator) answerCreated(answer json.RawMessage, err error) {
	if n.state != StateNegotiating {
		return
	}
	if err != nil {
		n.fail(fmt.Errorf("accept offer: %w", err))
		return
	}
	n.remoteSet = true
	n.cfg.Signal(SignalAnswer, answer)
	n.flushCandidates()
}

// HandleAnswer applies the guest's answer. Host only; a repeated answer is ignored.
func (n *Negotiator) HandleAnswer(answer json.RawMessage) error {
	if !n.cfg.Host {
		return ErrUnexpected
	}
	if n.answerSeen || n.state != StateNegotiating {
		return nil
	}
	n.answerSeen = true

	if err := n.cfg.Transport.AcceptAnswer(answer); err != nil {
		n.fail(fmt.Errorf("accept answer: %w", err))
		return nil
	}
	n.remoteSet = true
	n.flushCandidates()
	return nil
}

// HandleCandidate adds a remote candidate. Each distinct payload is applied
// once; candidates that arrive before the remote description are held and
// applied in arrival order once it is set.
func (n *Negotiator) HandleCandidate(candidate json.RawMessage) {
	if n.state == StateLost {
		return
	}
	key := string(candidate)
	if _, dup := n.seen[key]; dup {
		return
	}
	n.seen[key] = struct{}{}

	if !n.remoteSet {
		n.pending = append(n.pending, candidate)
		return
	}
	n.addCandidate(candidate)
}

func (n *Negotiator) flushCandidates() {
	pending := n.pending
	n.pending = nil
	for _, c := range pending {
		n.addCandidate(c)
	}
}

func (n *Negotiator) addCandidate(c json.RawMessage) {
	if err := n.cfg.Transport.AddCandidate(c); err != nil {
		n.logger.Debug("add candidate", "error", err)
	}
}

// LocalCandidate forwards a locally gathered candidate to the peer.
func (n *Negotiator) LocalCandidate(candidate json.RawMessage) {
	if n.state == StateLost {
		return
	}
	n.cfg.Signal(SignalCandidate, candidate)
}

// TransportOpened reports whether this open event moved the negotiator to ready.
// It returns true at most once.
func (n *Negotiator) TransportOpened() bool {
	if n.state != StateNegotiating {
		return false
	}
	n.state = StateReady
	return true
}

// TransportLost moves the negotiator to lost. It returns the state it left and
// whether this call was the transition; only the first call reports true.
func (n *Negotiator) TransportLost() (State, bool) {
	prev := n.state
	if prev == StateLost {
		return prev, false
	}
	n.state = StateLost
	return prev, true
}

// Timeout gives up on a negotiation that has not reached ready. It reports
// whether the negotiator was still negotiating.
func (n *Negotiator) Timeout() bool {
	if n.state == StateReady || n.state == StateLost {
		return false
	}
	n.state = StateLost
	n.closeTransport()
	return true
}

// Close tears the transport down without reporting a loss.
func (n *Negotiator) Close() {
	n.state = StateLost
	n.pending = nil
	n.closeTransport()
}

func (n *Negotiator) fail(err error) {
	n.logger.Warn("negotiation failed", "error", err)
	n.state = StateLost
	n.closeTransport()
	n.cfg.OnFailed(err)
}

func (n *Negotiator) closeTransport() {
	if err := n.cfg.Transport.Close(); err != nil {
		n.logger.Debug("close transport", "error", err)
	}
}
