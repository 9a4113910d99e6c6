package session

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/C0neF/gomoku-project/internal/game"
	"github.com/C0neF/gomoku-project/internal/webrtc"
)

// DefaultAssignFallback is how long a guest waits in both-ready before
// re-sending its ready message.
const DefaultAssignFallback = 5 * time.Second

// Phase is the handshake's derived position.
type Phase int

const (
	PhaseNotReady Phase = iota
	PhaseLocalReadyOnly
	PhaseRemoteReadyOnly
	PhaseBothReady
	PhaseAssigned
)

func (p Phase) String() string {
	switch p {
	case PhaseNotReady:
		return "not-ready"
	case PhaseLocalReadyOnly:
		return "local-ready"
	case PhaseRemoteReadyOnly:
		return "remote-ready"
	case PhaseBothReady:
		return "both-ready"
	case PhaseAssigned:
		return "assigned"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ReadyMessage announces a participant's readiness for the next round.
type ReadyMessage struct {
	ParticipantID string `json:"participantId" msgpack:"participantId"`
	Ready         bool   `json:"ready" msgpack:"ready"`
	Round         uint64 `json:"round" msgpack:"round"`
	Timestamp     int64  `json:"timestamp" msgpack:"timestamp"`
}

// Assignment is the host's decision of who plays first in a round.
type Assignment struct {
	Player1ID string `json:"player1Id" msgpack:"player1Id"`
	Player2ID string `json:"player2Id" msgpack:"player2Id"`
	Round     uint64 `json:"round" msgpack:"round"`
	Timestamp int64  `json:"timestamp" msgpack:"timestamp"`
}

// RoleOf returns the role the assignment gives id.
func (a Assignment) RoleOf(id string) game.Player {
	switch id {
	case a.Player1ID:
		return game.Player1
	case a.Player2ID:
		return game.Player2
	}
	return game.None
}

// HandshakeConfig wires a handshake to the game channel and the actor's clock.
type HandshakeConfig struct {
	LocalID string

	// Send writes an envelope to the game channel.
	Send func(msgType string, payload any) error

	// Schedule runs fn on the owning goroutine after d. The returned func
	// cancels it on a best-effort basis.
	Schedule func(d time.Duration, fn func()) (cancel func())

	// OnAssigned is called after an assignment has been applied locally.
	OnAssigned func(a Assignment, role game.Player)

	// OnViolation is called when the peer sends an assignment that cannot
	// be right. The caller tears the transport down.
	OnViolation func(err error)

	// Coin reports true when the host should play first. Defaults to crypto/rand.
	Coin          func() bool
	Now           func() int64
	FallbackDelay time.Duration
}

// Handshake agrees on a fresh round once both sides are ready. The host
// decides roles; the guest mirrors them. Rounds count per game channel and
// start over at zero when a new channel opens. Handshake is owned by a single
// goroutine.
type Handshake struct {
	cfg    HandshakeConfig
	host   bool
	peerID string

	channelOpen   bool
	localReady    bool
	opponentReady bool
	round         uint64
	assignment    *Assignment

	// fallback state; token invalidates timers that fire after cancel
	cancelFallback func()
	fallbackToken  uint64
	fallbackFired  bool

	logger *slog.Logger
}

func NewHandshake(cfg HandshakeConfig) *Handshake {
	if cfg.Coin == nil {
		cfg.Coin = coinFlip
	}
	if cfg.Now == nil {
		cfg.Now = func() int64 { return time.Now().UnixMilli() }
	}
	if cfg.FallbackDelay <= 0 {
		cfg.FallbackDelay = DefaultAssignFallback
	}
	if cfg.OnAssigned == nil {
		cfg.OnAssigned = func(Assignment, game.Player) {}
	}
	if cfg.OnViolation == nil {
		cfg.OnViolation = func(error) {}
	}
	return &Handshake{
		cfg:    cfg,
		logger: slog.With("component", "handshake"),
	}
}

func coinFlip() bool {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().UnixNano()&1 == 0
	}
	return b[0]&1 == 0
}

func (h *Handshake) LocalReady() bool    { return h.localReady }
func (h *Handshake) OpponentReady() bool { return h.opponentReady }
func (h *Handshake) Round() uint64       { return h.round }

// Assignment returns the last applied assignment, if any.
func (h *Handshake) Assignment() (Assignment, bool) {
	if h.assignment == nil {
		return Assignment{}, false
	}
	return *h.assignment, true
}

// Role is the local game role under the last assignment.
func (h *Handshake) Role() game.Player {
	if h.assignment == nil {
		return game.None
	}
	return h.assignment.RoleOf(h.cfg.LocalID)
}

// Phase derives the handshake position from the two flags.
func (h *Handshake) Phase() Phase {
	switch {
	case h.localReady && h.opponentReady:
		return PhaseBothReady
	case h.localReady:
		return PhaseLocalReadyOnly
	case h.opponentReady:
		return PhaseRemoteReadyOnly
	case h.assignment != nil:
		return PhaseAssigned
	default:
		return PhaseNotReady
	}
}

func (h *Handshake) SetHost(host bool) { h.host = host }

func (h *Handshake) SetPeer(id string) { h.peerID = id }

// ChannelOpened marks the game channel usable. Rounds restart for the new
// channel and a pending local ready is announced again. A peer ready that
// arrived on this channel before the open event is kept.
func (h *Handshake) ChannelOpened() {
	h.channelOpen = true
	h.round = 0
	h.assignment = nil
	h.stopFallback()

	if h.localReady {
		h.sendReady()
	}
	h.advance()
}

// ChannelLost clears both flags and the round count. The last assignment
// stays for display.
func (h *Handshake) ChannelLost() {
	h.channelOpen = false
	h.localReady = false
	h.opponentReady = false
	h.round = 0
	h.stopFallback()
}

// SetLocalReady records the local choice and tells the peer. The message goes
// out on every call while the channel is open, even if nothing changed.
func (h *Handshake) SetLocalReady(ready bool) {
	changed := h.localReady != ready
	h.localReady = ready
	if changed && !ready {
		h.stopFallback()
	}

	if h.channelOpen {
		h.sendReady()
	}
	if changed {
		h.advance()
	}
}

// OnRemoteReady updates the opponent view. Messages from an older round were
// sent before the peer saw the current assignment and are ignored.
func (h *Handshake) OnRemoteReady(msg ReadyMessage) {
	if msg.Round < h.round {
		h.logger.Debug("stale ready", "round", msg.Round, "current", h.round)
		return
	}
	if h.peerID != "" && msg.ParticipantID != "" && msg.ParticipantID != h.peerID {
		h.logger.Warn("ready from unknown participant", "participant", msg.ParticipantID)
		return
	}
	h.opponentReady = msg.Ready
	if !msg.Ready {
		h.stopFallback()
	}
	h.advance()
}

// OnRemoteAssign applies the host's assignment on the guest. Repeats of the
// current or an older round are ignored.
func (h *Handshake) OnRemoteAssign(a Assignment) error {
	if h.host {
		return NewError(ProtocolViolation, "assign", ErrHostAssigned)
	}
	if a.Round <= h.round {
		h.logger.Debug("duplicate assignment", "round", a.Round, "current", h.round)
		return nil
	}

	role := a.RoleOf(h.cfg.LocalID)
	other := a.Player2ID
	if role == game.Player2 {
		other = a.Player1ID
	}
	if role == game.None || a.Player1ID == a.Player2ID || (h.peerID != "" && other != h.peerID) {
		err := WrapError(ProtocolViolation, "assign", ErrIdentityMismatch,
			fmt.Sprintf("player1=%s player2=%s local=%s", a.Player1ID, a.Player2ID, h.cfg.LocalID))
		h.cfg.OnViolation(err)
		return err
	}

	h.apply(a)
	return nil
}

func (h *Handshake) advance() {
	if h.localReady && h.opponentReady && h.channelOpen {
		if h.host {
			h.assign()
		} else {
			h.armFallback()
		}
	}
}

// assign decides the next round. The host applies it before the peer sees it.
func (h *Handshake) assign() {
	if h.peerID == "" {
		h.logger.Warn("cannot assign without a peer")
		return
	}

	a := Assignment{
		Player1ID: h.peerID,
		Player2ID: h.cfg.LocalID,
		Round:     h.round + 1,
		Timestamp: h.cfg.Now(),
	}
	if h.cfg.Coin() {
		a.Player1ID, a.Player2ID = h.cfg.LocalID, h.peerID
	}

	h.apply(a)
	if err := h.cfg.Send(webrtc.MessageTypeAssign, a); err != nil {
		h.logger.Warn("send assignment", "round", a.Round, "error", err)
	}
}

func (h *Handshake) apply(a Assignment) {
	h.round = a.Round
	h.assignment = &a
	h.localReady = false
	h.opponentReady = false
	h.stopFallback()

	h.logger.Info("round assigned", "round", a.Round, "player1", a.Player1ID, "player2", a.Player2ID)
	h.cfg.OnAssigned(a, a.RoleOf(h.cfg.LocalID))
}

func (h *Handshake) sendReady() {
	msg := ReadyMessage{
		ParticipantID: h.cfg.LocalID,
		Ready:         h.localReady,
		Round:         h.round,
		Timestamp:     h.cfg.Now(),
	}
	if err := h.cfg.Send(webrtc.MessageTypeReady, msg); err != nil {
		h.logger.Warn("send ready", "error", err)
	}
}

func (h *Handshake) armFallback() {
	if h.cancelFallback != nil || h.fallbackFired || h.cfg.Schedule == nil {
		return
	}
	h.fallbackToken++
	token := h.fallbackToken
	round := h.round
	h.cancelFallback = h.cfg.Schedule(h.cfg.FallbackDelay, func() {
		if token != h.fallbackToken {
			return
		}
		h.cancelFallback = nil
		if h.Phase() != PhaseBothReady || h.round != round || !h.channelOpen {
			return
		}
		h.fallbackFired = true
		h.logger.Debug("no assignment yet, re-sending ready", "round", round)
		h.sendReady()
	})
}

func (h *Handshake) stopFallback() {
	h.fallbackToken++
	h.fallbackFired = false
	if h.cancelFallback != nil {
		h.cancelFallback()
		h.cancelFallback = nil
	}
}
