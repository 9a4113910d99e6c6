package game

import (
	"fmt"
	"log/slog"
)

// Outbox carries relay traffic to the peer.
type Outbox interface {
	SendMove(Move) error
	SendState(State) error
}

// Relay owns the local copy of the game log and keeps it in step with the
// peer. The host's log is authoritative. Relay is driven from a single
// goroutine and is not safe for concurrent use.
type Relay struct {
	log    *Log
	role   Player
	host   bool
	frozen bool
	out    Outbox
	logger *slog.Logger
	now    func() int64
}

// NewRelay creates a relay with an empty round-0 log and no role.
func NewRelay(out Outbox, host bool) *Relay {
	return &Relay{
		log:    NewLog(0),
		host:   host,
		out:    out,
		logger: slog.With("component", "relay"),
		now:    now,
	}
}

func (r *Relay) Role() Player { return r.role }

func (r *Relay) Frozen() bool { return r.frozen }

func (r *Relay) State() State { return r.log.Snapshot() }

// SetHost switches authority. Only the host answers violations with a full state push.
func (r *Relay) SetHost(host bool) { r.host = host }

// Reset starts a new round with the given role and unfreezes the relay.
// It is local only and never relayed.
func (r *Relay) Reset(round uint64, role Player) {
	r.log.Reset(round)
	r.role = role
	r.frozen = false
}

// Freeze rejects local moves until the next Reset.
func (r *Relay) Freeze() { r.frozen = true }

// SubmitMove places a stone for the local role and relays it to the peer.
func (r *Relay) SubmitMove(row, col int) (Move, error) {
	switch {
	case r.frozen:
		return Move{}, ErrRelayFrozen
	case r.role == None:
		return Move{}, ErrUnassigned
	case r.log.Over():
		return Move{}, ErrGameOver
	case r.log.CurrentPlayer() != r.role:
		return Move{}, ErrNotYourTurn
	}

	m := Move{Row: row, Col: col, Player: r.role, Timestamp: r.now()}
	if err := r.log.Apply(m); err != nil {
		return Move{}, err
	}
	if err := r.out.SendMove(m); err != nil {
		r.logger.Warn("relay move", "error", err)
	}
	return m, nil
}

// OnRemoteMove applies a move received from the peer. A move that does not
// fit the local log is rejected; the host then pushes its full state so the
// guest converges.
func (r *Relay) OnRemoteMove(m Move) (Move, error) {
	if r.role == None {
		return Move{}, ErrUnassigned
	}
	if m.Player != r.role.Opponent() {
		r.correctPeer()
		return Move{}, fmt.Errorf("remote move %d,%d: %w", m.Row, m.Col, ErrWrongPlayer)
	}
	if err := r.log.Apply(m); err != nil {
		r.correctPeer()
		return Move{}, fmt.Errorf("remote move %d,%d: %w", m.Row, m.Col, err)
	}
	return m, nil
}

// OnRemoteState adopts a peer snapshot after replaying it into a fresh log.
// The host never adopts; it answers with its own state instead.
func (r *Relay) OnRemoteState(s State) (State, bool, error) {
	if r.host {
		if err := r.out.SendState(r.log.Snapshot()); err != nil {
			r.logger.Warn("answer state", "error", err)
		}
		return State{}, false, nil
	}
	if s.Round != r.log.Round() {
		return State{}, false, fmt.Errorf("remote state round %d: %w", s.Round, ErrStaleRound)
	}
	replayed, err := Replay(s)
	if err != nil {
		return State{}, false, fmt.Errorf("remote state: %w", err)
	}
	r.log = replayed
	return r.log.Snapshot(), true, nil
}

// SyncState sends the local snapshot to the peer.
func (r *Relay) SyncState() error {
	return r.out.SendState(r.log.Snapshot())
}

func (r *Relay) correctPeer() {
	if !r.host {
		return
	}
	if err := r.out.SendState(r.log.Snapshot()); err != nil {
		r.logger.Warn("push state", "error", err)
	}
}
