package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/C0neF/gomoku-project/internal/game"
	"github.com/C0neF/gomoku-project/internal/room"
	"github.com/C0neF/gomoku-project/internal/signaling"
	"github.com/C0neF/gomoku-project/internal/webrtc"
)

const (
	DefaultNegotiationTimeout = 30 * time.Second
	DefaultRequestTimeout     = 10 * time.Second

	inboxSize = 64
)

// Signaler is the manager's view of the signaling gateway. The sigclient
// package provides the production implementation.
type Signaler interface {
	ParticipantID() string
	CreateRoom(ctx context.Context) (*signaling.Response, error)
	JoinRoom(ctx context.Context, roomID string) (*signaling.Response, error)
	ListOthers(ctx context.Context, roomID string) (*signaling.Response, error)
	LeaveRoom(ctx context.Context, roomID string) error
	Relay(kind, targetID string, payload json.RawMessage) error
	Notifications() <-chan *signaling.Message
	Close() error
}

// TransportFactory builds a fresh peer transport for one negotiation.
type TransportFactory func(host bool) (webrtc.Transport, error)

type Config struct {
	Signaler     Signaler
	NewTransport TransportFactory

	NegotiationTimeout time.Duration
	RequestTimeout     time.Duration
	AssignFallback     time.Duration

	// Coin overrides the host's first-player draw.
	Coin func() bool
}

// Manager is the single owner of one participant's session. Every piece of
// session state lives on the goroutine running Run; public methods only post
// work to it and never block on the network. Results come back on Events.
type Manager struct {
	cfg    Config
	sig    Signaler
	selfID string

	inbox  chan func()
	events *mailbox

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	// actor state below
	signalingUp bool
	roomID      string
	role        string

	peerID         string
	peerClientType string
	codec          webrtc.Codec

	gen        uint64
	neg        *webrtc.Negotiator
	transport  webrtc.Transport
	lastOffer  string
	stopTimer  func()
	retryAfter bool

	hs    *Handshake
	relay *game.Relay

	logger *slog.Logger
}

// NewManager creates a manager bound to an already connected signaler.
func NewManager(cfg Config) *Manager {
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = DefaultNegotiationTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:    cfg,
		sig:    cfg.Signaler,
		selfID: cfg.Signaler.ParticipantID(),
		inbox:  make(chan func(), inboxSize),
		events: newMailbox(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		codec:  webrtc.JSONCodec{},
		logger: slog.With("component", "session", "participant", cfg.Signaler.ParticipantID()),
	}

	m.relay = game.NewRelay(outbox{m}, false)
	m.hs = NewHandshake(HandshakeConfig{
		LocalID:       m.selfID,
		Send:          m.sendEnvelope,
		Schedule:      m.schedule,
		OnAssigned:    m.onAssigned,
		OnViolation:   m.onViolation,
		Coin:          cfg.Coin,
		FallbackDelay: cfg.AssignFallback,
	})
	return m
}

// Events delivers session events in the order they happened. The channel
// closes after Run returns.
func (m *Manager) Events() <-chan Event { return m.events.out }

// ParticipantID is the identifier signaling assigned to this participant.
func (m *Manager) ParticipantID() string { return m.selfID }

// Run processes commands, signaling traffic and transport events until ctx
// is cancelled or Disconnect is called.
func (m *Manager) Run(ctx context.Context) error {
	defer func() {
		m.teardownPeer()
		m.cancel()
		m.once.Do(func() { close(m.done) })
		m.events.close()
	}()

	notes := m.sig.Notifications()
	m.signalingUp = true
	m.emitConnection()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.ctx.Done():
			return nil
		case fn := <-m.inbox:
			fn()
		case msg, ok := <-notes:
			if !ok {
				notes = nil
				m.onSignalingLost()
				continue
			}
			m.onNotification(msg)
		}
	}
}

func (m *Manager) post(fn func()) {
	select {
	case m.inbox <- fn:
	case <-m.done:
	}
}

// schedule runs fn on the actor after d.
func (m *Manager) schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, func() { m.post(fn) })
	return func() { t.Stop() }
}

// request runs a signaling call off the actor and hands the result back to it.
func (m *Manager) request(op string, call func(ctx context.Context) (*signaling.Response, error), done func(*signaling.Response, error)) {
	go func() {
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.RequestTimeout)
		resp, err := call(ctx)
		cancel()
		if err != nil {
			m.logger.Debug("request failed", "op", op, "error", err)
		}
		m.post(func() { done(resp, err) })
	}()
}

// CreateRoom asks signaling for a new room with this participant as host.
func (m *Manager) CreateRoom() {
	m.post(func() {
		m.leaveCurrent()
		m.request("create room", m.sig.CreateRoom, m.onCreated)
	})
}

// JoinRoom asks signaling to add this participant to roomID.
func (m *Manager) JoinRoom(roomID string) {
	m.post(func() {
		if roomID == m.roomID && m.roomID != "" {
			return
		}
		m.leaveCurrent()
		m.request("join room", func(ctx context.Context) (*signaling.Response, error) {
			return m.sig.JoinRoom(ctx, roomID)
		}, m.onJoined)
	})
}

// LeaveRoom leaves the current room and drops any peer connection.
func (m *Manager) LeaveRoom() {
	m.post(func() {
		m.leaveCurrent()
		m.emitConnection()
	})
}

// SetLocalReady records whether the local player wants the next round.
func (m *Manager) SetLocalReady(ready bool) {
	m.post(func() {
		m.hs.SetLocalReady(ready)
		m.emitConnection()
	})
}

// SubmitMove places a local stone. Moves that are not allowed are dropped.
func (m *Manager) SubmitMove(row, col int) {
	m.post(func() {
		mv, err := m.relay.SubmitMove(row, col)
		if err != nil {
			m.logger.Debug("move rejected", "row", row, "col", col, "error", err)
			return
		}
		m.events.push(MoveApplied{Move: mv, Local: true, State: m.relay.State()})
	})
}

// SyncState sends the local game snapshot to the peer.
func (m *Manager) SyncState() {
	m.post(func() {
		if err := m.relay.SyncState(); err != nil {
			m.logger.Debug("sync state", "error", err)
		}
	})
}

// Disconnect leaves the room, closes signaling and stops Run.
func (m *Manager) Disconnect() {
	m.post(func() {
		roomID := m.roomID
		m.teardownPeer()
		m.clearRoom()
		m.signalingUp = false
		m.emitConnection()

		go func() {
			if roomID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := m.sig.LeaveRoom(ctx, roomID); err != nil {
					m.logger.Debug("leave on disconnect", "error", err)
				}
				cancel()
			}
			m.sig.Close()
		}()
		m.cancel()
	})
}

func (m *Manager) onCreated(resp *signaling.Response, err error) {
	if err != nil {
		m.emitRequestError("create room", resp, err)
		return
	}
	m.enterRoom(resp.RoomID, signaling.RoleHost)
	m.logger.Info("room created", "room", resp.RoomID)
	m.emitConnection()
}

func (m *Manager) onJoined(resp *signaling.Response, err error) {
	if err != nil {
		m.emitRequestError("join room", resp, err)
		return
	}
	m.enterRoom(resp.RoomID, resp.Role)
	if resp.Role == signaling.RoleGuest && len(resp.Others) > 0 {
		m.setPeer(resp.Others[0], resp.PeerClientType)
	}
	m.logger.Info("room joined", "room", resp.RoomID, "role", resp.Role)
	m.emitConnection()

	if resp.Role == signaling.RoleHost && resp.ParticipantCount == room.MaxParticipants && len(resp.Others) > 0 {
		m.setPeer(resp.Others[0], resp.PeerClientType)
		m.startNegotiation()
	}
}

func (m *Manager) enterRoom(roomID, role string) {
	m.roomID = roomID
	m.role = role
	host := role == signaling.RoleHost
	m.hs.SetHost(host)
	m.relay.SetHost(host)
}

func (m *Manager) clearRoom() {
	m.roomID = ""
	m.role = ""
	m.peerID = ""
	m.peerClientType = ""
	m.hs.SetPeer("")
}

func (m *Manager) setPeer(id, clientType string) {
	m.peerID = id
	if clientType != "" {
		m.peerClientType = clientType
	}
	m.hs.SetPeer(id)
}

// leaveCurrent drops the peer and leaves the room without waiting for signaling.
func (m *Manager) leaveCurrent() {
	if m.roomID == "" {
		return
	}
	roomID := m.roomID
	m.teardownPeer()
	m.clearRoom()

	go func() {
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.RequestTimeout)
		defer cancel()
		if err := m.sig.LeaveRoom(ctx, roomID); err != nil {
			m.logger.Debug("leave room", "room", roomID, "error", err)
		}
	}()
}

func (m *Manager) emitRequestError(op string, resp *signaling.Response, err error) {
	kind := SignalingUnavailable
	if resp != nil {
		switch resp.Error {
		case signaling.ErrorRoomNotFound:
			kind = RoomNotFound
		case signaling.ErrorRoomFull:
			kind = RoomFull
		}
	}
	m.emitError(NewError(kind, op, err))
}

func (m *Manager) emitError(err *Error) {
	m.logger.Warn("session error", "kind", err.Kind.String(), "error", err)
	m.events.push(ErrorEvent{Kind: err.Kind, Message: err.Error(), Err: err})
}

func (m *Manager) onSignalingLost() {
	m.signalingUp = false
	m.logger.Warn("signaling connection closed")
	m.emitConnection()
}

func (m *Manager) onNotification(msg *signaling.Message) {
	switch msg.Type {
	case signaling.MessageTypePeerJoined:
		var pj signaling.PeerJoined
		if err := json.Unmarshal(msg.Payload, &pj); err != nil {
			m.logger.Warn("bad peer-joined", "error", err)
			return
		}
		m.onPeerJoined(pj)

	case signaling.MessageTypePeerLeft:
		var pl signaling.PeerLeft
		if err := json.Unmarshal(msg.Payload, &pl); err != nil {
			m.logger.Warn("bad peer-left", "error", err)
			return
		}
		m.onPeerLeft(pl)

	case signaling.MessageTypeOffer:
		m.onOffer(msg.SenderID, msg.Payload)

	case signaling.MessageTypeAnswer:
		if m.neg == nil || msg.SenderID != m.peerID {
			return
		}
		if err := m.neg.HandleAnswer(msg.Payload); err != nil {
			m.logger.Debug("answer dropped", "error", err)
		}

	case signaling.MessageTypeICECandidate:
		if msg.SenderID == "" || (m.peerID != "" && msg.SenderID != m.peerID) {
			return
		}
		if m.neg == nil && m.role != signaling.RoleHost {
			m.setPeer(msg.SenderID, "")
			m.startGuest()
		}
		if m.neg != nil {
			m.neg.HandleCandidate(msg.Payload)
		}

	default:
		m.logger.Debug("ignored notification", "type", msg.Type)
	}
}

func (m *Manager) onPeerJoined(pj signaling.PeerJoined) {
	if m.role != signaling.RoleHost || m.roomID == "" {
		return
	}
	m.peerClientType = pj.ClientType
	m.emitConnection()
	if pj.ParticipantCount < room.MaxParticipants {
		return
	}

	roomID := m.roomID
	m.request("list others", func(ctx context.Context) (*signaling.Response, error) {
		return m.sig.ListOthers(ctx, roomID)
	}, func(resp *signaling.Response, err error) {
		if err != nil || m.roomID != roomID || len(resp.Others) == 0 {
			return
		}
		m.setPeer(resp.Others[0], resp.PeerClientType)
		m.startNegotiation()
	})
}

func (m *Manager) onPeerLeft(pl signaling.PeerLeft) {
	if pl.ParticipantID != m.peerID {
		return
	}
	m.logger.Info("peer left", "peer", pl.ParticipantID)

	wasReady := m.neg != nil && m.neg.State() == webrtc.StateReady
	m.teardownPeer()
	m.peerID = ""
	m.hs.SetPeer("")

	if wasReady {
		m.emitError(NewError(PeerConnectionLost, "peer left", errors.New(pl.ParticipantID+" left the room")))
	}
	m.emitConnection()
}

func (m *Manager) onOffer(sender string, offer json.RawMessage) {
	if m.role == signaling.RoleHost || sender == "" {
		return
	}
	if m.peerID != "" && sender != m.peerID {
		return
	}
	if string(offer) == m.lastOffer && m.neg != nil {
		return
	}

	// A new offer means the host started over.
	if m.neg != nil && m.lastOffer != "" {
		m.teardownPeer()
	}
	m.setPeer(sender, "")
	if m.neg == nil {
		m.startGuest()
	}
	if m.neg == nil {
		return
	}
	m.lastOffer = string(offer)
	if err := m.neg.HandleOffer(offer); err != nil {
		m.logger.Debug("offer dropped", "error", err)
	}
	m.emitConnection()
}

func (m *Manager) startNegotiation() {
	if m.newNegotiator(true) {
		if err := m.neg.Start(); err != nil {
			m.logger.Warn("start negotiation", "error", err)
		}
		m.emitConnection()
	}
}

func (m *Manager) startGuest() {
	m.newNegotiator(false)
}

// newNegotiator replaces any existing transport with a fresh one. Events from
// older transports carry a stale generation and are dropped.
func (m *Manager) newNegotiator(host bool) bool {
	m.teardownPeer()

	t, err := m.cfg.NewTransport(host)
	if err != nil {
		m.emitError(NewError(TransportNegotiationFailed, "create transport", err))
		return false
	}

	m.gen++
	gen := m.gen
	target := m.peerID
	m.transport = t
	m.retryAfter = host

	t.SetHandlers(webrtc.TransportHandlers{
		OnCandidate: func(c json.RawMessage) {
			m.post(func() {
				if gen == m.gen && m.neg != nil {
					m.neg.LocalCandidate(c)
				}
			})
		},
		OnOpen: func() {
			m.post(func() {
				if gen == m.gen {
					m.onTransportOpen()
				}
			})
		},
		OnMessage: func(data []byte) {
			m.post(func() {
				if gen == m.gen {
					m.onPeerMessage(data)
				}
			})
		},
		OnLost: func() {
			m.post(func() {
				if gen == m.gen {
					m.onTransportLost()
				}
			})
		},
	})

	m.neg = webrtc.NewNegotiator(webrtc.NegotiatorConfig{
		Transport: t,
		Host:      host,
		Signal: func(kind string, payload json.RawMessage) {
			if err := m.sig.Relay(kind, target, payload); err != nil {
				m.logger.Warn("relay signal", "kind", kind, "error", err)
			}
		},
		Async: func(work func() func()) {
			go func() {
				next := work()
				m.post(func() {
					if gen == m.gen {
						next()
					}
				})
			}()
		},
		OnFailed: func(err error) {
			m.stopNegotiationTimer()
			m.emitError(NewError(TransportNegotiationFailed, "negotiate", err))
			m.emitConnection()
		},
	})

	m.stopTimer = m.schedule(m.cfg.NegotiationTimeout, func() {
		if gen != m.gen || m.neg == nil || !m.neg.Timeout() {
			return
		}
		m.emitError(NewError(TransportNegotiationFailed, "negotiate", ErrNegotiationTimer))
		m.emitConnection()
	})

	m.logger.Info("negotiating", "peer", target, "host", host)
	return true
}

func (m *Manager) stopNegotiationTimer() {
	if m.stopTimer != nil {
		m.stopTimer()
		m.stopTimer = nil
	}
}

// teardownPeer closes the transport without reporting a loss.
func (m *Manager) teardownPeer() {
	m.stopNegotiationTimer()
	m.gen++
	if m.neg != nil {
		if m.neg.State() == webrtc.StateReady {
			m.hs.ChannelLost()
		}
		m.neg.Close()
	}
	m.neg = nil
	m.transport = nil
	m.lastOffer = ""
	m.relay.Freeze()
}

func (m *Manager) onTransportOpen() {
	if m.neg == nil || !m.neg.TransportOpened() {
		return
	}
	m.stopNegotiationTimer()
	m.codec = webrtc.SelectCodec(m.peerClientType)
	m.logger.Info("peer connected", "peer", m.peerID, "codec", m.codec.Name())

	m.hs.ChannelOpened()
	m.emitConnection()
}

func (m *Manager) onTransportLost() {
	if m.neg == nil {
		return
	}
	prev, fired := m.neg.TransportLost()
	if !fired {
		return
	}
	m.stopNegotiationTimer()
	m.hs.ChannelLost()
	m.relay.Freeze()
	m.neg.Close()

	if prev == webrtc.StateReady {
		m.emitError(NewError(PeerConnectionLost, "transport", errors.New("data channel closed")))
	} else {
		m.emitError(NewError(TransportNegotiationFailed, "transport", errors.New("connection failed")))
	}
	m.neg = nil
	m.transport = nil
	m.emitConnection()

	// A host that lost an established channel to a peer still in the room
	// offers again.
	if prev == webrtc.StateReady && m.retryAfter && m.role == signaling.RoleHost && m.peerID != "" {
		m.startNegotiation()
	}
}

func (m *Manager) onViolation(err error) {
	m.emitError(asSessionError(err))
	m.teardownPeer()
	m.emitConnection()
}

func asSessionError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return NewError(ProtocolViolation, "peer", err)
}

func (m *Manager) onPeerMessage(data []byte) {
	// Data can overtake the open callback. A message means the channel is up.
	if m.neg != nil && m.neg.State() == webrtc.StateNegotiating {
		m.onTransportOpen()
	}

	msg, err := m.codec.Decode(data)
	if err != nil {
		alt := webrtc.Codec(webrtc.JSONCodec{})
		if _, isJSON := m.codec.(webrtc.JSONCodec); isJSON {
			alt = webrtc.MsgpackCodec{}
		}
		if msg, err = alt.Decode(data); err != nil {
			m.logger.Warn("undecodable peer message", "error", err)
			return
		}
	}

	switch msg.Type {
	case webrtc.MessageTypeMove:
		var mv game.Move
		if err := msg.DecodePayload(&mv); err != nil {
			m.logger.Warn("bad move payload", "error", err)
			return
		}
		applied, err := m.relay.OnRemoteMove(mv)
		if err != nil {
			m.logger.Warn("remote move rejected", "error", err)
			return
		}
		m.events.push(MoveApplied{Move: applied, State: m.relay.State()})

	case webrtc.MessageTypeState:
		var s game.State
		if err := msg.DecodePayload(&s); err != nil {
			m.logger.Warn("bad state payload", "error", err)
			return
		}
		adopted, ok, err := m.relay.OnRemoteState(s)
		if err != nil {
			m.logger.Warn("remote state rejected", "error", err)
			return
		}
		if ok {
			m.events.push(StateSynced{State: adopted})
		}

	case webrtc.MessageTypeReady:
		var r ReadyMessage
		if err := msg.DecodePayload(&r); err != nil {
			m.logger.Warn("bad ready payload", "error", err)
			return
		}
		m.hs.OnRemoteReady(r)
		m.emitConnection()

	case webrtc.MessageTypeAssign:
		var a Assignment
		if err := msg.DecodePayload(&a); err != nil {
			m.logger.Warn("bad assign payload", "error", err)
			return
		}
		if err := m.hs.OnRemoteAssign(a); err != nil {
			m.logger.Warn("assignment rejected", "error", err)
		}

	default:
		m.logger.Warn("peer message dropped", "error", fmt.Errorf("%q: %w", msg.Type, ErrUnknownEnvelope))
	}
}

func (m *Manager) onAssigned(a Assignment, role game.Player) {
	m.relay.Reset(a.Round, role)
	m.events.push(AssignmentApplied{
		Player1ID:  a.Player1ID,
		Player2ID:  a.Player2ID,
		Round:      a.Round,
		MyGameRole: role,
	})
	m.events.push(StateSynced{State: m.relay.State()})
	m.emitConnection()
}

func (m *Manager) sendEnvelope(msgType string, payload any) error {
	if m.transport == nil || m.neg == nil || m.neg.State() != webrtc.StateReady {
		return webrtc.ErrChannelNotOpen
	}
	data, err := m.codec.Encode(msgType, payload)
	if err != nil {
		return err
	}
	return m.transport.Send(data)
}

func (m *Manager) snapshot() ConnectionChanged {
	state := webrtc.StateIdle
	if m.neg != nil {
		state = m.neg.State()
	}
	return ConnectionChanged{
		SignalingConnected: m.signalingUp,
		PeerConnected:      state == webrtc.StateReady,
		LocalReady:         m.hs.LocalReady(),
		OpponentReady:      m.hs.OpponentReady(),
		MyGameRole:         m.relay.Role(),
		RoomID:             m.roomID,
		ParticipantID:      m.selfID,
		Role:               m.role,
		TransportState:     state,
		Phase:              m.hs.Phase(),
		Round:              m.hs.Round(),
	}
}

func (m *Manager) emitConnection() {
	m.events.push(m.snapshot())
}

// outbox sends relay traffic over the current game channel.
type outbox struct{ m *Manager }

func (o outbox) SendMove(mv game.Move) error {
	return o.m.sendEnvelope(webrtc.MessageTypeMove, mv)
}

func (o outbox) SendState(s game.State) error {
	return o.m.sendEnvelope(webrtc.MessageTypeState, s)
}
