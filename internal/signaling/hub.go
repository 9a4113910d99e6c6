package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/C0neF/gomoku-project/internal/room"
)

// Hub routes signaling traffic between connected participants and keeps the
// room directory in step with connection lifetimes.
type Hub struct {
	rooms *room.Directory

	mu      sync.RWMutex
	clients map[string]*Client

	logger *slog.Logger
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

// NewHub creates a hub over the given directory.
func NewHub(rooms *room.Directory) *Hub {
	return &Hub{
		rooms:   rooms,
		clients: make(map[string]*Client),
		logger:  slog.With("component", "hub"),
	}
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Rooms: h.rooms.Len(), Connections: len(h.clients)}
}

// Register adds a connected client and sends it its participant ID.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	h.logger.Info("client registered", "participant", c.ID)

	welcome, _ := NewMessage(MessageTypeWelcome, Welcome{ParticipantID: c.ID})
	c.enqueue(welcome)
}

// Unregister treats a dropped connection as a leave and stops its writer.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if h.clients[c.ID] == c {
		delete(h.clients, c.ID)
	}
	h.mu.Unlock()

	h.leaveCurrent(c)
	c.closeSend()

	h.logger.Info("client unregistered", "participant", c.ID)
}

// Close stops every writer. Each connection then closes and its read pump
// unregisters it.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.closeSend()
	}
}

func (h *Hub) client(id string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}

// Dispatch handles one inbound message. It is called from the sender's read
// pump only, which keeps each sender's traffic in order.
func (h *Hub) Dispatch(msg *Message) {
	c := msg.client
	if c == nil {
		return
	}
	c.setClientType(msg.ClientType)

	switch msg.Type {
	case MessageTypeCreateRoom:
		h.handleCreate(c, msg)

	case MessageTypeJoinRoom:
		h.handleJoin(c, msg)

	case MessageTypeListOthers:
		h.handleListOthers(c, msg)

	case MessageTypeLeaveRoom:
		h.leaveCurrent(c)
		h.respond(c, msg, Response{OK: true, ParticipantID: c.ID})

	case MessageTypeOffer, MessageTypeAnswer, MessageTypeICECandidate:
		h.relay(c, msg)

	default:
		h.logger.Debug("unknown message type", "type", msg.Type, "participant", c.ID)
		if msg.RequestID != "" {
			h.respond(c, msg, Response{Error: ErrorBadRequest})
		}
	}
}

func (h *Hub) handleCreate(c *Client, msg *Message) {
	h.leaveCurrent(c)

	roomID, err := h.rooms.CreateRoom(c.ID)
	if err != nil {
		h.logger.Error("create room", "participant", c.ID, "error", err)
		h.respond(c, msg, Response{Error: ErrorInternal})
		return
	}
	c.setRoomID(roomID)

	h.logger.Info("room created", "room", roomID, "participant", c.ID, "client_type", c.ClientType())
	h.respond(c, msg, Response{
		OK:               true,
		RoomID:           roomID,
		ParticipantID:    c.ID,
		Role:             RoleHost,
		ParticipantCount: 1,
	})
}

func (h *Hub) handleJoin(c *Client, msg *Message) {
	roomID := msg.RoomID
	if roomID == "" {
		h.respond(c, msg, Response{Error: ErrorBadRequest})
		return
	}

	// Rejoining the current room changes nothing and notifies no one.
	alreadyMember := c.RoomID() == roomID
	if !alreadyMember {
		h.leaveCurrent(c)
		if err := h.rooms.JoinRoom(roomID, c.ID); err != nil {
			h.logger.Info("join failed", "room", roomID, "participant", c.ID, "error", err)
			h.respond(c, msg, Response{Error: errorCode(err), RoomID: roomID})
			return
		}
		c.setRoomID(roomID)
	}

	snapshot, ok := h.rooms.Room(roomID)
	if !ok {
		c.setRoomID("")
		h.respond(c, msg, Response{Error: ErrorRoomNotFound, RoomID: roomID})
		return
	}
	others := without(snapshot.Participants, c.ID)

	role := RoleGuest
	if snapshot.Host == c.ID {
		role = RoleHost
	}
	var peerType string
	if host := h.client(snapshot.Host); host != nil && host != c {
		peerType = host.ClientType()
	}

	h.logger.Info("client joined", "room", roomID, "participant", c.ID, "count", len(snapshot.Participants))
	h.respond(c, msg, Response{
		OK:               true,
		RoomID:           roomID,
		ParticipantID:    c.ID,
		Role:             role,
		Others:           others,
		ParticipantCount: len(snapshot.Participants),
		PeerClientType:   peerType,
	})

	if alreadyMember {
		return
	}
	for _, id := range others {
		peer := h.client(id)
		if peer == nil {
			continue
		}
		note, _ := NewMessage(MessageTypePeerJoined, PeerJoined{
			ParticipantID:    c.ID,
			ParticipantCount: len(snapshot.Participants),
			Others:           without(snapshot.Participants, id),
			ClientType:       c.ClientType(),
		})
		note.RoomID = roomID
		peer.enqueue(note)
	}
}

func (h *Hub) handleListOthers(c *Client, msg *Message) {
	roomID := msg.RoomID
	if roomID == "" {
		roomID = c.RoomID()
	}

	others, err := h.rooms.ListOthers(roomID, c.ID)
	if err != nil {
		h.respond(c, msg, Response{Error: errorCode(err), RoomID: roomID})
		return
	}

	var peerType string
	if len(others) > 0 {
		if peer := h.client(others[0]); peer != nil {
			peerType = peer.ClientType()
		}
	}

	h.respond(c, msg, Response{
		OK:               true,
		RoomID:           roomID,
		ParticipantID:    c.ID,
		Others:           others,
		ParticipantCount: len(others) + 1,
		PeerClientType:   peerType,
	})
}

// relay forwards a negotiation payload to a target in the sender's room.
// Anything else is dropped.
func (h *Hub) relay(c *Client, msg *Message) {
	roomID := c.RoomID()
	if roomID == "" || msg.TargetID == "" {
		h.logger.Debug("relay dropped: no room or target", "participant", c.ID, "type", msg.Type)
		return
	}

	snapshot, ok := h.rooms.Room(roomID)
	if !ok || !slices.Contains(snapshot.Participants, msg.TargetID) {
		h.logger.Debug("relay dropped: target not in room", "participant", c.ID, "target", msg.TargetID)
		return
	}

	target := h.client(msg.TargetID)
	if target == nil {
		h.logger.Debug("relay dropped: target disconnected", "target", msg.TargetID)
		return
	}

	target.enqueue(&Message{
		Type:     msg.Type,
		RoomID:   roomID,
		SenderID: c.ID,
		TargetID: msg.TargetID,
		Payload:  msg.Payload,
	})
}

// leaveCurrent removes c from its room, if any, and tells whoever remains.
func (h *Hub) leaveCurrent(c *Client) {
	roomID := c.RoomID()
	if roomID == "" {
		return
	}
	c.setRoomID("")

	remaining, deleted := h.rooms.LeaveRoom(roomID, c.ID)
	if deleted {
		h.logger.Info("room deleted", "room", roomID)
		return
	}

	for _, id := range remaining {
		peer := h.client(id)
		if peer == nil {
			continue
		}
		note, _ := NewMessage(MessageTypePeerLeft, PeerLeft{
			ParticipantID:    c.ID,
			ParticipantCount: len(remaining),
		})
		note.RoomID = roomID
		peer.enqueue(note)
	}
}

func (h *Hub) respond(c *Client, req *Message, resp Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("marshal response", "error", err)
		return
	}
	c.enqueue(&Message{
		Type:      MessageTypeResponse,
		RequestID: req.RequestID,
		RoomID:    resp.RoomID,
		Payload:   b,
	})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return ErrorRoomNotFound
	case errors.Is(err, room.ErrRoomFull):
		return ErrorRoomFull
	default:
		return ErrorInternal
	}
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, p := range ids {
		if p != id {
			out = append(out, p)
		}
	}
	return out
}
