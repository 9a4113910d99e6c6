package signaling

import "encoding/json"

// Message is the envelope for every websocket frame in either direction.
type Message struct {
	Type       string          `json:"type"`
	RequestID  string          `json:"request_id,omitempty"`
	RoomID     string          `json:"room_id,omitempty"`
	SenderID   string          `json:"sender_id,omitempty"`
	TargetID   string          `json:"target_id,omitempty"`
	ClientType string          `json:"client_type,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`

	// client is the connection the message arrived on. Hub-internal.
	client *Client `json:"-"`
}

// Message type constants.
const (
	// Requests, answered with a response carrying the same request_id.
	MessageTypeCreateRoom = "create-room"
	MessageTypeJoinRoom   = "join-room"
	MessageTypeListOthers = "list-others"
	MessageTypeLeaveRoom  = "leave-room"

	// Relays, forwarded to target_id with sender_id stamped.
	MessageTypeOffer        = "offer"
	MessageTypeAnswer       = "answer"
	MessageTypeICECandidate = "ice-candidate"

	// Server pushes.
	MessageTypeWelcome    = "welcome"
	MessageTypeResponse   = "response"
	MessageTypePeerJoined = "peer-joined"
	MessageTypePeerLeft   = "peer-left"
)

// Error codes carried in Response.Error.
const (
	ErrorRoomNotFound = "room-not-found"
	ErrorRoomFull     = "room-full"
	ErrorBadRequest   = "bad-request"
	ErrorInternal     = "internal"
)

// Roles reported on create and join.
const (
	RoleHost  = "host"
	RoleGuest = "guest"
)

// Response is the payload of a response message.
type Response struct {
	OK               bool     `json:"ok"`
	Error            string   `json:"error,omitempty"`
	RoomID           string   `json:"room_id,omitempty"`
	ParticipantID    string   `json:"participant_id,omitempty"`
	Role             string   `json:"role,omitempty"`
	Others           []string `json:"others,omitempty"`
	ParticipantCount int      `json:"participant_count,omitempty"`
	PeerClientType   string   `json:"peer_client_type,omitempty"`
}

// Welcome is pushed once when a connection opens.
type Welcome struct {
	ParticipantID string `json:"participant_id"`
}

// PeerJoined is pushed to the existing members when someone joins.
type PeerJoined struct {
	ParticipantID    string   `json:"participant_id"`
	ParticipantCount int      `json:"participant_count"`
	Others           []string `json:"others"`
	ClientType       string   `json:"client_type,omitempty"`
}

// PeerLeft is pushed to the remaining members when someone leaves or drops.
type PeerLeft struct {
	ParticipantID    string `json:"participant_id"`
	ParticipantCount int    `json:"participant_count"`
}

// NewMessage builds a message with payload marshalled to JSON.
func NewMessage(msgType string, payload any) (*Message, error) {
	msg := &Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg.Payload = b
	return msg, nil
}

// IsRelay reports whether a message type is forwarded peer to peer.
func IsRelay(msgType string) bool {
	switch msgType {
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeICECandidate:
		return true
	}
	return false
}
