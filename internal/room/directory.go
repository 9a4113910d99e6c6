package room

import (
	"crypto/rand"
	"errors"
	"math/big"
	"slices"
	"sync"
)

const (
	// IDLength is the number of characters in a room code.
	IDLength = 6

	// IDAlphabet is the character set room codes are drawn from.
	IDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// MaxParticipants is the capacity of a room.
	MaxParticipants = 2

	maxCreateAttempts = 64
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrIDSpaceExhausted = errors.New("no free room id")
)

// Room is a read-only snapshot of a room's membership.
type Room struct {
	ID           string
	Host         string
	Participants []string
}

// entry is the directory's private, lock-protected record for one room.
// A deleted entry may still be referenced by a caller that looked it up
// before the delete; such callers observe deleted and treat the room as gone.
type entry struct {
	mu           sync.Mutex
	id           string
	host         string
	participants []string
	deleted      bool
}

// Directory maps room IDs to their participants.
//
// The map itself is guarded by mu only for lookup, insert and delete.
// Membership changes take the room's own lock, so joins to different rooms
// never contend and RoomFull checks are race-free within a room.
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]*entry

	newID func() (string, error)
}

// NewDirectory creates an empty directory that draws IDs from crypto/rand.
func NewDirectory() *Directory {
	return &Directory{
		rooms: make(map[string]*entry),
		newID: GenerateID,
	}
}

// GenerateID returns a random room code of IDLength characters from IDAlphabet.
func GenerateID() (string, error) {
	b := make([]byte, IDLength)
	max := big.NewInt(int64(len(IDAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = IDAlphabet[n.Int64()]
	}
	return string(b), nil
}

// ValidID reports whether id has the shape of a room code.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// CreateRoom inserts a new room with participantID as its only member and host.
func (d *Directory) CreateRoom(participantID string) (string, error) {
	for range maxCreateAttempts {
		id, err := d.newID()
		if err != nil {
			return "", err
		}

		d.mu.Lock()
		if _, taken := d.rooms[id]; taken {
			d.mu.Unlock()
			continue
		}
		d.rooms[id] = &entry{
			id:           id,
			host:         participantID,
			participants: []string{participantID},
		}
		d.mu.Unlock()
		return id, nil
	}
	return "", ErrIDSpaceExhausted
}

// JoinRoom adds participantID to the room as a guest.
// Joining a room the participant already belongs to succeeds without change.
func (d *Directory) JoinRoom(roomID, participantID string) error {
	e := d.lookup(roomID)
	if e == nil {
		return ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return ErrRoomNotFound
	}
	if slices.Contains(e.participants, participantID) {
		return nil
	}
	if len(e.participants) >= MaxParticipants {
		return ErrRoomFull
	}
	e.participants = append(e.participants, participantID)
	return nil
}

// LeaveRoom removes participantID from the room. It returns the participants
// still in the room, and whether the room was deleted because it became empty.
// The host never changes: a room whose host left has no host until it empties.
// Leaving a room that does not exist, or one the participant is not in, is a no-op.
func (d *Directory) LeaveRoom(roomID, participantID string) (remaining []string, deleted bool) {
	e := d.lookup(roomID)
	if e == nil {
		return nil, false
	}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return nil, false
	}
	idx := slices.Index(e.participants, participantID)
	if idx < 0 {
		remaining = slices.Clone(e.participants)
		e.mu.Unlock()
		return remaining, false
	}
	e.participants = slices.Delete(e.participants, idx, idx+1)
	remaining = slices.Clone(e.participants)
	if len(e.participants) == 0 {
		e.deleted = true
	}
	e.mu.Unlock()

	if len(remaining) > 0 {
		return remaining, false
	}

	d.mu.Lock()
	if d.rooms[roomID] == e {
		delete(d.rooms, roomID)
	}
	d.mu.Unlock()
	return nil, true
}

// ListOthers returns the members of the room other than participantID.
func (d *Directory) ListOthers(roomID, participantID string) ([]string, error) {
	e := d.lookup(roomID)
	if e == nil {
		return nil, ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return nil, ErrRoomNotFound
	}
	others := make([]string, 0, len(e.participants))
	for _, p := range e.participants {
		if p != participantID {
			others = append(others, p)
		}
	}
	return others, nil
}

// Room returns a snapshot of the room, if it exists.
func (d *Directory) Room(roomID string) (Room, bool) {
	e := d.lookup(roomID)
	if e == nil {
		return Room{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return Room{}, false
	}
	return Room{
		ID:           e.id,
		Host:         e.host,
		Participants: slices.Clone(e.participants),
	}, true
}

// Len returns the number of live rooms.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

func (d *Directory) lookup(roomID string) *entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rooms[roomID]
}
