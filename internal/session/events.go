package session

import (
	"sync"

	"github.com/C0neF/gomoku-project/internal/game"
	"github.com/C0neF/gomoku-project/internal/webrtc"
)

// Event is anything the manager reports to the front-end.
type Event interface {
	isEvent()
}

// ConnectionChanged is a full snapshot of the session's connection state.
type ConnectionChanged struct {
	SignalingConnected bool
	PeerConnected      bool
	LocalReady         bool
	OpponentReady      bool
	MyGameRole         game.Player
	RoomID             string
	ParticipantID      string
	Role               string
	TransportState     webrtc.State
	Phase              Phase
	Round              uint64
}

// MoveApplied reports a move accepted into the local log, from either side.
type MoveApplied struct {
	Move  game.Move
	Local bool
	State game.State
}

// StateSynced reports the log after a reset or an adopted snapshot.
type StateSynced struct {
	State game.State
}

// AssignmentApplied reports a new round and this participant's role in it.
type AssignmentApplied struct {
	Player1ID  string
	Player2ID  string
	Round      uint64
	MyGameRole game.Player
}

// ErrorEvent reports a failure. It never carries a panic or a blocking error.
type ErrorEvent struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (ConnectionChanged) isEvent() {}
func (MoveApplied) isEvent()       {}
func (StateSynced) isEvent()       {}
func (AssignmentApplied) isEvent() {}
func (ErrorEvent) isEvent()        {}

// mailbox is an unbounded FIFO between the actor and a consumer. push never
// blocks; events are handed out in push order.
type mailbox struct {
	mu    sync.Mutex
	queue []Event

	wake chan struct{}
	out  chan Event
	done chan struct{}
	once sync.Once
}

func newMailbox() *mailbox {
	mb := &mailbox{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
		done: make(chan struct{}),
	}
	go mb.pump()
	return mb
}

func (mb *mailbox) push(e Event) {
	mb.mu.Lock()
	mb.queue = append(mb.queue, e)
	mb.mu.Unlock()

	select {
	case mb.wake <- struct{}{}:
	default:
	}
}

func (mb *mailbox) pump() {
	defer close(mb.out)

	for {
		e, ok := mb.next()
		if !ok {
			select {
			case <-mb.wake:
				continue
			case <-mb.done:
				mb.drain()
				return
			}
		}

		select {
		case mb.out <- e:
		case <-mb.done:
			mb.out <- e
			mb.drain()
			return
		}
	}
}

func (mb *mailbox) next() (Event, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.queue) == 0 {
		return nil, false
	}
	e := mb.queue[0]
	mb.queue[0] = nil
	mb.queue = mb.queue[1:]
	return e, true
}

// drain hands out whatever is still queued.
func (mb *mailbox) drain() {
	for {
		e, ok := mb.next()
		if !ok {
			return
		}
		mb.out <- e
	}
}

// close ends the stream. Events already pushed are still delivered before out
// closes, so consumers must read until it does.
func (mb *mailbox) close() {
	mb.once.Do(func() { close(mb.done) })
}
