package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/C0neF/gomoku-project/internal/webrtc"
)

// fakeNet pairs in-memory transports through the offer and answer payloads,
// standing in for ICE.
type fakeNet struct {
	mu     sync.Mutex
	nextID int
	byID   map[string]*fakeTransport
	mute   bool

	// silentHostOpen drops the host side's open event, so the first sign of
	// the channel on the host is the guest's data.
	silentHostOpen bool
}

func newFakeNet() *fakeNet {
	return &fakeNet{byID: make(map[string]*fakeTransport)}
}

func (n *fakeNet) factory(host bool) (webrtc.Transport, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	t := &fakeTransport{
		net:   n,
		id:    fmt.Sprintf("t%d", n.nextID),
		host:  host,
		inbox: make(chan []byte, 256),
		quit:  make(chan struct{}),
	}
	n.byID[t.id] = t
	go t.deliver()
	return t, nil
}

type fakeSDP struct {
	Type string `json:"type"`
	ID   string `json:"sdp"`
}

type fakeTransport struct {
	net  *fakeNet
	id   string
	host bool

	mu       sync.Mutex
	h        webrtc.TransportHandlers
	peer     *fakeTransport
	closed   bool
	lostOnce sync.Once

	inbox chan []byte
	quit  chan struct{}
}

func (t *fakeTransport) SetHandlers(h webrtc.TransportHandlers) {
	t.mu.Lock()
	t.h = h
	t.mu.Unlock()
}

func (t *fakeTransport) handlers() webrtc.TransportHandlers {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.h
}

func (t *fakeTransport) gather() {
	h := t.handlers()
	if h.OnCandidate == nil {
		return
	}
	c := json.RawMessage(fmt.Sprintf(`{"candidate":"fake %s"}`, t.id))
	go func() {
		h.OnCandidate(c)
		h.OnCandidate(c)
	}()
}

func (t *fakeTransport) CreateOffer() (json.RawMessage, error) {
	t.gather()
	return json.Marshal(fakeSDP{Type: "offer", ID: t.id})
}

func (t *fakeTransport) AcceptOffer(offer json.RawMessage) (json.RawMessage, error) {
	var sdp fakeSDP
	if err := json.Unmarshal(offer, &sdp); err != nil {
		return nil, err
	}
	t.net.mu.Lock()
	remote, ok := t.net.byID[sdp.ID]
	t.net.mu.Unlock()
	if !ok {
		return nil, errors.New("unknown offer")
	}

	t.mu.Lock()
	t.peer = remote
	t.mu.Unlock()
	t.gather()
	return json.Marshal(fakeSDP{Type: "answer", ID: t.id})
}

func (t *fakeTransport) AcceptAnswer(answer json.RawMessage) error {
	var sdp fakeSDP
	if err := json.Unmarshal(answer, &sdp); err != nil {
		return err
	}
	t.net.mu.Lock()
	remote, ok := t.net.byID[sdp.ID]
	mute, silentHostOpen := t.net.mute, t.net.silentHostOpen
	t.net.mu.Unlock()
	if !ok {
		return errors.New("unknown answer")
	}

	t.mu.Lock()
	t.peer = remote
	t.mu.Unlock()

	if mute {
		return nil
	}
	for _, side := range []*fakeTransport{t, remote} {
		if side.host && silentHostOpen {
			continue
		}
		if open := side.handlers().OnOpen; open != nil {
			go open()
		}
	}
	return nil
}

func (t *fakeTransport) AddCandidate(json.RawMessage) error { return nil }

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	peer, closed := t.peer, t.closed
	t.mu.Unlock()
	if closed || peer == nil {
		return webrtc.ErrChannelNotOpen
	}
	select {
	case peer.inbox <- append([]byte(nil), data...):
		return nil
	case <-peer.quit:
		return webrtc.ErrChannelNotOpen
	}
}

func (t *fakeTransport) deliver() {
	for {
		select {
		case data := <-t.inbox:
			if on := t.handlers().OnMessage; on != nil {
				on(data)
			}
		case <-t.quit:
			return
		}
	}
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	peer := t.peer
	t.mu.Unlock()

	close(t.quit)
	t.lost()
	if peer != nil {
		peer.lost()
	}
	return nil
}

func (t *fakeTransport) lost() {
	t.lostOnce.Do(func() {
		if on := t.handlers().OnLost; on != nil {
			go on()
		}
	})
}
