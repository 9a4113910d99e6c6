package sigclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/C0neF/gomoku-project/internal/signaling"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	notificationBuffer = 64
)

var (
	ErrClosed       = errors.New("signaling connection closed")
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room is full")
	ErrRejected     = errors.New("request rejected")
)

// ResponseError is a request the server answered with ok=false.
type ResponseError struct {
	Op   string
	Code string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *ResponseError) Is(target error) bool {
	switch e.Code {
	case signaling.ErrorRoomNotFound:
		return target == ErrRoomNotFound
	case signaling.ErrorRoomFull:
		return target == ErrRoomFull
	}
	return target == ErrRejected
}

// Client is a participant's connection to the signaling gateway. Requests
// are matched to responses by request ID; everything else the server pushes
// arrives in order on Notifications.
type Client struct {
	conn          *websocket.Conn
	participantID string
	clientType    string

	outgoing chan *signaling.Message
	incoming chan *signaling.Message
	done     chan struct{}

	closeOnce sync.Once
	seq       atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan *signaling.Message

	logger *slog.Logger
}

// Dial connects to the gateway and waits for the participant ID it assigns.
func Dial(ctx context.Context, serverURL, clientType string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := websocket.Dialer{
		NetDialContext:   dialContext,
		HandshakeTimeout: 10 * time.Second,
		Proxy:            websocket.DefaultDialer.Proxy,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// The first frame is always the welcome.
	var welcome signaling.Message
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	if err := conn.ReadJSON(&welcome); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))

	var w signaling.Welcome
	if welcome.Type != signaling.MessageTypeWelcome || json.Unmarshal(welcome.Payload, &w) != nil || w.ParticipantID == "" {
		conn.Close()
		return nil, fmt.Errorf("read welcome: unexpected %q", welcome.Type)
	}

	c := &Client{
		conn:          conn,
		participantID: w.ParticipantID,
		clientType:    clientType,
		outgoing:      make(chan *signaling.Message, 64),
		incoming:      make(chan *signaling.Message, notificationBuffer),
		done:          make(chan struct{}),
		pending:       make(map[string]chan *signaling.Message),
		logger:        slog.With("component", "sigclient", "participant", w.ParticipantID),
	}

	go c.readPump()
	go c.writePump()

	return c, nil
}

func (c *Client) ParticipantID() string { return c.participantID }

// Notifications carries server pushes and relays in arrival order. It is
// closed when the connection ends.
func (c *Client) Notifications() <-chan *signaling.Message { return c.incoming }

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		close(c.incoming)
	}()

	for {
		var msg signaling.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}

		if msg.Type == signaling.MessageTypeResponse && c.deliver(&msg) {
			continue
		}

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) deliver(msg *signaling.Message) bool {
	c.mu.Lock()
	ch, ok := c.pending[msg.RequestID]
	delete(c.pending, msg.RequestID)
	c.mu.Unlock()

	if ok {
		ch <- msg
	}
	return ok
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.shutdown()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) send(ctx context.Context, msg *signaling.Message) error {
	msg.ClientType = c.clientType
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Request sends msg and waits for the matching response.
func (c *Client) Request(ctx context.Context, msg *signaling.Message) (*signaling.Response, error) {
	id := strconv.FormatUint(c.seq.Add(1), 10)
	msg.RequestID = id

	reply := make(chan *signaling.Message, 1)
	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, msg); err != nil {
		return nil, fmt.Errorf("%s: %w", msg.Type, err)
	}

	select {
	case m := <-reply:
		var resp signaling.Response
		if err := json.Unmarshal(m.Payload, &resp); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", msg.Type, err)
		}
		if !resp.OK {
			return &resp, &ResponseError{Op: msg.Type, Code: resp.Error}
		}
		return &resp, nil
	case <-c.done:
		return nil, fmt.Errorf("%s: %w", msg.Type, ErrClosed)
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", msg.Type, ctx.Err())
	}
}

func (c *Client) CreateRoom(ctx context.Context) (*signaling.Response, error) {
	return c.Request(ctx, &signaling.Message{Type: signaling.MessageTypeCreateRoom})
}

func (c *Client) JoinRoom(ctx context.Context, roomID string) (*signaling.Response, error) {
	return c.Request(ctx, &signaling.Message{Type: signaling.MessageTypeJoinRoom, RoomID: roomID})
}

func (c *Client) ListOthers(ctx context.Context, roomID string) (*signaling.Response, error) {
	return c.Request(ctx, &signaling.Message{Type: signaling.MessageTypeListOthers, RoomID: roomID})
}

func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	_, err := c.Request(ctx, &signaling.Message{Type: signaling.MessageTypeLeaveRoom, RoomID: roomID})
	return err
}

// Relay forwards a negotiation payload to another participant. It does not wait.
func (c *Client) Relay(kind, targetID string, payload json.RawMessage) error {
	if !signaling.IsRelay(kind) {
		return fmt.Errorf("relay %q: not a relay type", kind)
	}
	msg := &signaling.Message{Type: kind, TargetID: targetID, Payload: payload}
	msg.ClientType = c.clientType
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Close ends the connection. Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	c.shutdown()
	return nil
}
