package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/C0neF/gomoku-project/internal/game"
	"github.com/C0neF/gomoku-project/internal/webrtc"
)

type sent struct {
	msgType string
	payload any
}

type handshakeHarness struct {
	hs         *Handshake
	sent       []sent
	timers     []func()
	assigned   []Assignment
	roles      []game.Player
	violations []error
}

func newHarness(localID, peerID string, host, coin bool) *handshakeHarness {
	h := &handshakeHarness{}
	h.hs = NewHandshake(HandshakeConfig{
		LocalID: localID,
		Send: func(msgType string, payload any) error {
			h.sent = append(h.sent, sent{msgType, payload})
			return nil
		},
		Schedule: func(d time.Duration, fn func()) func() {
			h.timers = append(h.timers, fn)
			return func() {}
		},
		OnAssigned: func(a Assignment, role game.Player) {
			h.assigned = append(h.assigned, a)
			h.roles = append(h.roles, role)
		},
		OnViolation: func(err error) { h.violations = append(h.violations, err) },
		Coin:        func() bool { return coin },
		Now:         func() int64 { return 1 },
	})
	h.hs.SetHost(host)
	h.hs.SetPeer(peerID)
	h.hs.ChannelOpened()
	return h
}

func (h *handshakeHarness) lastSent(t *testing.T) sent {
	t.Helper()
	require.NotEmpty(t, h.sent)
	return h.sent[len(h.sent)-1]
}

func TestHandshake_HostAssignsWhenBothReady(t *testing.T) {
	h := newHarness("host", "guest", true, true)

	// Given: the host is ready
	h.hs.SetLocalReady(true)
	assert.Equal(t, PhaseLocalReadyOnly, h.hs.Phase())
	assert.Equal(t, webrtc.MessageTypeReady, h.lastSent(t).msgType)
	assert.Empty(t, h.assigned)

	// When: the guest reports ready
	h.hs.OnRemoteReady(ReadyMessage{ParticipantID: "guest", Ready: true, Round: 0})

	// Then: the host applied round 1 itself and then broadcast it
	require.Len(t, h.assigned, 1)
	a := h.assigned[0]
	assert.Equal(t, uint64(1), a.Round)
	assert.Equal(t, "host", a.Player1ID)
	assert.Equal(t, "guest", a.Player2ID)
	assert.Equal(t, game.Player1, h.roles[0])

	last := h.lastSent(t)
	assert.Equal(t, webrtc.MessageTypeAssign, last.msgType)
	assert.Equal(t, a, last.payload)

	// And: both flags are cleared
	assert.False(t, h.hs.LocalReady())
	assert.False(t, h.hs.OpponentReady())
	assert.Equal(t, PhaseAssigned, h.hs.Phase())
	assert.Equal(t, game.Player1, h.hs.Role())
}

func TestHandshake_CoinDecidesFirstPlayer(t *testing.T) {
	h := newHarness("host", "guest", true, false)
	h.hs.SetLocalReady(true)
	h.hs.OnRemoteReady(ReadyMessage{ParticipantID: "guest", Ready: true})

	require.Len(t, h.assigned, 1)
	assert.Equal(t, "guest", h.assigned[0].Player1ID)
	assert.Equal(t, game.Player2, h.roles[0])
}

func TestHandshake_RoundsIncrease(t *testing.T) {
	h := newHarness("host", "guest", true, true)

	for want := uint64(1); want <= 3; want++ {
		h.hs.SetLocalReady(true)
		h.hs.OnRemoteReady(ReadyMessage{ParticipantID: "guest", Ready: true, Round: want - 1})
		require.Len(t, h.assigned, int(want))
		assert.Equal(t, want, h.hs.Round())
	}
}

func TestHandshake_StaleReadyIgnored(t *testing.T) {
	h := newHarness("host", "guest", true, true)
	h.hs.SetLocalReady(true)
	h.hs.OnRemoteReady(ReadyMessage{ParticipantID: "guest", Ready: true, Round: 0})
	require.Equal(t, uint64(1), h.hs.Round())

	// A ready sent before the guest saw round 1 arrives late.
	h.hs.SetLocalReady(true)
	h.hs.OnRemoteReady(ReadyMessage{ParticipantID: "guest", Ready: true, Round: 0})

	assert.False(t, h.hs.OpponentReady())
	assert.Len(t, h.assigned, 1)
}

func TestHandshake_ReadyFromStrangerIgnored(t *testing.T) {
	h := newHarness("host", "guest", true, true)
	h.hs.OnRemoteReady(ReadyMessage{ParticipantID: "someone-else", Ready: true})
	assert.False(t, h.hs.OpponentReady())
}

func TestHandshake_GuestAppliesAssignment(t *testing.T) {
	h := newHarness("guest", "host", false, false)
	h.hs.SetLocalReady(true)

	err := h.hs.OnRemoteAssign(Assignment{Player1ID: "host", Player2ID: "guest", Round: 1})
	require.NoError(t, err)
	require.Len(t, h.assigned, 1)
	assert.Equal(t, game.Player2, h.roles[0])
	assert.False(t, h.hs.LocalReady())

	// Repeats of the same or an older round are ignored.
	require.NoError(t, h.hs.OnRemoteAssign(Assignment{Player1ID: "guest", Player2ID: "host", Round: 1}))
	require.NoError(t, h.hs.OnRemoteAssign(Assignment{Player1ID: "guest", Player2ID: "host", Round: 0}))
	assert.Len(t, h.assigned, 1)
	assert.Equal(t, game.Player2, h.hs.Role())
}

func TestHandshake_GuestRejectsMismatchedAssignment(t *testing.T) {
	cases := []struct {
		name string
		a    Assignment
	}{
		{"not named", Assignment{Player1ID: "host", Player2ID: "stranger", Round: 1}},
		{"wrong opponent", Assignment{Player1ID: "guest", Player2ID: "stranger", Round: 1}},
		{"same id twice", Assignment{Player1ID: "guest", Player2ID: "guest", Round: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness("guest", "host", false, false)

			err := h.hs.OnRemoteAssign(tc.a)

			require.Error(t, err)
			assert.Equal(t, ProtocolViolation, KindOf(err))
			assert.True(t, errors.Is(err, ErrIdentityMismatch))
			assert.Len(t, h.violations, 1)
			assert.Empty(t, h.assigned)
		})
	}
}

func TestHandshake_HostRejectsAssignment(t *testing.T) {
	h := newHarness("host", "guest", true, true)

	err := h.hs.OnRemoteAssign(Assignment{Player1ID: "guest", Player2ID: "host", Round: 5})

	assert.ErrorIs(t, err, ErrHostAssigned)
	assert.Empty(t, h.violations)
	assert.Empty(t, h.assigned)
}

func TestHandshake_GuestFallbackResendsOnce(t *testing.T) {
	h := newHarness("guest", "host", false, false)

	// Given: both sides ready on the guest
	h.hs.OnRemoteReady(ReadyMessage{ParticipantID: "host", Ready: true})
	h.hs.SetLocalReady(true)
	require.Equal(t, PhaseBothReady, h.hs.Phase())
	require.Len(t, h.timers, 1)
	before := len(h.sent)

	// When: the fallback fires without an assignment
	h.timers[0]()

	// Then: the ready is re-sent exactly once
	require.Len(t, h.sent, before+1)
	assert.Equal(t, webrtc.MessageTypeReady, h.lastSent(t).msgType)

	h.hs.OnRemoteReady(ReadyMessage{ParticipantID: "host", Ready: true})
	assert.Len(t, h.timers, 1)
}

func TestHandshake_FallbackCancelledByAssignment(t *testing.T) {
	h := newHarness("guest", "host", false, false)
	h.hs.OnRemoteReady(ReadyMessage{ParticipantID: "host", Ready: true})
	h.hs.SetLocalReady(true)
	require.Len(t, h.timers, 1)

	require.NoError(t, h.hs.OnRemoteAssign(Assignment{Player1ID: "host", Player2ID: "guest", Round: 1}))
	before := len(h.sent)
	h.timers[0]()

	assert.Len(t, h.sent, before)
}

func TestHandshake_ChannelLifecycle(t *testing.T) {
	h := newHarness("host", "guest", true, true)
	h.hs.SetLocalReady(true)
	h.hs.OnRemoteReady(ReadyMessage{ParticipantID: "guest", Ready: true})
	require.Equal(t, uint64(1), h.hs.Round())

	// Loss clears both flags.
	h.hs.SetLocalReady(true)
	h.hs.ChannelLost()
	assert.False(t, h.hs.LocalReady())
	assert.False(t, h.hs.OpponentReady())

	// Ready while the channel is down is announced when it reopens.
	h.hs.SetLocalReady(true)
	before := len(h.sent)
	h.hs.ChannelOpened()

	require.Len(t, h.sent, before+1)
	msg, ok := h.lastSent(t).payload.(ReadyMessage)
	require.True(t, ok)
	assert.True(t, msg.Ready)
	assert.Equal(t, uint64(0), msg.Round)
	assert.Equal(t, PhaseLocalReadyOnly, h.hs.Phase())
}

func TestHandshake_ReadyBeforeChannelOpen(t *testing.T) {
	h := newHarness("host", "guest", true, true)
	h.hs.ChannelLost()

	// Given: the host is ready and the guest's ready overtakes the open event
	h.hs.SetLocalReady(true)
	h.hs.OnRemoteReady(ReadyMessage{ParticipantID: "guest", Ready: true, Round: 0})
	require.Empty(t, h.assigned)

	// When: the channel opens
	h.hs.ChannelOpened()

	// Then: the early ready counts and round 1 is assigned
	require.Len(t, h.assigned, 1)
	assert.Equal(t, uint64(1), h.assigned[0].Round)
	assert.Equal(t, webrtc.MessageTypeAssign, h.lastSent(t).msgType)
}

func TestHandshake_ReadyBeforeChannelOpenAfterEarlierRounds(t *testing.T) {
	h := newHarness("host", "guest", true, true)
	h.hs.SetLocalReady(true)
	h.hs.OnRemoteReady(ReadyMessage{ParticipantID: "guest", Ready: true})
	require.Equal(t, uint64(1), h.hs.Round())

	// Given: the channel drops and a new one is negotiated
	h.hs.ChannelLost()
	assert.Zero(t, h.hs.Round())

	// When: a round 0 ready from the new channel arrives before it opens
	h.hs.SetLocalReady(true)
	h.hs.OnRemoteReady(ReadyMessage{ParticipantID: "guest", Ready: true, Round: 0})
	h.hs.ChannelOpened()

	// Then: it is not mistaken for a stale message
	require.Len(t, h.assigned, 2)
	assert.Equal(t, uint64(1), h.assigned[1].Round)
}

func TestHandshake_SetLocalReadyAlwaysSends(t *testing.T) {
	h := newHarness("guest", "host", false, false)

	h.hs.SetLocalReady(true)
	h.hs.SetLocalReady(true)
	h.hs.SetLocalReady(false)
	h.hs.SetLocalReady(false)

	require.Len(t, h.sent, 4)
	var flags []bool
	for _, s := range h.sent {
		assert.Equal(t, webrtc.MessageTypeReady, s.msgType)
		flags = append(flags, s.payload.(ReadyMessage).Ready)
	}
	assert.Equal(t, []bool{true, true, false, false}, flags)
	assert.Empty(t, h.timers)

	// While the channel is down nothing is sent.
	h.hs.ChannelLost()
	h.hs.SetLocalReady(true)
	assert.Len(t, h.sent, 4)
	assert.True(t, h.hs.LocalReady())
}
