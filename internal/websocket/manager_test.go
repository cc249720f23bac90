package websocket

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connect registers a client without a socket; frames are read from Send
func connect(m *Manager, userID uuid.UUID) *Client {
	c := m.newClient(userID, nil)
	m.register(c)
	return c
}

func decode(t *testing.T, data []byte) Frame {
	var frame Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestSendToUserWithoutRegistration(t *testing.T) {
	m := NewManager(Options{})
	userID := uuid.New()
	c := connect(m, userID)

	assert.NotPanics(t, func() {
		m.SendToUser(uuid.New(), Frame{Type: FrameNewMessage, Data: "nobody"})
		m.SendToUser(userID, Frame{Type: FrameNewMessage, Data: "not yet authenticated"})
	})
	assert.Empty(t, c.Send)

	connections, users := m.Stats()
	assert.Equal(t, 1, connections)
	assert.Equal(t, 0, users)
}

func TestSecondAuthenticationSupersedes(t *testing.T) {
	m := NewManager(Options{})
	userID := uuid.New()

	first := connect(m, userID)
	require.NoError(t, m.Authenticate(first, userID))
	second := connect(m, userID)
	require.NoError(t, m.Authenticate(second, userID))

	m.SendToUser(userID, Frame{Type: FrameNewMessage, Data: "hi"})
	assert.Empty(t, first.Send)
	require.Len(t, second.Send, 1)
	assert.Equal(t, FrameNewMessage, decode(t, <-second.Send).Type)

	// Closing the stale connection keeps the current registration
	m.unregister(first)
	assert.True(t, m.IsConnected(userID))

	m.SendToUser(userID, Frame{Type: FrameNewMessage, Data: "still here"})
	assert.Len(t, second.Send, 1)

	m.unregister(second)
	assert.False(t, m.IsConnected(userID))
}

func TestAuthenticateMismatch(t *testing.T) {
	m := NewManager(Options{})
	c := connect(m, uuid.New())

	err := m.Authenticate(c, uuid.New())
	assert.ErrorIs(t, err, ErrIdentityMismatch)
	_, ok := c.AuthenticatedAs()
	assert.False(t, ok)
}

func TestAuthenticateClosedClient(t *testing.T) {
	m := NewManager(Options{})
	userID := uuid.New()
	c := connect(m, userID)
	m.unregister(c)

	assert.Error(t, m.Authenticate(c, userID))
	assert.False(t, m.IsConnected(userID))
}

func TestFullBufferPrunesClient(t *testing.T) {
	m := NewManager(Options{})
	slow, fast := uuid.New(), uuid.New()
	slowClient := connect(m, slow)
	fastClient := connect(m, fast)
	require.NoError(t, m.Authenticate(slowClient, slow))
	require.NoError(t, m.Authenticate(fastClient, fast))

	for i := 0; i < sendBufferSize; i++ {
		m.SendToUser(slow, Frame{Type: FrameTyping, Data: i})
	}
	assert.True(t, m.IsConnected(slow))

	// One more does not fit: the client is dropped, others are untouched
	m.Broadcast(Frame{Type: FrameNewMessage, Data: "overflow"})
	assert.False(t, m.IsConnected(slow))
	assert.True(t, m.IsConnected(fast))
	assert.Len(t, fastClient.Send, 1)

	connections, _ := m.Stats()
	assert.Equal(t, 1, connections)

	// Sending after pruning is a no-op, never a panic on the closed channel
	assert.NotPanics(t, func() {
		m.SendToUser(slow, Frame{Type: FrameNewMessage, Data: "gone"})
		m.unregister(slowClient)
	})
}

func TestEncodingFailureIsSwallowed(t *testing.T) {
	m := NewManager(Options{})
	userID := uuid.New()
	c := connect(m, userID)
	require.NoError(t, m.Authenticate(c, userID))

	assert.NotPanics(t, func() {
		m.SendToUser(userID, Frame{Type: FrameNewMessage, Data: math.Inf(1)})
		m.Broadcast(Frame{Type: FrameNewMessage, Data: math.NaN()})
	})
	assert.Empty(t, c.Send)
	assert.True(t, m.IsConnected(userID))
}

func TestManagerClose(t *testing.T) {
	m := NewManager(Options{})
	userID := uuid.New()
	c := connect(m, userID)
	require.NoError(t, m.Authenticate(c, userID))

	m.Close()

	_, open := <-c.Send
	assert.False(t, open)
	assert.False(t, m.IsConnected(userID))
	connections, users := m.Stats()
	assert.Zero(t, connections)
	assert.Zero(t, users)
}
