// Package websocket keeps the in-process registry of live connections and
// delivers frames to them. Delivery is best effort: one attempt, no queue
// beyond the per-client buffer, no retry.
package websocket

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/ammar1510/tutorchat/internal/apperr"
	"github.com/ammar1510/tutorchat/internal/logger"
)

// Frame types
const (
	FrameAuthenticate  = "authenticate"
	FrameAuthenticated = "authenticated"
	FrameNewMessage    = "new_message"
	FrameMessagesRead  = "messages_read"
	FrameTyping        = "typing"
	FrameError         = "error"
)

const sendBufferSize = 256

var log = logger.New("websocket")

var ErrIdentityMismatch = errors.New("user ID does not match token")

// Frame is the {type, data} envelope used in both directions
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type Options struct {
	// AllowedOrigins lists accepted Origin headers; empty or "*" accepts any
	AllowedOrigins []string
	// MessagesPerSecond and Burst bound inbound frames per connection
	MessagesPerSecond float64
	Burst             int
}

// Client is one live websocket connection
type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Socket *websocket.Conn
	Send   chan []byte

	manager *Manager
	limiter *rate.Limiter

	mu            sync.Mutex
	authenticated bool
	closed        bool
	closeOnce     sync.Once
}

// AuthenticatedAs returns the identity this connection is a delivery target for
func (c *Client) AuthenticatedAs() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.UserID, c.authenticated
}

// trySend queues data without blocking; false means the client is closed or
// its buffer is full
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.Send)
		c.mu.Unlock()
	})
}

// send delivers a frame to this connection only
func (c *Client) send(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Error("%v", apperr.Transport("Failed to encode "+frame.Type+" frame", err))
		return
	}
	if !c.trySend(data) {
		log.Warn("Dropping %s frame for client %s, pruning", frame.Type, c.ID)
		c.manager.unregister(c)
	}
}

func (c *Client) sendError(message string) {
	c.send(Frame{Type: FrameError, Data: message})
}

// Manager maintains the set of active clients and the identity registry
type Manager struct {
	opts Options

	mu      sync.RWMutex
	clients map[*Client]bool
	users   map[uuid.UUID]*Client
}

// NewManager creates a new websocket manager
func NewManager(opts Options) *Manager {
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	return &Manager{
		opts:    opts,
		clients: make(map[*Client]bool),
		users:   make(map[uuid.UUID]*Client),
	}
}

func (m *Manager) newClient(userID uuid.UUID, conn *websocket.Conn) *Client {
	return &Client{
		ID:      uuid.New(),
		UserID:  userID,
		Socket:  conn,
		Send:    make(chan []byte, sendBufferSize),
		manager: m,
		limiter: rate.NewLimiter(rate.Limit(m.opts.MessagesPerSecond), m.opts.Burst),
	}
}

func (m *Manager) register(c *Client) {
	m.mu.Lock()
	m.clients[c] = true
	m.mu.Unlock()
	log.Debug("Client %s registered", c.ID)
}

// unregister closes c and drops its identity mapping only if c still owns it
func (m *Manager) unregister(c *Client) {
	m.mu.Lock()
	_, live := m.clients[c]
	delete(m.clients, c)
	if current, ok := m.users[c.UserID]; ok && current == c {
		delete(m.users, c.UserID)
	}
	m.mu.Unlock()

	c.close()
	if live {
		log.Info("Client %s disconnected", c.ID)
	}
}

// Authenticate makes c the delivery target for userID. A previous connection
// for the same user stays open but is no longer targeted.
func (m *Manager) Authenticate(c *Client, userID uuid.UUID) error {
	if userID != c.UserID {
		log.Warn("Client %s tried to authenticate as %s", c.ID, userID)
		return ErrIdentityMismatch
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.clients[c] {
		return errors.New("connection is closed")
	}

	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()

	if previous, ok := m.users[userID]; ok && previous != c {
		log.Debug("Client %s supersedes %s for user %s", c.ID, previous.ID, userID)
	}
	m.users[userID] = c
	return nil
}

// Broadcast sends frame to every live connection, authenticated or not
func (m *Manager) Broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Error("%v", apperr.Transport("Failed to encode "+frame.Type+" frame", err))
		return
	}

	m.mu.RLock()
	targets := make([]*Client, 0, len(m.clients))
	for c := range m.clients {
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	for _, c := range targets {
		if !c.trySend(data) {
			log.Warn("Failed to broadcast to client %s, removing client", c.ID)
			m.unregister(c)
		}
	}
}

// SendToUser delivers frame to the user's current connection. It is a no-op
// when the user has none.
func (m *Manager) SendToUser(userID uuid.UUID, frame Frame) {
	m.mu.RLock()
	c, ok := m.users[userID]
	m.mu.RUnlock()
	if !ok {
		log.Debug("User %s not connected", userID)
		return
	}

	data, err := json.Marshal(frame)
	if err != nil {
		log.Error("%v", apperr.Transport("Failed to encode "+frame.Type+" frame", err))
		return
	}
	if !c.trySend(data) {
		log.Warn("Failed to send %s to user %s, removing client", frame.Type, userID)
		m.unregister(c)
		return
	}
	log.Debug("Sent %s to user %s", frame.Type, userID)
}

// IsConnected reports whether userID has an authenticated connection
func (m *Manager) IsConnected(userID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[userID]
	return ok
}

// Stats returns the number of live connections and authenticated users
func (m *Manager) Stats() (connections, users int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients), len(m.users)
}

// Close disconnects every client
func (m *Manager) Close() {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.clients = make(map[*Client]bool)
	m.users = make(map[uuid.UUID]*Client)
	m.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	log.Info("Closed %d websocket clients", len(clients))
}
