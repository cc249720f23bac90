package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	// Inbound frames are small control messages; message bodies go over HTTP
	maxFrameSize = 64 * 1024
)

// inboundFrame is a client frame before its data is interpreted
type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TypingRequest is the data of an inbound typing frame
type TypingRequest struct {
	ReceiverID uuid.UUID `json:"receiver_id"`
	IsTyping   bool      `json:"is_typing"`
}

// TypingEvent is forwarded to the receiver of a typing frame
type TypingEvent struct {
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	IsTyping   bool      `json:"is_typing"`
}

func (m *Manager) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(m.opts.AllowedOrigins) == 0 {
				return true
			}
			for _, allowed := range m.opts.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			log.Warn("Rejected websocket origin %s", origin)
			return false
		},
	}
}

// HandleWebSocket upgrades a request whose token was already validated by the
// auth middleware. The connection starts unauthenticated and only becomes a
// delivery target after an authenticate frame.
func (m *Manager) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		log.Warn("No userID in context, rejecting connection from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	userUUID, ok := userID.(uuid.UUID)
	if !ok {
		log.Error("Invalid UUID in context from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user identification"})
		return
	}

	upgrader := m.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade connection: %v", err)
		return
	}

	client := m.newClient(userUUID, conn)
	m.register(client)

	go client.readPump()
	go client.writePump()
	log.Info("Client %s connected for user %s", client.ID, userUUID)
}

// readPump reads frames until the socket fails, then closes the client
func (c *Client) readPump() {
	defer func() {
		c.manager.unregister(c)
		c.Socket.Close()
	}()

	c.Socket.SetReadLimit(maxFrameSize)
	c.Socket.SetReadDeadline(time.Now().Add(pongWait))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error("Error reading from client %s: %v", c.ID, err)
			} else {
				log.Debug("Client %s closed connection: %v", c.ID, err)
			}
			return
		}

		if !c.limiter.Allow() {
			log.Warn("Rate limit exceeded for client %s, dropping frame", c.ID)
			continue
		}

		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Debug("Malformed frame from client %s: %v", c.ID, err)
		c.sendError("Invalid message format")
		return
	}

	switch frame.Type {
	case FrameAuthenticate:
		var raw string
		if err := json.Unmarshal(frame.Data, &raw); err != nil {
			c.sendError("Invalid user ID")
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			c.sendError("Invalid user ID")
			return
		}
		if err := c.manager.Authenticate(c, userID); err != nil {
			c.sendError(err.Error())
			return
		}
		c.send(Frame{Type: FrameAuthenticated, Data: userID})

	case FrameTyping:
		userID, ok := c.AuthenticatedAs()
		if !ok {
			c.sendError("Not authenticated")
			return
		}
		var req TypingRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.ReceiverID == uuid.Nil {
			c.sendError("Invalid receiver ID")
			return
		}
		c.manager.SendToUser(req.ReceiverID, Frame{
			Type: FrameTyping,
			Data: TypingEvent{SenderID: userID, ReceiverID: req.ReceiverID, IsTyping: req.IsTyping},
		})

	default:
		log.Warn("Unknown frame type '%s' from client %s", frame.Type, c.ID)
		c.sendError("Unknown message type")
	}
}

// writePump drains the send channel to the socket and keeps the connection alive
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The manager closed the channel
				c.Socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Socket.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug("Write to client %s failed: %v", c.ID, err)
				c.manager.unregister(c)
				return
			}
		case <-ticker.C:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
