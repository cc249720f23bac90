package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus tracks delivery state of a message
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusFailed    MessageStatus = "failed"
)

// Attachment is a file resolved by the content store before the message is saved
type Attachment struct {
	URL  string `json:"url" bson:"url"`
	Type string `json:"type" bson:"type"`
	Name string `json:"name" bson:"name"`
	Size *int64 `json:"size,omitempty" bson:"size,omitempty"`
}

// Message represents a direct message between two users
type Message struct {
	ID          uuid.UUID     `json:"id"`
	SenderID    uuid.UUID     `json:"sender_id"`
	ReceiverID  uuid.UUID     `json:"receiver_id"`
	Content     string        `json:"content"`
	Attachments []Attachment  `json:"attachments"`
	IsRead      bool          `json:"is_read"`
	Status      MessageStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   *time.Time    `json:"updated_at,omitempty"`
}

// OtherParty returns the participant that is not viewerID
func (m *Message) OtherParty(viewerID uuid.UUID) uuid.UUID {
	if m.SenderID == viewerID {
		return m.ReceiverID
	}
	return m.SenderID
}

// MessageRequest is the structure for JSON message creation requests
type MessageRequest struct {
	ReceiverID uuid.UUID `json:"receiver_id" form:"receiver_id" binding:"required"`
	Content    string    `json:"content" form:"content"`
}

// MessageResponse is what we return to clients
type MessageResponse struct {
	*Message
	Sender *UserResponse `json:"sender,omitempty"`
}
