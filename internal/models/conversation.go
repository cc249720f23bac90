package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the per-contact summary derived from a thread. Potential
// contacts share the shape with no last message and a zero unread count.
type Conversation struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Avatar          string     `json:"avatar"`
	Role            string     `json:"role"`
	LastMessage     *string    `json:"lastMessage"`
	LastMessageTime *time.Time `json:"lastMessageTime"`
	UnreadCount     int        `json:"unreadCount"`
	IsOnline        bool       `json:"isOnline"`
}

// ConversationList is the viewer-facing conversation list response
type ConversationList struct {
	Conversations     []Conversation `json:"conversations"`
	PotentialContacts []Conversation `json:"potentialContacts"`
}
