// Package conversations derives a user's conversation list from message
// history and the enrollment and tutoring-session relations.
package conversations

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/tutorchat/internal/apperr"
	"github.com/ammar1510/tutorchat/internal/database"
	"github.com/ammar1510/tutorchat/internal/logger"
	"github.com/ammar1510/tutorchat/internal/models"
)

const unknownUserName = "Unknown User"

var log = logger.New("conversations")

// Aggregator computes conversation lists on demand. Nothing it returns is stored.
type Aggregator struct {
	messages  database.MessageStore
	users     database.UserDirectory
	relations database.Relations
}

func NewAggregator(messages database.MessageStore, users database.UserDirectory, relations database.Relations) *Aggregator {
	return &Aggregator{messages: messages, users: users, relations: relations}
}

// thread accumulates the summary of one (viewer, other) pair
type thread struct {
	other       uuid.UUID
	lastMessage string
	lastTime    time.Time
	unread      int
}

// List returns the viewer's conversations, most recent first, and the related
// users the viewer has not exchanged messages with yet
func (a *Aggregator) List(ctx context.Context, viewerID uuid.UUID, role models.Role) (*models.ConversationList, error) {
	if !role.Valid() {
		return nil, apperr.Validation("Unknown role: "+string(role), nil)
	}

	messages, err := a.messages.GetAllForUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	threads := groupThreads(messages, viewerID)

	related, err := a.related(ctx, viewerID, role)
	if err != nil {
		return nil, err
	}

	inConversation := make(map[uuid.UUID]bool, len(threads))
	for _, t := range threads {
		inConversation[t.other] = true
	}

	conversations, err := a.formatThreads(ctx, threads)
	if err != nil {
		return nil, err
	}

	potential := []models.Conversation{}
	seen := make(map[uuid.UUID]bool, len(related))
	for _, ref := range related {
		if seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		if inConversation[ref.ID] {
			continue
		}
		ref := ref
		potential = append(potential, contact(ref.ID, &ref))
	}

	log.Debug("Viewer %s has %d conversations and %d potential contacts", viewerID, len(conversations), len(potential))

	return &models.ConversationList{
		Conversations:     conversations,
		PotentialContacts: potential,
	}, nil
}

// groupThreads walks messages newest first. The first message seen for a
// contact is its last message; unread counts come from the same snapshot.
func groupThreads(messages []*models.Message, viewerID uuid.UUID) []*thread {
	byOther := make(map[uuid.UUID]*thread)
	var threads []*thread

	for _, m := range messages {
		other := m.OtherParty(viewerID)
		t, ok := byOther[other]
		if !ok {
			t = &thread{other: other, lastMessage: m.Content, lastTime: m.CreatedAt}
			byOther[other] = t
			threads = append(threads, t)
		}
		if m.SenderID == other && m.ReceiverID == viewerID && !m.IsRead {
			t.unread++
		}
	}

	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].lastTime.After(threads[j].lastTime)
	})
	return threads
}

func (a *Aggregator) related(ctx context.Context, viewerID uuid.UUID, role models.Role) ([]models.UserRef, error) {
	if role == models.RoleStudent {
		return a.relations.TeachersOfStudent(ctx, viewerID)
	}
	return a.relations.StudentsOfTeacher(ctx, viewerID)
}

func (a *Aggregator) formatThreads(ctx context.Context, threads []*thread) ([]models.Conversation, error) {
	conversations := make([]models.Conversation, 0, len(threads))
	if len(threads) == 0 {
		return conversations, nil
	}

	ids := make([]uuid.UUID, 0, len(threads))
	for _, t := range threads {
		ids = append(ids, t.other)
	}
	users, err := a.users.LookupUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, t := range threads {
		c := contact(t.other, users[t.other])
		lastMessage, lastTime := t.lastMessage, t.lastTime
		c.LastMessage = &lastMessage
		c.LastMessageTime = &lastTime
		c.UnreadCount = t.unread
		conversations = append(conversations, c)
	}
	return conversations, nil
}

// contact formats a profile; user may be nil when the directory has no entry
func contact(id uuid.UUID, user *models.User) models.Conversation {
	c := models.Conversation{ID: id, Name: unknownUserName}
	if user == nil {
		return c
	}
	if user.Name != "" {
		c.Name = user.Name
	}
	c.Email = user.Email
	c.Avatar = user.Image
	c.Role = user.Role.DisplayName()
	return c
}
