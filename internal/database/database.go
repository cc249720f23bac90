package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/tutorchat/internal/apperr"
	"github.com/ammar1510/tutorchat/internal/logger"
	"github.com/ammar1510/tutorchat/internal/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrMessageNotFound = errors.New("message not found")
)

var log = logger.New("database")

// MessageStore owns persistence of direct messages
type MessageStore interface {
	CreateMessage(ctx context.Context, senderID, receiverID uuid.UUID, content string, attachments []models.Attachment) (*models.Message, error)
	GetThread(ctx context.Context, userA, userB uuid.UUID) ([]*models.Message, error)
	MarkThreadRead(ctx context.Context, viewerID, otherID uuid.UUID) (int64, error)
	GetAllForUser(ctx context.Context, userID uuid.UUID) ([]*models.Message, error)
	GetMessageByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error)
}

// UserDirectory resolves user profiles. It is never used to authorize.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	LookupUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.User, error)
}

// Relations exposes the enrollment and tutoring-session links between users.
// Results keep source order (enrollments first) and may contain duplicates.
type Relations interface {
	TeachersOfStudent(ctx context.Context, studentID uuid.UUID) ([]models.UserRef, error)
	StudentsOfTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.UserRef, error)
}

type DBInterface interface {
	MessageStore
	UserDirectory
	Relations
	// Backend reports which store is serving requests
	Backend() DatabaseType
	Close() error
}

type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgres"
	Mongo      DatabaseType = "mongo"
	Memory     DatabaseType = "memory"
)

// Options selects and configures the backend
type Options struct {
	Type      DatabaseType
	URL       string
	MongoName string
	// FallbackToMemory runs the server on MemoryDB when the configured
	// backend cannot be reached at startup.
	FallbackToMemory bool
}

// NewDatabase opens the configured backend. The choice is made once here;
// callers only ever see DBInterface.
func NewDatabase(ctx context.Context, opts Options) (DBInterface, error) {
	db, err := open(ctx, opts)
	if err != nil && opts.FallbackToMemory && opts.Type != Memory {
		log.Warn("Failed to connect to %s database, falling back to in-memory store: %v", opts.Type, err)
		return NewMemoryDB(), nil
	}
	return db, err
}

func open(ctx context.Context, opts Options) (DBInterface, error) {
	switch opts.Type {
	case PostgreSQL:
		db, err := NewPostgresDB(opts.URL)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	case Mongo:
		db, err := NewMongoDB(ctx, opts.URL, opts.MongoName)
		if err != nil {
			return nil, err
		}
		return db, nil
	case Memory:
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", opts.Type)
	}
}

func validateNewMessage(senderID, receiverID uuid.UUID, content string, attachments []models.Attachment) error {
	if senderID == uuid.Nil || receiverID == uuid.Nil {
		return apperr.Validation("Sender and receiver are required", nil)
	}
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return apperr.Validation("Message must have content or at least one attachment", nil)
	}
	for _, a := range attachments {
		if a.URL == "" {
			return apperr.Validation("Attachment URL is required", nil)
		}
	}
	return nil
}

// receiverError maps a directory lookup failure for the receiver
func receiverError(err error) error {
	if errors.Is(err, ErrUserNotFound) {
		return apperr.Validation("Receiver not found", err)
	}
	return apperr.Store("Failed to look up receiver", err)
}

// newMessageID returns a time-ordered id so that id order matches insertion
// order for messages sharing a timestamp
func newMessageID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

func newMessage(senderID, receiverID uuid.UUID, content string, attachments []models.Attachment, now time.Time) *models.Message {
	if attachments == nil {
		attachments = []models.Attachment{}
	}
	updatedAt := now
	return &models.Message{
		ID:          newMessageID(),
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Content:     content,
		Attachments: attachments,
		IsRead:      false,
		Status:      models.StatusSent,
		CreatedAt:   now,
		UpdatedAt:   &updatedAt,
	}
}

// sortNewestFirst orders by created_at descending, then id descending
func sortNewestFirst(messages []*models.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) > 0
	})
}

func isPair(m *models.Message, a, b uuid.UUID) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}
