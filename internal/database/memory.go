package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/tutorchat/internal/models"
)

type course struct {
	id        uuid.UUID
	teacherID uuid.UUID
}

type enrollment struct {
	studentID uuid.UUID
	courseID  uuid.UUID
}

type tutoringSession struct {
	studentID uuid.UUID
	teacherID uuid.UUID
	status    models.SessionStatus
}

// MemoryDB is a process-local DBInterface used in development and tests
type MemoryDB struct {
	mu sync.RWMutex

	users       map[uuid.UUID]models.User
	messages    []*models.Message
	courses     []course
	enrollments []enrollment
	sessions    []tutoringSession

	now func() time.Time
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users: make(map[uuid.UUID]models.User),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the timestamp source
func (db *MemoryDB) SetClock(now func() time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.now = now
}

func (db *MemoryDB) AddUser(user models.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[user.ID] = user
}

func (db *MemoryDB) AddCourse(courseID, teacherID uuid.UUID) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.courses = append(db.courses, course{id: courseID, teacherID: teacherID})
}

func (db *MemoryDB) AddEnrollment(studentID, courseID uuid.UUID) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.enrollments = append(db.enrollments, enrollment{studentID: studentID, courseID: courseID})
}

func (db *MemoryDB) AddSession(studentID, teacherID uuid.UUID, status models.SessionStatus) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.sessions = append(db.sessions, tutoringSession{studentID: studentID, teacherID: teacherID, status: status})
}

func cloneMessage(m *models.Message) *models.Message {
	c := *m
	c.Attachments = append([]models.Attachment(nil), m.Attachments...)
	if c.Attachments == nil {
		c.Attachments = []models.Attachment{}
	}
	if m.UpdatedAt != nil {
		t := *m.UpdatedAt
		c.UpdatedAt = &t
	}
	return &c
}

func (db *MemoryDB) CreateMessage(ctx context.Context, senderID, receiverID uuid.UUID, content string, attachments []models.Attachment) (*models.Message, error) {
	if err := validateNewMessage(senderID, receiverID, content, attachments); err != nil {
		return nil, err
	}
	if _, err := db.GetUserByID(ctx, receiverID); err != nil {
		return nil, receiverError(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	message := newMessage(senderID, receiverID, content, append([]models.Attachment(nil), attachments...), db.now())
	db.messages = append(db.messages, message)

	return cloneMessage(message), nil
}

func (db *MemoryDB) collect(match func(*models.Message) bool) []*models.Message {
	db.mu.RLock()
	defer db.mu.RUnlock()

	messages := []*models.Message{}
	for _, m := range db.messages {
		if match(m) {
			messages = append(messages, cloneMessage(m))
		}
	}
	sortNewestFirst(messages)
	return messages
}

func (db *MemoryDB) GetThread(ctx context.Context, userA, userB uuid.UUID) ([]*models.Message, error) {
	return db.collect(func(m *models.Message) bool { return isPair(m, userA, userB) }), nil
}

func (db *MemoryDB) GetAllForUser(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	return db.collect(func(m *models.Message) bool {
		return m.SenderID == userID || m.ReceiverID == userID
	}), nil
}

func (db *MemoryDB) GetMessageByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, m := range db.messages {
		if m.ID == messageID {
			return cloneMessage(m), nil
		}
	}
	return nil, ErrMessageNotFound
}

func (db *MemoryDB) MarkThreadRead(ctx context.Context, viewerID, otherID uuid.UUID) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := db.now()
	var updated int64
	for _, m := range db.messages {
		if m.SenderID == otherID && m.ReceiverID == viewerID && !m.IsRead {
			t := now
			m.IsRead = true
			m.UpdatedAt = &t
			updated++
		}
	}
	return updated, nil
}

func (db *MemoryDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	user, ok := db.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (db *MemoryDB) LookupUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	users := make(map[uuid.UUID]*models.User, len(ids))
	for _, id := range ids {
		if user, ok := db.users[id]; ok {
			users[id] = &user
		}
	}
	return users, nil
}

func (db *MemoryDB) TeachersOfStudent(ctx context.Context, studentID uuid.UUID) ([]models.UserRef, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	teacherOf := make(map[uuid.UUID]uuid.UUID, len(db.courses))
	for _, c := range db.courses {
		teacherOf[c.id] = c.teacherID
	}

	var ids []uuid.UUID
	for _, e := range db.enrollments {
		if teacherID, ok := teacherOf[e.courseID]; ok && e.studentID == studentID {
			ids = append(ids, teacherID)
		}
	}
	for _, s := range db.sessions {
		if s.studentID == studentID && s.status.LinksParticipants() {
			ids = append(ids, s.teacherID)
		}
	}
	return db.refs(ids), nil
}

func (db *MemoryDB) StudentsOfTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.UserRef, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	owned := make(map[uuid.UUID]bool)
	for _, c := range db.courses {
		if c.teacherID == teacherID {
			owned[c.id] = true
		}
	}

	var ids []uuid.UUID
	for _, e := range db.enrollments {
		if owned[e.courseID] {
			ids = append(ids, e.studentID)
		}
	}
	for _, s := range db.sessions {
		if s.teacherID == teacherID && s.status.LinksParticipants() {
			ids = append(ids, s.studentID)
		}
	}
	return db.refs(ids), nil
}

// refs resolves ids to users, skipping ids without a profile; caller holds mu
func (db *MemoryDB) refs(ids []uuid.UUID) []models.UserRef {
	refs := make([]models.UserRef, 0, len(ids))
	for _, id := range ids {
		if user, ok := db.users[id]; ok {
			refs = append(refs, user)
		}
	}
	return refs
}

func (db *MemoryDB) Backend() DatabaseType {
	return Memory
}

func (db *MemoryDB) Close() error {
	return nil
}
