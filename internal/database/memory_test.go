package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/tutorchat/internal/apperr"
	"github.com/ammar1510/tutorchat/internal/models"
)

func newUser(name string, role models.Role) models.User {
	return models.User{ID: uuid.New(), Name: name, Email: name + "@example.com", Role: role}
}

// setupMemoryDB returns a store with a student and a teacher
func setupMemoryDB(t *testing.T) (*MemoryDB, models.User, models.User) {
	db := NewMemoryDB()
	student := newUser("sara", models.RoleStudent)
	teacher := newUser("tom", models.RoleTeacher)
	db.AddUser(student)
	db.AddUser(teacher)
	return db, student, teacher
}

func TestMemoryCreateMessage(t *testing.T) {
	ctx := context.Background()
	db, student, teacher := setupMemoryDB(t)
	size := int64(42)

	tests := []struct {
		name        string
		receiverID  uuid.UUID
		content     string
		attachments []models.Attachment
		wantCode    string
	}{
		{
			name:       "text message",
			receiverID: teacher.ID,
			content:    "Hello!",
		},
		{
			name:        "attachment only",
			receiverID:  teacher.ID,
			attachments: []models.Attachment{{URL: "https://cdn.test/a.png", Type: "image/png", Name: "a.png", Size: &size}},
		},
		{
			name:       "empty message",
			receiverID: teacher.ID,
			content:    "   ",
			wantCode:   apperr.CodeValidation,
		},
		{
			name:       "unknown receiver",
			receiverID: uuid.New(),
			content:    "Hello?",
			wantCode:   apperr.CodeValidation,
		},
		{
			name:        "attachment without url",
			receiverID:  teacher.ID,
			attachments: []models.Attachment{{Name: "broken"}},
			wantCode:    apperr.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := db.CreateMessage(ctx, student.ID, tt.receiverID, tt.content, tt.attachments)

			if tt.wantCode != "" {
				assert.Error(t, err)
				assert.Nil(t, msg)
				assert.True(t, apperr.Is(err, tt.wantCode))
				return
			}

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, msg.ID)
			assert.Equal(t, student.ID, msg.SenderID)
			assert.Equal(t, tt.receiverID, msg.ReceiverID)
			assert.Equal(t, tt.content, msg.Content)
			assert.Len(t, msg.Attachments, len(tt.attachments))
			assert.False(t, msg.IsRead)
			assert.Equal(t, models.StatusSent, msg.Status)
			require.NotNil(t, msg.UpdatedAt)
			assert.True(t, msg.UpdatedAt.Equal(msg.CreatedAt))

			thread, err := db.GetThread(ctx, student.ID, tt.receiverID)
			require.NoError(t, err)
			require.NotEmpty(t, thread)
			assert.Equal(t, msg, thread[0])
		})
	}
}

func TestMemoryCreateMessageCancelled(t *testing.T) {
	db, student, teacher := setupMemoryDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.CreateMessage(ctx, student.ID, teacher.ID, "never stored", nil)
	assert.ErrorIs(t, err, context.Canceled)

	all, err := db.GetAllForUser(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemoryThreadOrdering(t *testing.T) {
	ctx := context.Background()
	db, student, teacher := setupMemoryDB(t)
	other := newUser("olga", models.RoleTeacher)
	db.AddUser(other)

	// Every message shares one timestamp so only the id tie-break orders them
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	db.SetClock(func() time.Time { return fixed })

	first, err := db.CreateMessage(ctx, student.ID, teacher.ID, "first", nil)
	require.NoError(t, err)
	second, err := db.CreateMessage(ctx, teacher.ID, student.ID, "second", nil)
	require.NoError(t, err)
	_, err = db.CreateMessage(ctx, student.ID, other.ID, "elsewhere", nil)
	require.NoError(t, err)
	third, err := db.CreateMessage(ctx, student.ID, teacher.ID, "third", nil)
	require.NoError(t, err)

	thread, err := db.GetThread(ctx, teacher.ID, student.ID)
	require.NoError(t, err)
	require.Len(t, thread, 3)
	assert.Equal(t, third.ID, thread[0].ID)
	assert.Equal(t, second.ID, thread[1].ID)
	assert.Equal(t, first.ID, thread[2].ID)

	all, err := db.GetAllForUser(ctx, student.ID)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, third.ID, all[0].ID)
}

func TestMemoryThreadNewestFirst(t *testing.T) {
	ctx := context.Background()
	db, student, teacher := setupMemoryDB(t)

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	db.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})

	for _, content := range []string{"one", "two", "three"} {
		_, err := db.CreateMessage(ctx, student.ID, teacher.ID, content, nil)
		require.NoError(t, err)
	}

	thread, err := db.GetThread(ctx, student.ID, teacher.ID)
	require.NoError(t, err)
	require.Len(t, thread, 3)
	assert.Equal(t, "three", thread[0].Content)
	assert.Equal(t, "one", thread[2].Content)
}

func TestMemoryMarkThreadRead(t *testing.T) {
	ctx := context.Background()
	db, student, teacher := setupMemoryDB(t)

	_, err := db.CreateMessage(ctx, teacher.ID, student.ID, "homework", nil)
	require.NoError(t, err)
	_, err = db.CreateMessage(ctx, teacher.ID, student.ID, "reminder", nil)
	require.NoError(t, err)
	sent, err := db.CreateMessage(ctx, student.ID, teacher.ID, "ok", nil)
	require.NoError(t, err)

	updated, err := db.MarkThreadRead(ctx, student.ID, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	// Second call is a no-op
	updated, err = db.MarkThreadRead(ctx, student.ID, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)

	thread, err := db.GetThread(ctx, student.ID, teacher.ID)
	require.NoError(t, err)
	for _, m := range thread {
		if m.ReceiverID == student.ID {
			assert.True(t, m.IsRead)
		}
	}

	// The student's own message is untouched
	stored, err := db.GetMessageByID(ctx, sent.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsRead)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	db, student, teacher := setupMemoryDB(t)

	msg, err := db.CreateMessage(ctx, student.ID, teacher.ID, "original", nil)
	require.NoError(t, err)
	msg.Content = "mutated"

	stored, err := db.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", stored.Content)

	_, err = db.GetMessageByID(ctx, uuid.New())
	assert.Equal(t, ErrMessageNotFound, err)
}

func TestMemoryRelations(t *testing.T) {
	ctx := context.Background()
	db, student, teacher := setupMemoryDB(t)
	other := newUser("olga", models.RoleTeacher)
	cancelled := newUser("carl", models.RoleTeacher)
	db.AddUser(other)
	db.AddUser(cancelled)

	math, physics := uuid.New(), uuid.New()
	db.AddCourse(math, teacher.ID)
	db.AddCourse(physics, other.ID)
	db.AddEnrollment(student.ID, math)
	db.AddEnrollment(student.ID, physics)
	db.AddSession(student.ID, teacher.ID, models.SessionCompleted)
	db.AddSession(student.ID, cancelled.ID, models.SessionCancelled)

	teachers, err := db.TeachersOfStudent(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, teachers, 3)
	assert.Equal(t, teacher.ID, teachers[0].ID)
	assert.Equal(t, other.ID, teachers[1].ID)
	assert.Equal(t, teacher.ID, teachers[2].ID)

	students, err := db.StudentsOfTeacher(ctx, teacher.ID)
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, student.ID, students[0].ID)

	students, err = db.StudentsOfTeacher(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Empty(t, students)
}

func TestMemoryLookupUsers(t *testing.T) {
	ctx := context.Background()
	db, student, teacher := setupMemoryDB(t)
	missing := uuid.New()

	users, err := db.LookupUsers(ctx, []uuid.UUID{student.ID, teacher.ID, missing})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, "sara", users[student.ID].Name)
	assert.NotContains(t, users, missing)

	_, err = db.GetUserByID(ctx, missing)
	assert.Equal(t, ErrUserNotFound, err)
}

func TestNewDatabaseFallback(t *testing.T) {
	ctx := context.Background()

	db, err := NewDatabase(ctx, Options{Type: Memory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryDB{}, db)
	assert.Equal(t, Memory, db.Backend())

	db, err = NewDatabase(ctx, Options{Type: "mysql"})
	assert.Error(t, err)
	assert.Nil(t, db)

	db, err = NewDatabase(ctx, Options{
		Type:             PostgreSQL,
		URL:              "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1",
		FallbackToMemory: true,
	})
	require.NoError(t, err)
	assert.IsType(t, &MemoryDB{}, db)
	// The fallback store reports itself, not the configured backend
	assert.Equal(t, Memory, db.Backend())
}
