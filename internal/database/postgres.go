package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // PostgreSQL driver

	"github.com/ammar1510/tutorchat/internal/apperr"
	"github.com/ammar1510/tutorchat/internal/models"
)

// messagingSchema creates the tables owned by the message store. users,
// courses, enrollments and tutoring_sessions belong to the marketplace.
const messagingSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id          UUID PRIMARY KEY,
	sender_id   UUID NOT NULL,
	receiver_id UUID NOT NULL,
	content     TEXT NOT NULL DEFAULT '',
	is_read     BOOLEAN NOT NULL DEFAULT FALSE,
	status      TEXT NOT NULL DEFAULT 'sent',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_sender_idx ON messages (sender_id, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS messages_receiver_idx ON messages (receiver_id, created_at DESC, id DESC);
CREATE TABLE IF NOT EXISTS message_attachments (
	message_id UUID NOT NULL REFERENCES messages (id) ON DELETE CASCADE,
	position   INT NOT NULL,
	url        TEXT NOT NULL,
	type       TEXT NOT NULL,
	name       TEXT NOT NULL,
	size       BIGINT,
	PRIMARY KEY (message_id, position)
);`

const messageColumns = `id, sender_id, receiver_id, content, is_read, status, created_at, updated_at`

const userColumns = `id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(image, ''), COALESCE(role, '')`

type PostgresDB struct {
	*sql.DB
}

func NewPostgresDB(connStr string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresDB{db}, nil
}

// EnsureSchema creates the messaging tables if they do not exist
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, messagingSchema); err != nil {
		return apperr.Store("Failed to create messaging schema", err)
	}
	return nil
}

// pgNow matches the microsecond precision of TIMESTAMPTZ so the returned
// record equals what a later read yields
func pgNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (db *PostgresDB) CreateMessage(ctx context.Context, senderID, receiverID uuid.UUID, content string, attachments []models.Attachment) (*models.Message, error) {
	if err := validateNewMessage(senderID, receiverID, content, attachments); err != nil {
		return nil, err
	}

	if _, err := db.GetUserByID(ctx, receiverID); err != nil {
		return nil, receiverError(err)
	}

	message := newMessage(senderID, receiverID, content, attachments, pgNow())

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Store("Failed to create message", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO messages ("+messageColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		message.ID, message.SenderID, message.ReceiverID, message.Content,
		message.IsRead, string(message.Status), message.CreatedAt, *message.UpdatedAt,
	)
	if err != nil {
		return nil, apperr.Store("Failed to create message", err)
	}

	for i, a := range message.Attachments {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO message_attachments (message_id, position, url, type, name, size) VALUES ($1, $2, $3, $4, $5, $6)",
			message.ID, i, a.URL, a.Type, a.Name, nullInt64(a.Size),
		)
		if err != nil {
			return nil, apperr.Store("Failed to store attachment", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Store("Failed to create message", err)
	}

	return message, nil
}

func (db *PostgresDB) GetThread(ctx context.Context, userA, userB uuid.UUID) ([]*models.Message, error) {
	return db.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at DESC, id DESC`,
		userA, userB,
	)
}

func (db *PostgresDB) GetAllForUser(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	return db.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC, id DESC`,
		userID,
	)
}

func (db *PostgresDB) GetMessageByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	messages, err := db.queryMessages(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = $1",
		messageID,
	)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, ErrMessageNotFound
	}
	return messages[0], nil
}

func (db *PostgresDB) MarkThreadRead(ctx context.Context, viewerID, otherID uuid.UUID) (int64, error) {
	result, err := db.ExecContext(ctx,
		"UPDATE messages SET is_read = TRUE, updated_at = $1 WHERE sender_id = $2 AND receiver_id = $3 AND is_read = FALSE",
		pgNow(), otherID, viewerID,
	)
	if err != nil {
		return 0, apperr.Store("Failed to mark messages as read", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, apperr.Store("Failed to mark messages as read", err)
	}
	return rowsAffected, nil
}

func (db *PostgresDB) queryMessages(ctx context.Context, query string, args ...interface{}) ([]*models.Message, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Store("Failed to query messages", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	byID := make(map[uuid.UUID]*models.Message)
	for rows.Next() {
		var msg models.Message
		var status string
		var updatedAt time.Time

		err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content,
			&msg.IsRead, &status, &msg.CreatedAt, &updatedAt)
		if err != nil {
			return nil, apperr.Store("Failed to scan message row", err)
		}

		msg.Status = models.MessageStatus(status)
		msg.CreatedAt = msg.CreatedAt.UTC()
		updatedAt = updatedAt.UTC()
		msg.UpdatedAt = &updatedAt
		msg.Attachments = []models.Attachment{}

		messages = append(messages, &msg)
		byID[msg.ID] = &msg
	}

	if err = rows.Err(); err != nil {
		return nil, apperr.Store("Error iterating message rows", err)
	}

	if err := db.loadAttachments(ctx, byID); err != nil {
		return nil, err
	}

	return messages, nil
}

func (db *PostgresDB) loadAttachments(ctx context.Context, byID map[uuid.UUID]*models.Message) error {
	if len(byID) == 0 {
		return nil
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id.String())
	}

	rows, err := db.QueryContext(ctx, `
		SELECT message_id, url, type, name, size
		FROM message_attachments
		WHERE message_id = ANY($1::uuid[])
		ORDER BY message_id, position`,
		pq.Array(ids),
	)
	if err != nil {
		return apperr.Store("Failed to query attachments", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID uuid.UUID
		var a models.Attachment
		var size sql.NullInt64

		if err := rows.Scan(&messageID, &a.URL, &a.Type, &a.Name, &size); err != nil {
			return apperr.Store("Failed to scan attachment row", err)
		}
		if size.Valid {
			v := size.Int64
			a.Size = &v
		}

		if msg, ok := byID[messageID]; ok {
			msg.Attachments = append(msg.Attachments, a)
		}
	}

	if err := rows.Err(); err != nil {
		return apperr.Store("Error iterating attachment rows", err)
	}
	return nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	var role string
	err := db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1",
		id).Scan(&user.ID, &user.Name, &user.Email, &user.Image, &role)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperr.Store("Failed to query user", err)
	}

	user.Role = models.Role(role)
	return &user, nil
}

func (db *PostgresDB) LookupUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.User, error) {
	users := make(map[uuid.UUID]*models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	list, err := db.queryUsers(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ANY($1::uuid[])",
		pq.Array(uuidStrings(ids)),
	)
	if err != nil {
		return nil, err
	}

	for i := range list {
		users[list[i].ID] = &list[i]
	}
	return users, nil
}

func (db *PostgresDB) TeachersOfStudent(ctx context.Context, studentID uuid.UUID) ([]models.UserRef, error) {
	enrolled, err := db.queryUsers(ctx, `
		SELECT u.id, COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.image, ''), COALESCE(u.role, '')
		FROM enrollments e
		JOIN courses c ON c.id = e.course_id
		JOIN users u ON u.id = c.teacher_id
		WHERE e.student_id = $1`,
		studentID,
	)
	if err != nil {
		return nil, err
	}

	tutored, err := db.queryUsers(ctx, `
		SELECT u.id, COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.image, ''), COALESCE(u.role, '')
		FROM tutoring_sessions s
		JOIN users u ON u.id = s.teacher_id
		WHERE s.student_id = $1 AND s.status = ANY($2)`,
		studentID, pq.Array(models.LinkingSessionStatuses),
	)
	if err != nil {
		return nil, err
	}

	return append(enrolled, tutored...), nil
}

func (db *PostgresDB) StudentsOfTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.UserRef, error) {
	enrolled, err := db.queryUsers(ctx, `
		SELECT u.id, COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.image, ''), COALESCE(u.role, '')
		FROM courses c
		JOIN enrollments e ON e.course_id = c.id
		JOIN users u ON u.id = e.student_id
		WHERE c.teacher_id = $1`,
		teacherID,
	)
	if err != nil {
		return nil, err
	}

	tutored, err := db.queryUsers(ctx, `
		SELECT u.id, COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.image, ''), COALESCE(u.role, '')
		FROM tutoring_sessions s
		JOIN users u ON u.id = s.student_id
		WHERE s.teacher_id = $1 AND s.status = ANY($2)`,
		teacherID, pq.Array(models.LinkingSessionStatuses),
	)
	if err != nil {
		return nil, err
	}

	return append(enrolled, tutored...), nil
}

func (db *PostgresDB) queryUsers(ctx context.Context, query string, args ...interface{}) ([]models.User, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Store("Failed to query users", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		var role string
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Image, &role); err != nil {
			return nil, apperr.Store("Failed to scan user row", err)
		}
		user.Role = models.Role(role)
		users = append(users, user)
	}

	if err = rows.Err(); err != nil {
		return nil, apperr.Store("Error iterating user rows", err)
	}
	return users, nil
}

func (db *PostgresDB) Backend() DatabaseType {
	return PostgreSQL
}

func (db *PostgresDB) Close() error {
	return db.DB.Close()
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
