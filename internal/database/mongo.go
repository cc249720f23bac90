package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ammar1510/tutorchat/internal/apperr"
	"github.com/ammar1510/tutorchat/internal/models"
)

type messageDoc struct {
	ID          string              `bson:"_id"`
	SenderID    string              `bson:"sender_id"`
	ReceiverID  string              `bson:"receiver_id"`
	Content     string              `bson:"content"`
	Attachments []models.Attachment `bson:"attachments"`
	IsRead      bool                `bson:"is_read"`
	Status      string              `bson:"status"`
	CreatedAt   time.Time           `bson:"created_at"`
	UpdatedAt   time.Time           `bson:"updated_at"`
}

type userDoc struct {
	ID    string `bson:"_id"`
	Name  string `bson:"name"`
	Email string `bson:"email"`
	Image string `bson:"image"`
	Role  string `bson:"role"`
}

type courseDoc struct {
	ID        string `bson:"_id"`
	TeacherID string `bson:"teacher_id"`
}

type enrollmentDoc struct {
	StudentID string `bson:"student_id"`
	CourseID  string `bson:"course_id"`
}

type sessionDoc struct {
	StudentID string `bson:"student_id"`
	TeacherID string `bson:"teacher_id"`
	Status    string `bson:"status"`
}

// newestFirst sorts on the same keys as the SQL backend; ids are UUIDv7
// strings so lexical order follows insertion order
var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

// MongoDB stores messages as single documents with embedded attachments
type MongoDB struct {
	client      *mongo.Client
	messages    *mongo.Collection
	users       *mongo.Collection
	courses     *mongo.Collection
	enrollments *mongo.Collection
	sessions    *mongo.Collection
}

func NewMongoDB(ctx context.Context, uri, dbName string) (*MongoDB, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	database := client.Database(dbName)
	db := &MongoDB{
		client:      client,
		messages:    database.Collection("messages"),
		users:       database.Collection("users"),
		courses:     database.Collection("courses"),
		enrollments: database.Collection("enrollments"),
		sessions:    database.Collection("tutoring_sessions"),
	}

	if err := db.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return db, nil
}

func (db *MongoDB) ensureIndexes(ctx context.Context) error {
	_, err := db.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("pair_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "receiver_id", Value: 1}, {Key: "is_read", Value: 1}},
			Options: options.Index().SetName("receiver_unread_idx"),
		},
	})
	if err != nil {
		return apperr.Store("Failed to create message indexes", err)
	}
	return nil
}

// mongoNow matches BSON datetime precision
func mongoNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (db *MongoDB) CreateMessage(ctx context.Context, senderID, receiverID uuid.UUID, content string, attachments []models.Attachment) (*models.Message, error) {
	if err := validateNewMessage(senderID, receiverID, content, attachments); err != nil {
		return nil, err
	}

	if _, err := db.GetUserByID(ctx, receiverID); err != nil {
		return nil, receiverError(err)
	}

	message := newMessage(senderID, receiverID, content, attachments, mongoNow())
	doc := messageDoc{
		ID:          message.ID.String(),
		SenderID:    senderID.String(),
		ReceiverID:  receiverID.String(),
		Content:     message.Content,
		Attachments: message.Attachments,
		IsRead:      false,
		Status:      string(message.Status),
		CreatedAt:   message.CreatedAt,
		UpdatedAt:   *message.UpdatedAt,
	}

	if _, err := db.messages.InsertOne(ctx, doc); err != nil {
		return nil, apperr.Store("Failed to create message", err)
	}
	return message, nil
}

func (db *MongoDB) GetThread(ctx context.Context, userA, userB uuid.UUID) ([]*models.Message, error) {
	a, b := userA.String(), userB.String()
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": a, "receiver_id": b},
		bson.M{"sender_id": b, "receiver_id": a},
	}}
	return db.findMessages(ctx, filter)
}

func (db *MongoDB) GetAllForUser(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	id := userID.String()
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": id},
		bson.M{"receiver_id": id},
	}}
	return db.findMessages(ctx, filter)
}

func (db *MongoDB) GetMessageByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	var doc messageDoc
	err := db.messages.FindOne(ctx, bson.M{"_id": messageID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, apperr.Store("Failed to query message", err)
	}
	return doc.toModel()
}

func (db *MongoDB) MarkThreadRead(ctx context.Context, viewerID, otherID uuid.UUID) (int64, error) {
	filter := bson.M{
		"sender_id":   otherID.String(),
		"receiver_id": viewerID.String(),
		"is_read":     false,
	}
	update := bson.M{"$set": bson.M{"is_read": true, "updated_at": mongoNow()}}

	res, err := db.messages.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, apperr.Store("Failed to mark messages as read", err)
	}
	return res.ModifiedCount, nil
}

func (db *MongoDB) findMessages(ctx context.Context, filter interface{}) ([]*models.Message, error) {
	cur, err := db.messages.Find(ctx, filter, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, apperr.Store("Failed to query messages", err)
	}
	defer cur.Close(ctx)

	messages := []*models.Message{}
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, apperr.Store("Failed to decode message", err)
		}
		msg, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := cur.Err(); err != nil {
		return nil, apperr.Store("Error iterating messages", err)
	}
	return messages, nil
}

func (d *messageDoc) toModel() (*models.Message, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, apperr.Store("Malformed message id", err)
	}
	senderID, err := uuid.Parse(d.SenderID)
	if err != nil {
		return nil, apperr.Store("Malformed sender id", err)
	}
	receiverID, err := uuid.Parse(d.ReceiverID)
	if err != nil {
		return nil, apperr.Store("Malformed receiver id", err)
	}

	attachments := d.Attachments
	if attachments == nil {
		attachments = []models.Attachment{}
	}
	updatedAt := d.UpdatedAt.UTC()

	return &models.Message{
		ID:          id,
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Content:     d.Content,
		Attachments: attachments,
		IsRead:      d.IsRead,
		Status:      models.MessageStatus(d.Status),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   &updatedAt,
	}, nil
}

func (d *userDoc) toModel() (models.User, bool) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return models.User{}, false
	}
	return models.User{ID: id, Name: d.Name, Email: d.Email, Image: d.Image, Role: models.Role(d.Role)}, true
}

func (db *MongoDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var doc userDoc
	err := db.users.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperr.Store("Failed to query user", err)
	}

	user, ok := doc.toModel()
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (db *MongoDB) LookupUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.User, error) {
	users := make(map[uuid.UUID]*models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	cur, err := db.users.Find(ctx, bson.M{"_id": bson.M{"$in": uuidStrings(ids)}})
	if err != nil {
		return nil, apperr.Store("Failed to query users", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc userDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, apperr.Store("Failed to decode user", err)
		}
		if user, ok := doc.toModel(); ok {
			users[user.ID] = &user
		}
	}
	if err := cur.Err(); err != nil {
		return nil, apperr.Store("Error iterating users", err)
	}
	return users, nil
}

func (db *MongoDB) TeachersOfStudent(ctx context.Context, studentID uuid.UUID) ([]models.UserRef, error) {
	var enrollments []enrollmentDoc
	if err := db.findAll(ctx, db.enrollments, bson.M{"student_id": studentID.String()}, &enrollments); err != nil {
		return nil, err
	}

	courseIDs := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		courseIDs = append(courseIDs, e.CourseID)
	}

	var courses []courseDoc
	if len(courseIDs) > 0 {
		if err := db.findAll(ctx, db.courses, bson.M{"_id": bson.M{"$in": courseIDs}}, &courses); err != nil {
			return nil, err
		}
	}
	teacherOf := make(map[string]string, len(courses))
	for _, c := range courses {
		teacherOf[c.ID] = c.TeacherID
	}

	var ids []string
	for _, e := range enrollments {
		if teacherID, ok := teacherOf[e.CourseID]; ok {
			ids = append(ids, teacherID)
		}
	}

	var sessions []sessionDoc
	filter := bson.M{"student_id": studentID.String(), "status": bson.M{"$in": models.LinkingSessionStatuses}}
	if err := db.findAll(ctx, db.sessions, filter, &sessions); err != nil {
		return nil, err
	}
	for _, s := range sessions {
		ids = append(ids, s.TeacherID)
	}

	return db.refs(ctx, ids)
}

func (db *MongoDB) StudentsOfTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.UserRef, error) {
	var courses []courseDoc
	if err := db.findAll(ctx, db.courses, bson.M{"teacher_id": teacherID.String()}, &courses); err != nil {
		return nil, err
	}

	courseIDs := make([]string, 0, len(courses))
	for _, c := range courses {
		courseIDs = append(courseIDs, c.ID)
	}

	var ids []string
	if len(courseIDs) > 0 {
		var enrollments []enrollmentDoc
		if err := db.findAll(ctx, db.enrollments, bson.M{"course_id": bson.M{"$in": courseIDs}}, &enrollments); err != nil {
			return nil, err
		}
		for _, e := range enrollments {
			ids = append(ids, e.StudentID)
		}
	}

	var sessions []sessionDoc
	filter := bson.M{"teacher_id": teacherID.String(), "status": bson.M{"$in": models.LinkingSessionStatuses}}
	if err := db.findAll(ctx, db.sessions, filter, &sessions); err != nil {
		return nil, err
	}
	for _, s := range sessions {
		ids = append(ids, s.StudentID)
	}

	return db.refs(ctx, ids)
}

func (db *MongoDB) findAll(ctx context.Context, coll *mongo.Collection, filter interface{}, out interface{}) error {
	cur, err := coll.Find(ctx, filter)
	if err != nil {
		return apperr.Store("Failed to query "+coll.Name(), err)
	}
	if err := cur.All(ctx, out); err != nil {
		return apperr.Store("Failed to decode "+coll.Name(), err)
	}
	return nil
}

// refs resolves ids in order, skipping ids that are malformed or have no profile
func (db *MongoDB) refs(ctx context.Context, ids []string) ([]models.UserRef, error) {
	parsed := make([]uuid.UUID, 0, len(ids))
	for _, s := range ids {
		if id, err := uuid.Parse(s); err == nil {
			parsed = append(parsed, id)
		}
	}

	users, err := db.LookupUsers(ctx, parsed)
	if err != nil {
		return nil, err
	}

	refs := make([]models.UserRef, 0, len(parsed))
	for _, id := range parsed {
		if user, ok := users[id]; ok {
			refs = append(refs, *user)
		}
	}
	return refs, nil
}

func (db *MongoDB) Backend() DatabaseType {
	return Mongo
}

func (db *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.client.Disconnect(ctx)
}
