package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	usersCollection = "users"
	chatsCollection = "chats"
)

type userDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Username  string             `bson:"username"`
	Password  string             `bson:"password"`
	Role      string             `bson:"role,omitempty"`
	CreatedAt time.Time          `bson:"created_at,omitempty"`
}

func (d userDoc) user() User {
	return normalizeUser(User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		PasswordHash: d.Password,
		Role:         d.Role,
		CreatedAt:    d.CreatedAt,
	})
}

type chatDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"user_id"`
	Role      string             `bson:"role,omitempty"`
	UserName  string             `bson:"user_name,omitempty"`
	Message   string             `bson:"message"`
	Response  string             `bson:"response"`
	Provider  string             `bson:"provider,omitempty"`
	Model     string             `bson:"model,omitempty"`
	Outcome   string             `bson:"outcome,omitempty"`
	Timestamp time.Time          `bson:"timestamp"`
}

func (d chatDoc) record() ChatRecord {
	return ChatRecord{
		ID:        d.ID.Hex(),
		UserID:    d.UserID,
		Role:      d.Role,
		UserName:  d.UserName,
		Message:   d.Message,
		Response:  d.Response,
		Provider:  d.Provider,
		Model:     d.Model,
		Outcome:   d.Outcome,
		Timestamp: d.Timestamp,
	}
}

// MongoStore is a Store backed by MongoDB.
//
// Users live in the "users" collection with the bcrypt hash in the
// "password" field; the conversation log lives in "chats".
type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
	chats  *mongo.Collection
	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

// NewMongoStore configures a client for uri and database.
//
// The driver connects lazily, so an unreachable server is not an error
// here; Ping reports it instead.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to configure MongoDB client: %w", err)
	}

	db := client.Database(database)
	return &MongoStore{
		client: client,
		users:  db.Collection(usersCollection),
		chats:  db.Collection(chatsCollection),
		now:    time.Now,
	}, nil
}

// EnsureIndexes creates the unique username index and the chat timestamp
// index. It needs a reachable server.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	_, err := m.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	_, err = m.chats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create chats index: %w", err)
	}
	return nil
}

func (m *MongoStore) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *MongoStore) FindUser(ctx context.Context, username string) (User, error) {
	if err := m.checkOpen(); err != nil {
		return User{}, err
	}

	var doc userDoc
	err := m.users.FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to find user: %w", err)
	}
	return doc.user(), nil
}

func (m *MongoStore) CreateUser(ctx context.Context, user User) (User, error) {
	if err := m.checkOpen(); err != nil {
		return User{}, err
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.now().UTC()
	}
	doc := userDoc{
		Username:  user.Username,
		Password:  user.PasswordHash,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}

	res, err := m.users.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return User{}, ErrDuplicate
		}
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	return doc.user(), nil
}

func (m *MongoStore) ListUsers(ctx context.Context, limit int) ([]User, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := m.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	users := make([]User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.user())
	}
	return users, nil
}

func (m *MongoStore) SaveChat(ctx context.Context, record ChatRecord) (ChatRecord, error) {
	if err := m.checkOpen(); err != nil {
		return ChatRecord{}, err
	}

	if record.Timestamp.IsZero() {
		record.Timestamp = m.now().UTC()
	}
	doc := chatDoc{
		UserID:    record.UserID,
		Role:      record.Role,
		UserName:  record.UserName,
		Message:   record.Message,
		Response:  record.Response,
		Provider:  record.Provider,
		Model:     record.Model,
		Outcome:   record.Outcome,
		Timestamp: record.Timestamp,
	}

	res, err := m.chats.InsertOne(ctx, doc)
	if err != nil {
		return ChatRecord{}, fmt.Errorf("failed to save chat: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		record.ID = oid.Hex()
	}
	return record, nil
}

func (m *MongoStore) ListChats(ctx context.Context, limit int) ([]ChatRecord, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := m.chats.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	var docs []chatDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode chats: %w", err)
	}

	chats := make([]ChatRecord, 0, len(docs))
	for _, d := range docs {
		chats = append(chats, d.record())
	}
	return chats, nil
}

// Ping checks the primary is reachable.
func (m *MongoStore) Ping(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client. Subsequent calls are no-ops.
func (m *MongoStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
