// Package store persists user credentials and the conversation log.
//
// Implementations:
//   - MemStore: in-process maps, for tests and development
//   - SQLStore: SQLite (single file) or MySQL
//   - MongoStore: MongoDB, the default deployment target
//   - Unavailable: a placeholder used when the configured store cannot be opened
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when creating a user whose username is taken.
var ErrDuplicate = errors.New("already exists")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// DefaultRole is reported for users stored without a role.
const DefaultRole = "user"

// User is a credential record.
type User struct {
	ID           string    `json:"_id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChatRecord is one exchange in the conversation log.
type ChatRecord struct {
	ID        string    `json:"_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	UserName  string    `json:"user_name,omitempty"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store provides persistence for users and chat records.
//
// All implementations are safe for concurrent use.
type Store interface {
	// FindUser returns the user with the given username, or ErrNotFound.
	FindUser(ctx context.Context, username string) (User, error)

	// CreateUser inserts a user and returns it with ID and CreatedAt set.
	// Returns ErrDuplicate when the username is taken.
	CreateUser(ctx context.Context, user User) (User, error)

	// ListUsers returns up to limit users in insertion order.
	ListUsers(ctx context.Context, limit int) ([]User, error)

	// SaveChat appends a record to the conversation log and returns it
	// with ID set. A zero Timestamp is set to the current time.
	SaveChat(ctx context.Context, record ChatRecord) (ChatRecord, error)

	// ListChats returns up to limit records, newest first.
	ListChats(ctx context.Context, limit int) ([]ChatRecord, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources. Calling Close twice is a no-op.
	Close() error
}

func normalizeUser(u User) User {
	if u.Role == "" {
		u.Role = DefaultRole
	}
	return u
}
