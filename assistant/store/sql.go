package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	name        string
	driver      string
	usersTable  string
	chatsTable  string
	chatsIndex  string
	isDuplicate func(error) bool
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	usersTable: `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)
	`,
	chatsTable: `
		CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT '',
			user_name TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			response TEXT NOT NULL,
			provider TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL DEFAULT '',
			timestamp INTEGER NOT NULL
		)
	`,
	chatsIndex: `CREATE INDEX IF NOT EXISTS idx_chats_timestamp ON chats(timestamp)`,
	isDuplicate: func(err error) bool {
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

var mysqlDialect = dialect{
	name:   "mysql",
	driver: "mysql",
	usersTable: `
		CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(26) PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(64) NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			UNIQUE KEY uq_users_username (username)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
	`,
	chatsTable: `
		CREATE TABLE IF NOT EXISTS chats (
			id VARCHAR(26) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			role VARCHAR(64) NOT NULL DEFAULT '',
			user_name VARCHAR(255) NOT NULL DEFAULT '',
			message MEDIUMTEXT NOT NULL,
			response MEDIUMTEXT NOT NULL,
			provider VARCHAR(64) NOT NULL DEFAULT '',
			model VARCHAR(128) NOT NULL DEFAULT '',
			outcome VARCHAR(32) NOT NULL DEFAULT '',
			timestamp BIGINT NOT NULL,
			INDEX idx_chats_timestamp (timestamp)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
	`,
	isDuplicate: func(err error) bool {
		var mysqlErr *mysql.MySQLError
		return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
	},
}

// SQLStore is a Store backed by SQLite or MySQL.
//
// Timestamps are stored as Unix nanoseconds so both dialects order them the
// same way. Tables are created on first use.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	mu      sync.RWMutex
	closed  bool
	now     func() time.Time
}

// NewSQLiteStore opens a SQLite database at path. Use ":memory:" for a
// throwaway database.
//
// The connection is configured for one writer with WAL mode and a busy
// timeout, as SQLite supports a single writer at a time.
func NewSQLiteStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return newSQLStore(ctx, db, sqliteDialect)
}

// NewMySQLStore connects to MySQL using a DSN such as
// "user:password@tcp(localhost:3306)/vuai".
//
// Never hardcode credentials; read the DSN from the environment.
func NewMySQLStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return newSQLStore(ctx, db, mysqlDialect)
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d, now: time.Now}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLStore) createTables(ctx context.Context) error {
	for _, stmt := range []string{s.dialect.usersTable, s.dialect.chatsTable, s.dialect.chatsIndex} {
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *SQLStore) FindUser(ctx context.Context, username string) (User, error) {
	if err := s.checkOpen(); err != nil {
		return User{}, err
	}

	var (
		u         User
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, created_at FROM users WHERE username = ?`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to find user: %w", err)
	}

	u.CreatedAt = time.Unix(0, createdAt).UTC()
	return normalizeUser(u), nil
}

func (s *SQLStore) CreateUser(ctx context.Context, user User) (User, error) {
	if err := s.checkOpen(); err != nil {
		return User{}, err
	}

	user.ID = ulid.Make().String()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.PasswordHash, user.Role, user.CreatedAt.UnixNano(),
	)
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return User{}, ErrDuplicate
		}
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return normalizeUser(user), nil
}

func (s *SQLStore) ListUsers(ctx context.Context, limit int) ([]User, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, password_hash, role, created_at FROM users ORDER BY created_at, id LIMIT ?`,
		sqlLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var (
			u         User
			createdAt int64
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.CreatedAt = time.Unix(0, createdAt).UTC()
		users = append(users, normalizeUser(u))
	}
	return users, rows.Err()
}

func (s *SQLStore) SaveChat(ctx context.Context, record ChatRecord) (ChatRecord, error) {
	if err := s.checkOpen(); err != nil {
		return ChatRecord{}, err
	}

	record.ID = ulid.Make().String()
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, user_id, role, user_name, message, response, provider, model, outcome, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.UserID, record.Role, record.UserName, record.Message, record.Response,
		record.Provider, record.Model, record.Outcome, record.Timestamp.UnixNano(),
	)
	if err != nil {
		return ChatRecord{}, fmt.Errorf("failed to save chat: %w", err)
	}
	return record, nil
}

func (s *SQLStore) ListChats(ctx context.Context, limit int) ([]ChatRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	// ULIDs sort by creation time, so id breaks timestamp ties.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role, user_name, message, response, provider, model, outcome, timestamp
		 FROM chats ORDER BY timestamp DESC, id DESC LIMIT ?`,
		sqlLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	chats := []ChatRecord{}
	for rows.Next() {
		var (
			c  ChatRecord
			ts int64
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.Role, &c.UserName, &c.Message, &c.Response,
			&c.Provider, &c.Model, &c.Outcome, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		c.Timestamp = time.Unix(0, ts).UTC()
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// Ping verifies the database connection is alive.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Close closes the connection pool. Subsequent calls are no-ops.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Dialect returns "sqlite" or "mysql".
func (s *SQLStore) Dialect() string {
	return s.dialect.name
}

// sqlLimit maps a non-positive limit to "no limit".
func sqlLimit(limit int) int64 {
	if limit <= 0 {
		return 1<<63 - 1
	}
	return int64(limit)
}
