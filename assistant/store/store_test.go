package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dshills/vuai/assistant/config"
)

// runStoreContract exercises the behaviour every Store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and find user", func(t *testing.T) {
		s := newStore(t)

		created, err := s.CreateUser(ctx, User{Username: "ravi", PasswordHash: "$2a$hash", Role: "student"})
		if err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		if created.ID == "" {
			t.Error("expected ID to be assigned")
		}
		if created.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be set")
		}

		found, err := s.FindUser(ctx, "ravi")
		if err != nil {
			t.Fatalf("FindUser failed: %v", err)
		}
		if found.ID != created.ID || found.PasswordHash != "$2a$hash" || found.Role != "student" {
			t.Errorf("unexpected user %+v", found)
		}
	})

	t.Run("missing user", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.FindUser(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("duplicate username", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.CreateUser(ctx, User{Username: "ravi", PasswordHash: "h", Role: "student"}); err != nil {
			t.Fatalf("first CreateUser failed: %v", err)
		}
		if _, err := s.CreateUser(ctx, User{Username: "ravi", PasswordHash: "h2", Role: "admin"}); !errors.Is(err, ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("empty role reads as default", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.CreateUser(ctx, User{Username: "norole", PasswordHash: "h"}); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		u, err := s.FindUser(ctx, "norole")
		if err != nil {
			t.Fatalf("FindUser failed: %v", err)
		}
		if u.Role != DefaultRole {
			t.Errorf("expected %q, got %q", DefaultRole, u.Role)
		}
	})

	t.Run("list users respects limit", func(t *testing.T) {
		s := newStore(t)
		for _, name := range []string{"a", "b", "c"} {
			if _, err := s.CreateUser(ctx, User{Username: name, PasswordHash: "h", Role: "student"}); err != nil {
				t.Fatalf("CreateUser failed: %v", err)
			}
		}

		all, err := s.ListUsers(ctx, 100)
		if err != nil {
			t.Fatalf("ListUsers failed: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("expected 3 users, got %d", len(all))
		}

		two, err := s.ListUsers(ctx, 2)
		if err != nil {
			t.Fatalf("ListUsers failed: %v", err)
		}
		if len(two) != 2 {
			t.Errorf("expected 2 users, got %d", len(two))
		}
	})

	t.Run("chats newest first", func(t *testing.T) {
		s := newStore(t)
		base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		for i, msg := range []string{"first", "second", "third"} {
			_, err := s.SaveChat(ctx, ChatRecord{
				UserID:    "u1",
				Role:      "student",
				Message:   msg,
				Response:  "reply to " + msg,
				Outcome:   "success",
				Timestamp: base.Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				t.Fatalf("SaveChat failed: %v", err)
			}
		}

		chats, err := s.ListChats(ctx, 500)
		if err != nil {
			t.Fatalf("ListChats failed: %v", err)
		}
		if len(chats) != 3 {
			t.Fatalf("expected 3 chats, got %d", len(chats))
		}
		if chats[0].Message != "third" || chats[2].Message != "first" {
			t.Errorf("expected newest first, got %q..%q", chats[0].Message, chats[2].Message)
		}
		if chats[0].ID == "" || chats[0].Response != "reply to third" {
			t.Errorf("unexpected record %+v", chats[0])
		}
		if !chats[0].Timestamp.Equal(base.Add(2 * time.Minute)) {
			t.Errorf("timestamp not preserved: %v", chats[0].Timestamp)
		}

		limited, err := s.ListChats(ctx, 1)
		if err != nil {
			t.Fatalf("ListChats failed: %v", err)
		}
		if len(limited) != 1 || limited[0].Message != "third" {
			t.Errorf("expected only newest chat, got %+v", limited)
		}
	})

	t.Run("save chat sets timestamp", func(t *testing.T) {
		s := newStore(t)
		saved, err := s.SaveChat(ctx, ChatRecord{UserID: "u1", Message: "m", Response: "r"})
		if err != nil {
			t.Fatalf("SaveChat failed: %v", err)
		}
		if saved.Timestamp.IsZero() {
			t.Error("expected timestamp to be set")
		}
	})

	t.Run("empty lists are non-nil", func(t *testing.T) {
		s := newStore(t)
		users, err := s.ListUsers(ctx, 10)
		if err != nil || users == nil {
			t.Errorf("expected empty users, got %v, %v", users, err)
		}
		chats, err := s.ListChats(ctx, 10)
		if err != nil || chats == nil {
			t.Errorf("expected empty chats, got %v, %v", chats, err)
		}
	})

	t.Run("ping and close", func(t *testing.T) {
		s := newStore(t)
		if err := s.Ping(ctx); err != nil {
			t.Fatalf("Ping failed: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Errorf("second Close should be a no-op, got %v", err)
		}
		if err := s.Ping(ctx); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed after Close, got %v", err)
		}
		if _, err := s.FindUser(ctx, "x"); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	})
}

func TestMemStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemStore()
	})
}

func TestMemStore_TimestampTiesFavorLatest(t *testing.T) {
	s := NewMemStore()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, msg := range []string{"a", "b"} {
		if _, err := s.SaveChat(context.Background(), ChatRecord{Message: msg, Timestamp: ts}); err != nil {
			t.Fatal(err)
		}
	}

	chats, _ := s.ListChats(context.Background(), 0)
	if chats[0].Message != "b" {
		t.Errorf("expected later record first on tie, got %q", chats[0].Message)
	}
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "vuai.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStore failed: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vuai.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if _, err := s.CreateUser(ctx, User{Username: "admin", PasswordHash: "h", Role: "admin"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	u, err := reopened.FindUser(ctx, "admin")
	if err != nil || u.Role != "admin" {
		t.Errorf("expected persisted admin, got %+v, %v", u, err)
	}
	if reopened.Dialect() != "sqlite" {
		t.Errorf("unexpected dialect %s", reopened.Dialect())
	}
}

func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("Skipping MySQL test: set TEST_MYSQL_DSN to run")
	}

	runStoreContract(t, func(t *testing.T) Store {
		s, err := NewMySQLStore(dsn)
		if err != nil {
			t.Fatalf("NewMySQLStore failed: %v", err)
		}
		clean := func() {
			_, _ = s.db.Exec("DELETE FROM users")
			_, _ = s.db.Exec("DELETE FROM chats")
		}
		clean()
		t.Cleanup(func() {
			clean()
			_ = s.Close()
		})
		return s
	})
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("Skipping MongoDB test: set TEST_MONGO_URI to run")
	}

	runStoreContract(t, func(t *testing.T) Store {
		ctx := context.Background()
		database := "vuai_test_" + strings.ToLower(ulid.Make().String())

		s, err := NewMongoStore(ctx, uri, database)
		if err != nil {
			t.Fatalf("NewMongoStore failed: %v", err)
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			t.Fatalf("EnsureIndexes failed: %v", err)
		}
		t.Cleanup(func() {
			_ = s.client.Database(database).Drop(ctx)
			_ = s.Close()
		})
		return s
	})
}

func TestUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	s := NewUnavailable(cause)
	ctx := context.Background()

	if err := s.Ping(ctx); !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
	if _, err := s.FindUser(ctx, "x"); !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
	if _, err := s.ListChats(ctx, 1); !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close should succeed, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, err := Open(ctx, config.StoreConfig{Driver: "memory"}, nil)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if _, ok := s.(*MemStore); !ok {
			t.Errorf("expected *MemStore, got %T", s)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "x.db")}, nil)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer s.Close()
		if _, ok := s.(*SQLStore); !ok {
			t.Errorf("expected *SQLStore, got %T", s)
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		if _, err := Open(ctx, config.StoreConfig{Driver: "redis"}, nil); err == nil {
			t.Error("expected error for unknown driver")
		}
	})
}
