package store

import (
	"context"
	"fmt"
)

// Unavailable is a Store whose every operation fails with the error that
// prevented the real store from opening. It keeps the service running, and
// reporting "disconnected", when the database is down at startup.
type Unavailable struct {
	Err error
}

// NewUnavailable wraps the open error.
func NewUnavailable(err error) *Unavailable {
	return &Unavailable{Err: fmt.Errorf("store unavailable: %w", err)}
}

func (u *Unavailable) FindUser(context.Context, string) (User, error) { return User{}, u.Err }

func (u *Unavailable) CreateUser(context.Context, User) (User, error) { return User{}, u.Err }

func (u *Unavailable) ListUsers(context.Context, int) ([]User, error) { return nil, u.Err }

func (u *Unavailable) SaveChat(context.Context, ChatRecord) (ChatRecord, error) {
	return ChatRecord{}, u.Err
}

func (u *Unavailable) ListChats(context.Context, int) ([]ChatRecord, error) { return nil, u.Err }

func (u *Unavailable) Ping(context.Context) error { return u.Err }

func (u *Unavailable) Close() error { return nil }
