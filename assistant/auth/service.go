package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/vuai/assistant/store"
)

// TokenType is reported alongside every issued token.
const TokenType = "bearer"

// RoleAdmin is the role required for administrative endpoints.
const RoleAdmin = "admin"

// UserStore is the subset of store.Store the service needs.
type UserStore interface {
	FindUser(ctx context.Context, username string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
}

// Session is the result of a successful login.
type Session struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	Username    string `json:"username"`
}

// Service checks credentials against a UserStore and issues tokens.
type Service struct {
	users  UserStore
	issuer *Issuer
}

// NewService creates a Service.
func NewService(users UserStore, issuer *Issuer) *Service {
	return &Service{users: users, issuer: issuer}
}

// Issuer returns the token issuer.
func (s *Service) Issuer() *Issuer {
	return s.issuer
}

// Login verifies username and password and issues a token.
//
// An unknown user and a wrong password both return ErrInvalidCredentials.
// Store failures are returned wrapped.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.users.FindUser(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		CheckPassword(dummyHash(), password)
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to look up user: %w", err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}

	role := user.Role
	if role == "" {
		role = store.DefaultRole
	}

	token, err := s.issuer.Issue(user.Username, role)
	if err != nil {
		return Session{}, err
	}

	return Session{
		AccessToken: token,
		TokenType:   TokenType,
		UserID:      user.ID,
		Role:        role,
		Username:    user.Username,
	}, nil
}

// Authorize verifies token and, when role is non-empty, requires the
// token's role to match it.
func (s *Service) Authorize(token, role string) (Identity, error) {
	identity, err := s.issuer.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	if role != "" && identity.Role != role {
		return identity, ErrForbidden
	}
	return identity, nil
}

// Register creates a user with a hashed password.
func (s *Service) Register(ctx context.Context, username, password, role string) (store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return store.User{}, errors.New("username is required")
	}
	if password == "" {
		return store.User{}, errors.New("password is required")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return store.User{}, err
	}

	user, err := s.users.CreateUser(ctx, store.User{
		Username:     username,
		PasswordHash: hash,
		Role:         strings.ToLower(strings.TrimSpace(role)),
	})
	if err != nil {
		return store.User{}, fmt.Errorf("failed to create user %q: %w", username, err)
	}
	return user, nil
}
