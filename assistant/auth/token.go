// Package auth issues and verifies identity tokens and checks passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 300 * time.Minute

var (
	// ErrInvalidCredentials is returned when a username or password is wrong.
	ErrInvalidCredentials = errors.New("incorrect username or password")

	// ErrInvalidToken is returned when a token is malformed, has a bad
	// signature or lacks the username or role claim.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrForbidden is returned when a valid token lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// Claims are the token claims. Subject carries the username.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Identity is the verified content of a token.
type Identity struct {
	Username  string
	Role      string
	ExpiresAt time.Time
	TokenID   string
}

// Issuer signs and verifies HS256 tokens with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer. A non-positive ttl uses DefaultTokenTTL.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL returns the token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue creates a signed token for username and role.
func (i *Issuer) Issue(username, role string) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token and returns its identity.
func (i *Issuer) Verify(token string) (Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" || claims.Role == "" {
		return Identity{}, ErrInvalidToken
	}

	identity := Identity{
		Username: claims.Subject,
		Role:     claims.Role,
		TokenID:  claims.ID,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}
