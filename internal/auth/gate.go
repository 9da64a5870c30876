// Package auth is the access gate for the listing surface: credential
// verification, stateless signed sessions, and the add-user operation.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for every failed login, whether the
	// username is unknown or the password is wrong.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrUnauthorized is returned for every rejected session token. The
	// wrapped detail (expired, tampered, malformed) is for logs only.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnknownUser is reported by credential stores for absent usernames.
	// The gate never lets it reach a client.
	ErrUnknownUser = errors.New("unknown user")
)

// CredentialStore defines the interface for the persisted user list.
type CredentialStore interface {
	// Upsert stores a credential entry; an existing username is overwritten.
	Upsert(ctx context.Context, username, passwordHash string) error

	// PasswordHash returns the stored hash, or ErrUnknownUser.
	PasswordHash(ctx context.Context, username string) (string, error)

	// CountUsers reports how many credential entries exist.
	CountUsers(ctx context.Context) (int, error)
}

// Gate authenticates listing requests. When the credential store is empty the
// gate is disabled and every request passes.
type Gate struct {
	creds    CredentialStore
	sessions *SessionManager

	// dummyHash is compared against when the username is unknown, so both
	// failure modes cost one bcrypt comparison.
	dummyHash []byte
}

// NewGate creates a new access gate.
func NewGate(creds CredentialStore, sessions *SessionManager) *Gate {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("filedrop-placeholder"), bcrypt.DefaultCost)
	return &Gate{
		creds:     creds,
		sessions:  sessions,
		dummyHash: dummy,
	}
}

// Enabled reports whether any credentials are configured.
func (g *Gate) Enabled(ctx context.Context) bool {
	n, err := g.creds.CountUsers(ctx)
	return err == nil && n > 0
}

// Login verifies a username/password pair and issues a session token.
// Unknown usernames and wrong passwords fail identically.
func (g *Gate) Login(ctx context.Context, username, password string) (string, error) {
	hash, err := g.creds.PasswordHash(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			bcrypt.CompareHashAndPassword(g.dummyHash, []byte(password))
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to read credentials: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	token, err := g.sessions.Issue(username)
	if err != nil {
		return "", fmt.Errorf("failed to issue session: %w", err)
	}
	return token, nil
}

// Authorize verifies a session token and returns the username it was issued
// to. Expired, tampered, and malformed tokens all map to ErrUnauthorized;
// the wrapped detail distinguishes them in logs.
func (g *Gate) Authorize(token string) (string, error) {
	return g.sessions.Verify(token)
}

// AddUser hashes the password and stores the credential entry. A duplicate
// username overwrites the existing entry.
func (g *Gate) AddUser(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return errors.New("username and password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := g.creds.Upsert(ctx, username, string(hash)); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	return nil
}
