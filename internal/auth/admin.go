// Package auth gates the editorial surface. Admin access is a username
// allowlist plus one shared bcrypt password hash; there are no user accounts
// and no tokens.
package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotAllowed      = errors.New("username not on admin allowlist")
	ErrInvalidPassword = errors.New("invalid admin password")
)

// Admin verifies editorial credentials.
type Admin struct {
	allowlist    map[string]struct{}
	passwordHash string
}

// NewAdmin builds a verifier from the configured allowlist and bcrypt hash.
// Usernames compare case-insensitively.
func NewAdmin(allowlist []string, passwordHash string) *Admin {
	set := make(map[string]struct{}, len(allowlist))
	for _, name := range allowlist {
		trimmed := strings.ToLower(strings.TrimSpace(name))
		if trimmed != "" {
			set[trimmed] = struct{}{}
		}
	}
	return &Admin{allowlist: set, passwordHash: passwordHash}
}

// Verify checks the username against the allowlist and the password against
// the shared hash. The password comparison runs even for unknown usernames so
// the two failure modes take the same time.
func (a *Admin) Verify(username, password string) error {
	_, allowed := a.allowlist[strings.ToLower(strings.TrimSpace(username))]
	hashErr := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password))
	if !allowed {
		return ErrNotAllowed
	}
	if hashErr != nil {
		return ErrInvalidPassword
	}
	return nil
}

// HashPassword produces a bcrypt hash for ADMIN_PASSWORD_HASH. Used by the
// setup command.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
