// Package storage defines the narrow interface the gateway uses to reach its
// external persistence backend, plus the admin configuration document that
// backends store.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrUserExists is returned by RegisterUser when the backend itself detects
// a duplicate username.
var ErrUserExists = errors.New("user already exists")

// Backend is the set of operations the gateway needs from a storage backend.
type Backend interface {
	// CheckUserExist reports whether username is registered.
	CheckUserExist(ctx context.Context, username string) (bool, error)
	// RegisterUser stores credentials for a new user.
	RegisterUser(ctx context.Context, username, password string) error
	// GetAdminConfig returns the stored admin configuration, or nil when none
	// has been saved yet.
	GetAdminConfig(ctx context.Context) (*AdminConfig, error)
	// SaveAdminConfig replaces the stored admin configuration.
	SaveAdminConfig(ctx context.Context, cfg *AdminConfig) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// HashPassword returns the bcrypt hash backends persist instead of the
// plain password. The password is reduced with SHA-256 first, so bcrypt's
// 72 byte input limit never applies.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(prehash(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches a hash from HashPassword.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), prehash(password)) == nil
}

func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(hex.EncodeToString(sum[:]))
}
