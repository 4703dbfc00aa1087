package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// TokenStore persists verification tokens by hash.
type TokenStore interface {
	// Replace removes any outstanding token for the identifier and purpose
	// and stores t in its place.
	Replace(ctx context.Context, t VerificationToken) error
	Find(ctx context.Context, purpose Purpose, tokenHash string) (VerificationToken, error)
	// Consume deletes and returns the token in one step so it can only be used once.
	Consume(ctx context.Context, purpose Purpose, tokenHash string) (VerificationToken, error)
	Delete(ctx context.Context, purpose Purpose, tokenHash string) error
	DeleteForIdentifier(ctx context.Context, identifier string, purpose Purpose) error
	PurgeExpired(ctx context.Context, now time.Time) (map[Purpose]int64, error)
}

// NewRawToken returns 32 random bytes, hex encoded.
func NewRawToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the storage key for a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
