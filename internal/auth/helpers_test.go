package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/principal/principaltest"
)

type memTokens struct {
	mu     sync.Mutex
	tokens map[string]VerificationToken
}

func newMemTokens() *memTokens {
	return &memTokens{tokens: map[string]VerificationToken{}}
}

func (m *memTokens) Replace(_ context.Context, t VerificationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.tokens {
		if v.Identifier == t.Identifier && v.Purpose == t.Purpose {
			delete(m.tokens, k)
		}
	}
	m.tokens[t.TokenHash] = t
	return nil
}

func (m *memTokens) Find(_ context.Context, purpose Purpose, hash string) (VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok || t.Purpose != purpose {
		return VerificationToken{}, ErrTokenInvalid
	}
	return t, nil
}

func (m *memTokens) Consume(_ context.Context, purpose Purpose, hash string) (VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok || t.Purpose != purpose {
		return VerificationToken{}, ErrTokenInvalid
	}
	delete(m.tokens, hash)
	return t, nil
}

func (m *memTokens) Delete(_ context.Context, purpose Purpose, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[hash]; ok && t.Purpose == purpose {
		delete(m.tokens, hash)
	}
	return nil
}

func (m *memTokens) DeleteForIdentifier(_ context.Context, identifier string, purpose Purpose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.tokens {
		if v.Identifier == identifier && v.Purpose == purpose {
			delete(m.tokens, k)
		}
	}
	return nil
}

func (m *memTokens) PurgeExpired(_ context.Context, now time.Time) (map[Purpose]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[Purpose]int64{}
	for k, v := range m.tokens {
		if v.Expired(now) {
			delete(m.tokens, k)
			out[v.Purpose]++
		}
	}
	return out, nil
}

func (m *memTokens) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []Mail
	err  error
}

func (f *fakeMailer) Enqueue(_ context.Context, mail Mail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, mail)
	return nil
}

func (f *fakeMailer) last(t *testing.T) Mail {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "no mail queued")
	return f.sent[len(f.sent)-1]
}

var errBroker = errors.New("broker down")

// fastHash keeps seeded fixtures cheap; the verifier accepts any bcrypt cost.
func fastHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func verifiedAt() *time.Time {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &at
}

type fixture struct {
	store   *principaltest.Store
	tokens  *memTokens
	mailer  *fakeMailer
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := principaltest.New()
	tokens := newMemTokens()
	mailer := &fakeMailer{}
	svc := NewService(store, tokens, mailer, nil, Config{BaseURL: "https://app.example.com/"})
	return &fixture{store: store, tokens: tokens, mailer: mailer, service: svc}
}

func (f *fixture) seedPasswordUser(t *testing.T, email, password string, roleID *int64) principal.User {
	t.Helper()
	return f.store.SeedUser(principal.User{
		Email:         email,
		Name:          "Test User",
		PasswordHash:  fastHash(t, password),
		EmailVerified: verifiedAt(),
		RoleID:        roleID,
	})
}
