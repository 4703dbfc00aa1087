package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/rbacadmin/internal/platform/db"
	"github.com/odyssey-erp/rbacadmin/internal/principal"
)

// PGTokenStore implements TokenStore using PostgreSQL.
type PGTokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore constructs a PostgreSQL token store.
func NewTokenStore(pool *pgxpool.Pool) *PGTokenStore {
	return &PGTokenStore{pool: pool}
}

var _ TokenStore = (*PGTokenStore)(nil)

func scanToken(row pgx.Row) (VerificationToken, error) {
	var t VerificationToken
	var purpose string
	if err := row.Scan(&t.Identifier, &purpose, &t.TokenHash, &t.Expires); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VerificationToken{}, ErrTokenInvalid
		}
		return VerificationToken{}, fmt.Errorf("auth: scan token: %w: %w", principal.ErrStoreUnavailable, err)
	}
	t.Purpose = Purpose(purpose)
	return t, nil
}

// Replace implements TokenStore.
func (s *PGTokenStore) Replace(ctx context.Context, t VerificationToken) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM verification_tokens WHERE identifier = $1 AND purpose = $2`, t.Identifier, string(t.Purpose)); err != nil {
			return fmt.Errorf("auth: delete tokens: %w", err)
		}
		_, err := tx.Exec(ctx, `INSERT INTO verification_tokens (identifier, purpose, token_hash, expires) VALUES ($1, $2, $3, $4)`,
			t.Identifier, string(t.Purpose), t.TokenHash, t.Expires)
		if err != nil {
			return fmt.Errorf("auth: insert token: %w", err)
		}
		return nil
	})
}

// Find implements TokenStore.
func (s *PGTokenStore) Find(ctx context.Context, purpose Purpose, tokenHash string) (VerificationToken, error) {
	return scanToken(s.pool.QueryRow(ctx, `SELECT identifier, purpose, token_hash, expires FROM verification_tokens
		WHERE purpose = $1 AND token_hash = $2`, string(purpose), tokenHash))
}

// Consume implements TokenStore.
func (s *PGTokenStore) Consume(ctx context.Context, purpose Purpose, tokenHash string) (VerificationToken, error) {
	return scanToken(s.pool.QueryRow(ctx, `DELETE FROM verification_tokens WHERE purpose = $1 AND token_hash = $2
		RETURNING identifier, purpose, token_hash, expires`, string(purpose), tokenHash))
}

// Delete implements TokenStore.
func (s *PGTokenStore) Delete(ctx context.Context, purpose Purpose, tokenHash string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM verification_tokens WHERE purpose = $1 AND token_hash = $2`, string(purpose), tokenHash); err != nil {
		return fmt.Errorf("auth: delete token: %w", err)
	}
	return nil
}

// DeleteForIdentifier implements TokenStore.
func (s *PGTokenStore) DeleteForIdentifier(ctx context.Context, identifier string, purpose Purpose) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM verification_tokens WHERE identifier = $1 AND purpose = $2`, identifier, string(purpose)); err != nil {
		return fmt.Errorf("auth: delete tokens: %w", err)
	}
	return nil
}

// PurgeExpired implements TokenStore.
func (s *PGTokenStore) PurgeExpired(ctx context.Context, now time.Time) (map[Purpose]int64, error) {
	rows, err := s.pool.Query(ctx, `WITH purged AS (
			DELETE FROM verification_tokens WHERE expires <= $1 RETURNING purpose
		)
		SELECT purpose, COUNT(*) FROM purged GROUP BY purpose`, now)
	if err != nil {
		return nil, fmt.Errorf("auth: purge tokens: %w", err)
	}
	defer rows.Close()
	out := map[Purpose]int64{}
	for rows.Next() {
		var purpose string
		var n int64
		if err := rows.Scan(&purpose, &n); err != nil {
			return nil, fmt.Errorf("auth: scan purge: %w", err)
		}
		out[Purpose(purpose)] = n
	}
	return out, rows.Err()
}
