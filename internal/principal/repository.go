package principal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/rbacadmin/internal/platform/db"
)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed store.
func NewRepository(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

var _ Store = (*PGStore)(nil)

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// LoadAuthorization reads the user, role, permissions and pages in one repeatable-read transaction.
func (s *PGStore) LoadAuthorization(ctx context.Context, userID int64) (Authorization, error) {
	var out Authorization
	err := db.WithTxOptions(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		user, err := findUser(ctx, tx, `WHERE id = $1`, userID)
		if err != nil {
			return err
		}
		out.User = user
		if user.RoleID == nil {
			return nil
		}
		grants, err := loadGrants(ctx, tx, *user.RoleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		out.Grants = &grants
		return nil
	})
	if err != nil {
		return Authorization{}, mapErr("load authorization", err)
	}
	return out, nil
}

// mapErr translates driver errors into package sentinels.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) || errors.Is(err, ErrDefaultRoleExists) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if pgErr.ConstraintName == "roles_single_default" {
				return ErrDefaultRoleExists
			}
			return fmt.Errorf("principal: %s: %w", op, ErrDuplicate)
		case "23503":
			return fmt.Errorf("principal: %s: %w", op, ErrNotFound)
		}
	}
	return fmt.Errorf("principal: %s: %w: %w", op, ErrStoreUnavailable, err)
}
