package principal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, username, COALESCE(password, ''), name, image, email_verified,
	is_disabled, is_deleted, deleted_at, role_id, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Name, &u.Image, &u.EmailVerified,
		&u.IsDisabled, &u.IsDeleted, &u.DeletedAt, &u.RoleID, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func findUser(ctx context.Context, q queryer, where string, args ...any) (User, error) {
	return scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users `+where, args...))
}

// FindUserByID fetches a user by id.
func (s *PGStore) FindUserByID(ctx context.Context, id int64) (User, error) {
	user, err := findUser(ctx, s.pool, `WHERE id = $1`, id)
	return user, mapErr("find user by id", err)
}

// FindUserByEmail fetches a user by normalised email.
func (s *PGStore) FindUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := findUser(ctx, s.pool, `WHERE email = $1`, NormalizeEmail(email))
	return user, mapErr("find user by email", err)
}

// FindUserByUsername fetches a user by username.
func (s *PGStore) FindUserByUsername(ctx context.Context, username string) (User, error) {
	user, err := findUser(ctx, s.pool, `WHERE username = $1`, username)
	return user, mapErr("find user by username", err)
}

// ListUsers returns a page of users and the total count.
func (s *PGStore) ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error) {
	filter = filter.Normalize()
	const where = `WHERE ($1 = '' OR email ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%')`
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users `+where, filter.Search).Scan(&total); err != nil {
		return nil, 0, mapErr("count users", err)
	}
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users `+where+` ORDER BY id LIMIT $2 OFFSET $3`,
		filter.Search, filter.Limit, filter.Offset())
	if err != nil {
		return nil, 0, mapErr("list users", err)
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, mapErr("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapErr("list users", err)
	}
	return users, total, nil
}

// CreateUser inserts a user.
func (s *PGStore) CreateUser(ctx context.Context, input NewUser) (User, error) {
	var password *string
	if input.PasswordHash != "" {
		password = &input.PasswordHash
	}
	user, err := scanUser(s.pool.QueryRow(ctx, `INSERT INTO users (email, name, password, image, email_verified, role_id)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+userColumns,
		NormalizeEmail(input.Email), input.Name, password, input.Image, input.EmailVerified, input.RoleID))
	return user, mapErr("create user", err)
}

// DeleteUser permanently removes a user.
func (s *PGStore) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserRole assigns a role to a user.
func (s *PGStore) UpdateUserRole(ctx context.Context, userID, roleID int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET role_id = $2, updated_at = NOW() WHERE id = $1`, userID, roleID)
	if err != nil {
		return mapErr("update user role", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserDisabled toggles the disabled flag.
func (s *PGStore) SetUserDisabled(ctx context.Context, id int64, disabled bool) (User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `UPDATE users SET is_disabled = $2, updated_at = NOW()
		WHERE id = $1 RETURNING `+userColumns, id, disabled))
	return user, mapErr("set user disabled", err)
}

// SetUserDeleted toggles the soft-delete flag and deletedAt timestamp.
func (s *PGStore) SetUserDeleted(ctx context.Context, id int64, deleted bool, at time.Time) (User, error) {
	var deletedAt *time.Time
	if deleted {
		deletedAt = &at
	}
	user, err := scanUser(s.pool.QueryRow(ctx, `UPDATE users SET is_deleted = $2, deleted_at = $3, updated_at = NOW()
		WHERE id = $1 RETURNING `+userColumns, id, deleted, deletedAt))
	return user, mapErr("set user deleted", err)
}

// MarkEmailVerified stamps emailVerified when it is not yet set.
func (s *PGStore) MarkEmailVerified(ctx context.Context, id int64, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET email_verified = COALESCE(email_verified, $2), updated_at = NOW() WHERE id = $1`, id, at)
	return mapErr("mark email verified", err)
}

// UpdateProfile applies the non-nil fields of update.
func (s *PGStore) UpdateProfile(ctx context.Context, id int64, update ProfileUpdate) (User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `UPDATE users SET
			name = COALESCE($2, name),
			username = COALESCE($3, username),
			image = COALESCE($4, image),
			password = COALESCE($5, password),
			updated_at = NOW()
		WHERE id = $1 RETURNING `+userColumns,
		id, update.Name, update.Username, update.Image, update.PasswordHash))
	return user, mapErr("update profile", err)
}
