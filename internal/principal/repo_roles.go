package principal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/rbacadmin/internal/platform/db"
)

const roleColumns = `id, name, description, is_default, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var r Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.IsDefault, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func loadGrants(ctx context.Context, q queryer, roleID int64) (RoleGrants, error) {
	role, err := scanRole(q.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID))
	if err != nil {
		return RoleGrants{}, mapErr("find role", err)
	}
	grants := RoleGrants{Role: role}

	permRows, err := q.Query(ctx, `SELECT p.`+permissionColumnsP+` FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1 ORDER BY p.name`, roleID)
	if err != nil {
		return RoleGrants{}, err
	}
	for permRows.Next() {
		perm, err := scanPermission(permRows)
		if err != nil {
			permRows.Close()
			return RoleGrants{}, err
		}
		grants.Permissions = append(grants.Permissions, perm)
	}
	permRows.Close()
	if err := permRows.Err(); err != nil {
		return RoleGrants{}, err
	}

	pageRows, err := q.Query(ctx, `SELECT pg.`+pageColumnsP+` FROM pages pg
		JOIN role_pages rp ON rp.page_id = pg.id
		WHERE rp.role_id = $1 ORDER BY pg.id`, roleID)
	if err != nil {
		return RoleGrants{}, err
	}
	defer pageRows.Close()
	for pageRows.Next() {
		page, err := scanPage(pageRows)
		if err != nil {
			return RoleGrants{}, err
		}
		grants.Pages = append(grants.Pages, page)
	}
	return grants, pageRows.Err()
}

// FindRoleByID fetches a role.
func (s *PGStore) FindRoleByID(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(s.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	return role, mapErr("find role", err)
}

// FindRoleGrants fetches a role with its permissions and pages.
func (s *PGStore) FindRoleGrants(ctx context.Context, id int64) (RoleGrants, error) {
	var grants RoleGrants
	err := db.WithTxOptions(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var err error
		grants, err = loadGrants(ctx, tx, id)
		return err
	})
	return grants, mapErr("find role grants", err)
}

// FindDefaultRole returns the role flagged as default.
func (s *PGStore) FindDefaultRole(ctx context.Context) (Role, error) {
	role, err := scanRole(s.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE is_default LIMIT 1`))
	return role, mapErr("find default role", err)
}

// ListRoles returns a page of roles.
func (s *PGStore) ListRoles(ctx context.Context, filter ListFilter) ([]Role, int, error) {
	filter = filter.Normalize()
	const where = `WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')`
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM roles `+where, filter.Search).Scan(&total); err != nil {
		return nil, 0, mapErr("count roles", err)
	}
	rows, err := s.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles `+where+` ORDER BY id LIMIT $2 OFFSET $3`,
		filter.Search, filter.Limit, filter.Offset())
	if err != nil {
		return nil, 0, mapErr("list roles", err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, 0, mapErr("scan role", err)
		}
		roles = append(roles, role)
	}
	return roles, total, mapErr("list roles", rows.Err())
}

// CreateRole inserts a role. Creating a default role while another default exists fails.
func (s *PGStore) CreateRole(ctx context.Context, name, description string, isDefault bool) (Role, error) {
	role, err := scanRole(s.pool.QueryRow(ctx, `INSERT INTO roles (name, description, is_default)
		VALUES ($1, $2, $3) RETURNING `+roleColumns, name, description, isDefault))
	return role, mapErr("create role", err)
}

// UpdateRole renames or re-describes a role.
func (s *PGStore) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	role, err := scanRole(s.pool.QueryRow(ctx, `UPDATE roles SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1 RETURNING `+roleColumns, id, name, description))
	return role, mapErr("update role", err)
}

// DeleteRole removes a role; members fall back to no role.
func (s *PGStore) DeleteRole(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete role", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDefaultRole moves the default flag to id. The table lock serialises concurrent
// reassignments so no reader observes zero or two defaults.
func (s *PGStore) SetDefaultRole(ctx context.Context, id int64) error {
	err := db.WithTxOptions(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE roles IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `UPDATE roles SET is_default = FALSE, updated_at = NOW() WHERE is_default AND id <> $1`, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE roles SET is_default = TRUE, updated_at = NOW() WHERE id = $1`, id)
		return err
	})
	return mapErr("set default role", err)
}

// SetRolePermissions replaces the role's permission set.
func (s *PGStore) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (RoleGrants, error) {
	return s.replaceJoin(ctx, roleID, permissionIDs, "permissions", "role_permissions", "permission_id")
}

// SetRolePages replaces the role's page set.
func (s *PGStore) SetRolePages(ctx context.Context, roleID int64, pageIDs []int64) (RoleGrants, error) {
	return s.replaceJoin(ctx, roleID, pageIDs, "pages", "role_pages", "page_id")
}

func (s *PGStore) replaceJoin(ctx context.Context, roleID int64, ids []int64, table, joinTable, column string) (RoleGrants, error) {
	var grants RoleGrants
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := scanRole(tx.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1 FOR UPDATE`, roleID)); err != nil {
			return err
		}
		unique := dedupe(ids)
		var found int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id = ANY($1)`, unique).Scan(&found); err != nil {
			return err
		}
		if found != len(unique) {
			return fmt.Errorf("principal: one or more %s do not exist: %w", table, ErrNotFound)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM `+joinTable+` WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		if len(unique) > 0 {
			if _, err := tx.Exec(ctx, `INSERT INTO `+joinTable+` (role_id, `+column+`) SELECT $1, UNNEST($2::bigint[])`, roleID, unique); err != nil {
				return err
			}
		}
		var err error
		grants, err = loadGrants(ctx, tx, roleID)
		return err
	})
	return grants, mapErr("replace "+joinTable, err)
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
