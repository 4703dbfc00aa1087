package principal

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const (
	permissionColumns  = `id, name, description, created_at, updated_at`
	permissionColumnsP = `id, p.name, p.description, p.created_at, p.updated_at`
	pageColumns        = `id, title, slug, static_text, created_at, updated_at`
	pageColumnsP       = `id, pg.title, pg.slug, pg.static_text, pg.created_at, pg.updated_at`
)

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanPage(row pgx.Row) (Page, error) {
	var p Page
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.StaticText, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// ListPermissions returns a page of permissions.
func (s *PGStore) ListPermissions(ctx context.Context, filter ListFilter) ([]Permission, int, error) {
	filter = filter.Normalize()
	const where = `WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')`
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM permissions `+where, filter.Search).Scan(&total); err != nil {
		return nil, 0, mapErr("count permissions", err)
	}
	rows, err := s.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions `+where+` ORDER BY id LIMIT $2 OFFSET $3`,
		filter.Search, filter.Limit, filter.Offset())
	if err != nil {
		return nil, 0, mapErr("list permissions", err)
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, 0, mapErr("scan permission", err)
		}
		perms = append(perms, perm)
	}
	return perms, total, mapErr("list permissions", rows.Err())
}

// CreatePermission inserts a permission.
func (s *PGStore) CreatePermission(ctx context.Context, name, description string) (Permission, error) {
	perm, err := scanPermission(s.pool.QueryRow(ctx, `INSERT INTO permissions (name, description)
		VALUES ($1, $2) RETURNING `+permissionColumns, name, description))
	return perm, mapErr("create permission", err)
}

// UpdatePermission edits a permission.
func (s *PGStore) UpdatePermission(ctx context.Context, id int64, name, description string) (Permission, error) {
	perm, err := scanPermission(s.pool.QueryRow(ctx, `UPDATE permissions SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1 RETURNING `+permissionColumns, id, name, description))
	return perm, mapErr("update permission", err)
}

// DeletePermission removes a permission and its role links.
func (s *PGStore) DeletePermission(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete permission", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPages returns a page of pages.
func (s *PGStore) ListPages(ctx context.Context, filter ListFilter) ([]Page, int, error) {
	filter = filter.Normalize()
	const where = `WHERE ($1 = '' OR title ILIKE '%' || $1 || '%' OR slug ILIKE '%' || $1 || '%' OR static_text ILIKE '%' || $1 || '%')`
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pages `+where, filter.Search).Scan(&total); err != nil {
		return nil, 0, mapErr("count pages", err)
	}
	rows, err := s.pool.Query(ctx, `SELECT `+pageColumns+` FROM pages `+where+` ORDER BY id LIMIT $2 OFFSET $3`,
		filter.Search, filter.Limit, filter.Offset())
	if err != nil {
		return nil, 0, mapErr("list pages", err)
	}
	defer rows.Close()
	var pages []Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, 0, mapErr("scan page", err)
		}
		pages = append(pages, page)
	}
	return pages, total, mapErr("list pages", rows.Err())
}

// FindPageByID fetches a page.
func (s *PGStore) FindPageByID(ctx context.Context, id int64) (Page, error) {
	page, err := scanPage(s.pool.QueryRow(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = $1`, id))
	return page, mapErr("find page", err)
}

// FindPageBySlug fetches a page by slug.
func (s *PGStore) FindPageBySlug(ctx context.Context, slug string) (Page, error) {
	page, err := scanPage(s.pool.QueryRow(ctx, `SELECT `+pageColumns+` FROM pages WHERE slug = $1`, slug))
	return page, mapErr("find page by slug", err)
}

// CreatePage inserts a page.
func (s *PGStore) CreatePage(ctx context.Context, page Page) (Page, error) {
	created, err := scanPage(s.pool.QueryRow(ctx, `INSERT INTO pages (title, slug, static_text)
		VALUES ($1, $2, $3) RETURNING `+pageColumns, page.Title, page.Slug, page.StaticText))
	return created, mapErr("create page", err)
}

// UpdatePage edits a page.
func (s *PGStore) UpdatePage(ctx context.Context, page Page) (Page, error) {
	updated, err := scanPage(s.pool.QueryRow(ctx, `UPDATE pages SET title = $2, slug = $3, static_text = $4, updated_at = NOW()
		WHERE id = $1 RETURNING `+pageColumns, page.ID, page.Title, page.Slug, page.StaticText))
	return updated, mapErr("update page", err)
}

// DeletePage removes a page.
func (s *PGStore) DeletePage(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pages WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete page", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SlugTaken implements UniqueSlugChecker for pages.
func (s *PGStore) SlugTaken(ctx context.Context, slug string, ignoreID int64) (bool, error) {
	var taken bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pages WHERE slug = $1 AND id <> $2)`, slug, ignoreID).Scan(&taken)
	return taken, mapErr("check page slug", err)
}
