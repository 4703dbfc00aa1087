// Package pages manages slugged UI route descriptors and serves them to
// dashboards that hold the matching page grant.
package pages

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/shared"
)

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	slugReplacer = regexp.MustCompile(`[^a-z0-9]+`)

	// ErrInvalidSlug rejects slugs outside lowercase words joined by hyphens.
	ErrInvalidSlug = fmt.Errorf("slug must be lowercase letters, digits and hyphens: %w", shared.ErrValidation)
)

// Page is the admin view of a page descriptor.
type Page struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Slug       string    `json:"slug"`
	StaticText string    `json:"staticText,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func fromPrincipal(p principal.Page) Page {
	return Page{ID: p.ID, Title: p.Title, Slug: p.Slug, StaticText: p.StaticText, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}
}

// Input carries page attributes. An empty slug is derived from the title.
type Input struct {
	Title      string
	Slug       string
	StaticText string
}

// Store is the catalogue subset for pages.
type Store interface {
	ListPages(ctx context.Context, filter principal.ListFilter) ([]principal.Page, int, error)
	FindPageByID(ctx context.Context, id int64) (principal.Page, error)
	FindPageBySlug(ctx context.Context, slug string) (principal.Page, error)
	CreatePage(ctx context.Context, page principal.Page) (principal.Page, error)
	UpdatePage(ctx context.Context, page principal.Page) (principal.Page, error)
	DeletePage(ctx context.Context, id int64) error
}

// Service handles page business logic.
type Service struct {
	store Store
	slugs principal.SlugRegistry
}

// NewService builds Service instance.
func NewService(store Store, slugs principal.SlugRegistry) *Service {
	return &Service{store: store, slugs: slugs}
}

// List returns one page of page descriptors.
func (s *Service) List(ctx context.Context, filter principal.ListFilter) ([]Page, int, error) {
	rows, total, err := s.store.ListPages(ctx, filter.Normalize())
	if err != nil {
		return nil, 0, err
	}
	out := make([]Page, 0, len(rows))
	for _, p := range rows {
		out = append(out, fromPrincipal(p))
	}
	return out, total, nil
}

// Get returns a page by id.
func (s *Service) Get(ctx context.Context, id int64) (Page, error) {
	p, err := s.store.FindPageByID(ctx, id)
	if err != nil {
		return Page{}, err
	}
	return fromPrincipal(p), nil
}

// BySlug returns a page by slug.
func (s *Service) BySlug(ctx context.Context, slug string) (Page, error) {
	p, err := s.store.FindPageBySlug(ctx, slug)
	if err != nil {
		return Page{}, err
	}
	return fromPrincipal(p), nil
}

// Create adds a page after checking the slug is free.
func (s *Service) Create(ctx context.Context, in Input) (Page, error) {
	page, err := s.prepare(ctx, 0, in)
	if err != nil {
		return Page{}, err
	}
	created, err := s.store.CreatePage(ctx, page)
	if err != nil {
		return Page{}, err
	}
	return fromPrincipal(created), nil
}

// Update replaces a page's attributes.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Page, error) {
	if _, err := s.store.FindPageByID(ctx, id); err != nil {
		return Page{}, err
	}
	page, err := s.prepare(ctx, id, in)
	if err != nil {
		return Page{}, err
	}
	page.ID = id
	updated, err := s.store.UpdatePage(ctx, page)
	if err != nil {
		return Page{}, err
	}
	return fromPrincipal(updated), nil
}

// Delete removes a page and its role grants.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeletePage(ctx, id)
}

func (s *Service) prepare(ctx context.Context, id int64, in Input) (principal.Page, error) {
	title := strings.TrimSpace(in.Title)
	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		slug = Slugify(title)
	}
	if !slugPattern.MatchString(slug) {
		return principal.Page{}, ErrInvalidSlug
	}
	if err := s.slugs.EnsureUnique(ctx, principal.SlugKindPage, slug, id); err != nil {
		return principal.Page{}, err
	}
	return principal.Page{Title: title, Slug: slug, StaticText: strings.TrimSpace(in.StaticText)}, nil
}

// Slugify lowercases title and joins its words with hyphens.
func Slugify(title string) string {
	lower := cases.Lower(language.Und).String(title)
	return strings.Trim(slugReplacer.ReplaceAllString(lower, "-"), "-")
}
