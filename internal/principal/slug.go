package principal

import (
	"context"
	"fmt"
)

// SlugKind identifies an entity type whose slugs must be unique.
type SlugKind int

const (
	// SlugKindPage selects page slugs.
	SlugKindPage SlugKind = iota + 1
)

func (k SlugKind) String() string {
	switch k {
	case SlugKindPage:
		return "page"
	default:
		return fmt.Sprintf("slugkind(%d)", int(k))
	}
}

// UniqueSlugChecker reports whether a slug is already used by another record.
// ignoreID excludes the record being updated; pass 0 on create.
type UniqueSlugChecker interface {
	SlugTaken(ctx context.Context, slug string, ignoreID int64) (bool, error)
}

// SlugRegistry selects the checker for an entity kind.
type SlugRegistry map[SlugKind]UniqueSlugChecker

// EnsureUnique returns ErrDuplicate when the slug is taken for kind.
func (r SlugRegistry) EnsureUnique(ctx context.Context, kind SlugKind, slug string, ignoreID int64) error {
	checker, ok := r[kind]
	if !ok {
		return fmt.Errorf("principal: no slug checker for %s", kind)
	}
	taken, err := checker.SlugTaken(ctx, slug, ignoreID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%s slug %q: %w", kind, slug, ErrDuplicate)
	}
	return nil
}
