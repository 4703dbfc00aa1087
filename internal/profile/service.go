// Package profile lets an authenticated user read and edit their own account.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/rbacadmin/internal/auth"
	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/shared"
)

// ErrWrongPassword indicates the supplied current password did not match.
var ErrWrongPassword = fmt.Errorf("current password is incorrect: %w", shared.ErrValidation)

// Profile is the caller's own account view.
type Profile struct {
	ID          int64   `json:"id"`
	Email       string  `json:"email"`
	Username    *string `json:"username,omitempty"`
	Name        string  `json:"name"`
	Image       string  `json:"image,omitempty"`
	HasPassword bool    `json:"hasPassword"`
	Verified    bool    `json:"emailVerified"`
}

func fromPrincipal(u principal.User) Profile {
	return Profile{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		Name:        u.Name,
		Image:       u.Image,
		HasPassword: u.HasPassword(),
		Verified:    u.EmailVerified != nil,
	}
}

// Update carries optional changes. A password change needs both fields.
type Update struct {
	Name            *string
	Username        *string
	Image           *string
	CurrentPassword string
	NewPassword     string
}

// PasswordChanged reports whether the update sets a new password.
func (u Update) PasswordChanged() bool {
	return u.NewPassword != ""
}

// Service handles profile reads and edits.
type Service struct {
	users principal.UserStore
}

// NewService builds Service instance.
func NewService(users principal.UserStore) *Service {
	return &Service{users: users}
}

// Get returns the caller's profile.
func (s *Service) Get(ctx context.Context, userID int64) (Profile, error) {
	u, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return fromPrincipal(u), nil
}

// Update applies in to the caller's account. Accounts that sign in only
// through a linked provider cannot set a password here.
func (s *Service) Update(ctx context.Context, userID int64, in Update) (Profile, error) {
	u, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	change := principal.ProfileUpdate{Name: trimmed(in.Name), Username: trimmed(in.Username), Image: trimmed(in.Image)}
	if in.PasswordChanged() {
		if !u.HasPassword() {
			return Profile{}, fmt.Errorf("profile: %w: %w", auth.ErrPasswordUnsupported, shared.ErrValidation)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.CurrentPassword)); err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return Profile{}, ErrWrongPassword
			}
			return Profile{}, fmt.Errorf("profile: compare password: %w", err)
		}
		hash, err := auth.HashPassword(in.NewPassword)
		if err != nil {
			return Profile{}, err
		}
		change.PasswordHash = &hash
	}
	updated, err := s.users.UpdateProfile(ctx, userID, change)
	if err != nil {
		return Profile{}, err
	}
	return fromPrincipal(updated), nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
