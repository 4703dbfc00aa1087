package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/rbac"
)

// DefaultTokenTTL is the lifetime of reset and verification tokens.
const DefaultTokenTTL = 5 * time.Minute

// Mailer queues outbound mail.
type Mailer interface {
	Enqueue(ctx context.Context, mail Mail) error
}

// Store is the slice of the principal store the auth flows need.
type Store interface {
	principal.UserStore
	principal.AuthorizationLoader
	FindDefaultRole(ctx context.Context) (principal.Role, error)
}

// Config tunes the auth flows.
type Config struct {
	BaseURL  string
	TokenTTL time.Duration
}

// Service wraps authentication business rules.
type Service struct {
	store    Store
	tokens   TokenStore
	mailer   Mailer
	verifier *Verifier
	builder  *rbac.Builder
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// NewService constructs a new Service.
func NewService(store Store, tokens TokenStore, mailer Mailer, logger *slog.Logger, cfg Config) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	builder := rbac.NewBuilder(store)
	return &Service{
		store:    store,
		tokens:   tokens,
		mailer:   mailer,
		verifier: NewVerifier(store, builder),
		builder:  builder,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Login verifies credentials and returns the identity with a fresh snapshot.
func (s *Service) Login(ctx context.Context, email, password string) (Identity, error) {
	return s.verifier.Verify(ctx, email, password)
}

// Register creates a password account holding the current default role and
// queues the verification mail. The account is removed again when the mail
// cannot be queued.
func (s *Service) Register(ctx context.Context, in RegisterInput) (principal.User, error) {
	email := principal.NormalizeEmail(in.Email)
	if _, err := s.store.FindUserByEmail(ctx, email); err == nil {
		return principal.User{}, ErrEmailTaken
	} else if !errors.Is(err, principal.ErrNotFound) {
		return principal.User{}, fmt.Errorf("auth: lookup email: %w", err)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return principal.User{}, err
	}
	roleID, err := s.defaultRoleID(ctx)
	if err != nil {
		return principal.User{}, err
	}
	user, err := s.store.CreateUser(ctx, principal.NewUser{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		RoleID:       roleID,
	})
	if err != nil {
		if errors.Is(err, principal.ErrDuplicate) {
			return principal.User{}, ErrEmailTaken
		}
		return principal.User{}, fmt.Errorf("auth: create user: %w", err)
	}

	raw, err := s.issueToken(ctx, email, PurposeEmailVerification)
	if err == nil {
		err = s.mailer.Enqueue(ctx, Mail{Kind: MailVerifyEmail, To: email, Name: user.Name, Link: s.link("/verify-email", raw)})
	}
	if err != nil {
		s.logger.Error("registration mail", slog.String("email", email), slog.Any("error", err))
		if delErr := s.store.DeleteUser(ctx, user.ID); delErr != nil {
			s.logger.Error("registration rollback", slog.Int64("user_id", user.ID), slog.Any("error", delErr))
		}
		_ = s.tokens.DeleteForIdentifier(ctx, email, PurposeEmailVerification)
		return principal.User{}, ErrMailUnavailable
	}
	return user, nil
}

func (s *Service) defaultRoleID(ctx context.Context) (*int64, error) {
	role, err := s.store.FindDefaultRole(ctx)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			s.logger.Warn("no default role configured; new user gets no role")
			return nil, nil
		}
		return nil, fmt.Errorf("auth: find default role: %w", err)
	}
	return &role.ID, nil
}

// VerifyEmail consumes an email verification token and marks the address verified.
func (s *Service) VerifyEmail(ctx context.Context, raw string) error {
	tok, err := s.consume(ctx, PurposeEmailVerification, raw)
	if err != nil {
		return err
	}
	user, err := s.store.FindUserByEmail(ctx, tok.Identifier)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("auth: find user: %w", err)
	}
	if err := s.store.MarkEmailVerified(ctx, user.ID, s.now().UTC()); err != nil {
		return fmt.Errorf("auth: mark verified: %w", err)
	}
	return nil
}

// ForgotPassword queues a reset link. Unknown and inactive addresses succeed
// silently so the response does not reveal which accounts exist.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = principal.NormalizeEmail(email)
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("auth: find user: %w", err)
	}
	if !user.Active() {
		return nil
	}
	if !user.HasPassword() {
		return ErrPasswordUnsupported
	}
	raw, err := s.issueToken(ctx, email, PurposePasswordReset)
	if err != nil {
		return err
	}
	name := user.Name
	if name == "" {
		name = "User"
	}
	if err := s.mailer.Enqueue(ctx, Mail{Kind: MailPasswordReset, To: email, Name: name, Link: s.link("/reset-password", raw)}); err != nil {
		s.logger.Error("reset mail", slog.String("email", email), slog.Any("error", err))
		return ErrMailUnavailable
	}
	return nil
}

// CheckResetToken validates a reset token without consuming it. An expired
// token is deleted on detection.
func (s *Service) CheckResetToken(ctx context.Context, raw string) error {
	hash := HashToken(raw)
	tok, err := s.tokens.Find(ctx, PurposePasswordReset, hash)
	if err != nil {
		return err
	}
	if tok.Expired(s.now()) {
		if err := s.tokens.Delete(ctx, PurposePasswordReset, hash); err != nil {
			s.logger.Error("delete expired token", slog.Any("error", err))
		}
		return ErrTokenExpired
	}
	return nil
}

// ResetPassword consumes a reset token and stores the new password hash.
func (s *Service) ResetPassword(ctx context.Context, raw, password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	tok, err := s.consume(ctx, PurposePasswordReset, raw)
	if err != nil {
		return err
	}
	user, err := s.store.FindUserByEmail(ctx, tok.Identifier)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("auth: find user: %w", err)
	}
	if !user.HasPassword() {
		return ErrPasswordUnsupported
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := s.store.UpdateProfile(ctx, user.ID, principal.ProfileUpdate{PasswordHash: &hash}); err != nil {
		return fmt.Errorf("auth: update password: %w", err)
	}
	return nil
}

// FederatedSignIn admits a user asserted by an external provider. Existing
// disabled or deleted accounts are refused; new accounts get the default role
// and no password.
func (s *Service) FederatedSignIn(ctx context.Context, profile FederatedProfile) (Identity, error) {
	email := principal.NormalizeEmail(profile.Email)
	if email == "" || !profile.EmailVerified {
		return Identity{}, fail(ReasonEmailNotVerified)
	}
	now := s.now().UTC()
	user, err := s.store.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		if user.IsDisabled {
			return Identity{}, fail(ReasonAccountDisabled)
		}
		if user.IsDeleted {
			return Identity{}, fail(ReasonAccountDeleted)
		}
		if user.EmailVerified == nil {
			if err := s.store.MarkEmailVerified(ctx, user.ID, now); err != nil {
				return Identity{}, fmt.Errorf("auth: mark verified: %w", err)
			}
		}
	case errors.Is(err, principal.ErrNotFound):
		roleID, err := s.defaultRoleID(ctx)
		if err != nil {
			return Identity{}, err
		}
		user, err = s.store.CreateUser(ctx, principal.NewUser{
			Email:         email,
			Name:          profile.Name,
			Image:         profile.Image,
			EmailVerified: &now,
			RoleID:        roleID,
		})
		if err != nil {
			return Identity{}, fmt.Errorf("auth: create federated user: %w", err)
		}
	default:
		return Identity{}, fmt.Errorf("auth: find user: %w", err)
	}

	p, err := s.builder.Resolve(ctx, user.ID)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: resolve principal: %w", err)
	}
	return Identity{User: p.User, Snapshot: p.Snapshot}, nil
}

// consume removes the token and rejects it when it had already expired.
func (s *Service) consume(ctx context.Context, purpose Purpose, raw string) (VerificationToken, error) {
	if raw == "" {
		return VerificationToken{}, ErrTokenInvalid
	}
	tok, err := s.tokens.Consume(ctx, purpose, HashToken(raw))
	if err != nil {
		return VerificationToken{}, err
	}
	if tok.Expired(s.now()) {
		return VerificationToken{}, ErrTokenExpired
	}
	return tok, nil
}

func (s *Service) issueToken(ctx context.Context, identifier string, purpose Purpose) (string, error) {
	raw, err := NewRawToken()
	if err != nil {
		return "", err
	}
	err = s.tokens.Replace(ctx, VerificationToken{
		Identifier: identifier,
		Purpose:    purpose,
		TokenHash:  HashToken(raw),
		Expires:    s.now().Add(s.cfg.TokenTTL),
	})
	if err != nil {
		return "", fmt.Errorf("auth: store token: %w", err)
	}
	return raw, nil
}

func (s *Service) link(path, raw string) string {
	return strings.TrimSuffix(s.cfg.BaseURL, "/") + path + "?" + url.Values{"token": {raw}}.Encode()
}
