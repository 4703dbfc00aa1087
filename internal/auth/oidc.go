package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ErrFederatedExchange indicates the provider callback could not be completed.
var ErrFederatedExchange = errors.New("auth: federated exchange failed")

// FederatedProvider drives an authorization-code login against an external IdP.
type FederatedProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (FederatedProfile, error)
}

// OIDCConfig configures an OpenID Connect provider.
type OIDCConfig struct {
	Name         string
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// OIDCProvider implements FederatedProvider with OpenID Connect discovery.
type OIDCProvider struct {
	name     string
	verifier *oidc.IDTokenVerifier
	oauth2   *oauth2.Config
}

// NewOIDCProvider discovers the issuer and prepares the code exchange.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("auth: discover oidc provider: %w", err)
	}
	name := cfg.Name
	if name == "" {
		name = "oidc"
	}
	return &OIDCProvider{
		name:     name,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
	}, nil
}

// Name returns the provider label recorded on the profile.
func (p *OIDCProvider) Name() string { return p.name }

// AuthCodeURL returns the authorization endpoint URL for state.
func (p *OIDCProvider) AuthCodeURL(state string) string {
	return p.oauth2.AuthCodeURL(state)
}

// Exchange trades the code for an ID token and maps its claims.
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (FederatedProfile, error) {
	if code == "" {
		return FederatedProfile{}, fmt.Errorf("%w: missing authorization code", ErrFederatedExchange)
	}
	tok, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return FederatedProfile{}, fmt.Errorf("%w: %v", ErrFederatedExchange, err)
	}
	rawID, ok := tok.Extra("id_token").(string)
	if !ok {
		return FederatedProfile{}, fmt.Errorf("%w: missing id_token", ErrFederatedExchange)
	}
	idToken, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return FederatedProfile{}, fmt.Errorf("%w: %v", ErrFederatedExchange, err)
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return FederatedProfile{}, fmt.Errorf("%w: %v", ErrFederatedExchange, err)
	}
	return FederatedProfile{
		Provider:      p.name,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Image:         claims.Picture,
	}, nil
}
