package oidc

import (
	"context"
	"errors"
	"fmt"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/weiawesome/focus-room/internal/config"
	pkglog "github.com/weiawesome/focus-room/pkg/log"
)

var ErrMissingIDToken = errors.New("token response has no id_token")

// Identity is the subset of ID token claims used to find or create a user.
type Identity struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// Provider runs the authorization code flow against one issuer.
type Provider struct {
	oauth2Config *oauth2.Config
	verifier     *gooidc.IDTokenVerifier
}

// NewProvider discovers the issuer's endpoints.
func NewProvider(ctx context.Context, cfg config.OIDCConfig) (*Provider, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	provider, err := gooidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{gooidc.ScopeOpenID, "profile", "email"},
	}

	logger := pkglog.L()
	logger.Info().
		Str("issuer", cfg.IssuerURL).
		Str("auth_endpoint", provider.Endpoint().AuthURL).
		Str("token_endpoint", provider.Endpoint().TokenURL).
		Msg("OIDC provider discovered and configured")

	return &Provider{
		oauth2Config: oauth2Config,
		verifier:     provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// AuthCodeURL returns the authorization URL for state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// Authenticate exchanges code for tokens and returns the verified identity.
func (p *Provider) Authenticate(ctx context.Context, code string) (*Identity, error) {
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, ErrMissingIDToken
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}

	var identity Identity
	if err := idToken.Claims(&identity); err != nil {
		return nil, fmt.Errorf("failed to parse id token claims: %w", err)
	}
	identity.Subject = idToken.Subject
	return &identity, nil
}
