// Package oidc verifies bearer ID tokens against an OIDC issuer.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/followscope/followscope/config"
	"github.com/followscope/followscope/internal/core"
)

// Provider implements core.TokenVerifier against a discovered OIDC issuer.
// The issuer's JWKS is fetched once at construction and refreshed by go-oidc
// as keys rotate.
type Provider struct {
	verifier *gooidc.IDTokenVerifier
	provider *gooidc.Provider
}

var _ core.TokenVerifier = (*Provider)(nil)

// ProviderOptions groups dependencies for Provider.
type ProviderOptions struct {
	Config config.AuthConfig // Required: issuer and audience
	// HTTPClient overrides the client used for discovery and JWKS fetches.
	HTTPClient *http.Client
}

// NewProvider runs OIDC discovery against the configured issuer.
func NewProvider(ctx context.Context, opts ProviderOptions) (*Provider, error) {
	if opts.Config.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}

	audience := opts.Config.Audience
	if audience == "" {
		audience = opts.Config.ClientID
	}
	if audience == "" {
		return nil, errors.New("audience or client ID is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	issuer := strings.TrimSuffix(opts.Config.IssuerURL, "/")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	return &Provider{
		provider: op,
		verifier: op.Verifier(&gooidc.Config{ClientID: audience}),
	}, nil
}

// idTokenClaims is the subset of claims the system cares about.
type idTokenClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	// Firebase mirrors sub into user_id; accept either.
	UserID string `json:"user_id"`
}

// Verify validates the raw token's signature, issuer, audience, and expiry,
// and returns the caller identity.
func (p *Provider) Verify(ctx context.Context, rawToken string) (core.Identity, error) {
	if rawToken == "" {
		return core.Identity{}, errors.New("empty token")
	}

	idTok, err := p.verifier.Verify(ctx, rawToken)
	if err != nil {
		return core.Identity{}, fmt.Errorf("verify token: %w", err)
	}

	var claims idTokenClaims
	if err := idTok.Claims(&claims); err != nil {
		return core.Identity{}, fmt.Errorf("parse token claims: %w", err)
	}

	userID := claims.Sub
	if userID == "" {
		userID = claims.UserID
	}
	if userID == "" {
		return core.Identity{}, errors.New("token has no subject")
	}

	return core.Identity{
		UserID: userID,
		Email:  claims.Email,
	}, nil
}
