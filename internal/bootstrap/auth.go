package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/followscope/followscope/config"
	"github.com/followscope/followscope/internal/adapters/devauth"
	"github.com/followscope/followscope/internal/adapters/oidc"
	"github.com/followscope/followscope/internal/core"
)

// BuildVerifier creates the bearer token verifier for the configured auth
// mode. Mock mode trusts the raw token as a user id and is only honoured in
// development.
//
//nolint:ireturn // the verifier implementation depends on the configured mode.
func BuildVerifier(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (core.TokenVerifier, error) {
	if cfg == nil {
		return nil, errors.New("app config is required")
	}

	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		if !cfg.IsDev {
			return nil, errors.New("mock auth mode requires development mode")
		}
		if logger != nil {
			logger.Warn("using mock token verification; tokens are trusted as user ids")
		}
		return devauth.NewVerifier(), nil

	case config.AuthModeOIDC:
		provider, err := oidc.NewProvider(ctx, oidc.ProviderOptions{Config: cfg.Auth})
		if err != nil {
			return nil, fmt.Errorf("build oidc verifier: %w", err)
		}
		return provider, nil

	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}
