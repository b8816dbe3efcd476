package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/bookshelf/config"
	"github.com/target/bookshelf/internal/adapters/devauth"
	"github.com/target/bookshelf/internal/adapters/hostedauth"
	"github.com/target/bookshelf/internal/adapters/oidc"
	"github.com/target/bookshelf/internal/ports"
	"github.com/target/bookshelf/internal/service"
)

// AuthConfig contains configuration for the auth service.
type AuthConfig struct {
	Auth     config.AuthConfig
	Sessions config.SessionsConfig
	Store    ports.SessionStore
	Events   ports.AuthEventBus
	Logger   *slog.Logger
}

// BuildAuthService creates the auth service for the configured auth mode.
// Hosted auth also acknowledges sign-outs remotely.
func BuildAuthService(ctx context.Context, cfg AuthConfig) (*service.AuthService, error) {
	if cfg.Store == nil {
		return nil, errors.New("auth service requires a session store")
	}

	provider, revoker, err := buildProvider(ctx, cfg.Auth)
	if err != nil {
		return nil, err
	}
	if cfg.Logger != nil {
		cfg.Logger.Info("auth provider configured", "mode", cfg.Auth.Mode, "remote_sign_out", revoker != nil)
	}

	return service.NewAuthService(service.AuthServiceOptions{
		Provider:  provider,
		Sessions:  cfg.Store,
		Events:    cfg.Events,
		Revoker:   revoker,
		CacheSize: cfg.Sessions.CacheSize,
		CacheTTL:  cfg.Sessions.CacheTTL,
		Logger:    cfg.Logger,
	}), nil
}

//nolint:ireturn // the provider is chosen at runtime.
func buildProvider(ctx context.Context, cfg config.AuthConfig) (ports.AuthProvider, ports.SessionRevoker, error) {
	switch cfg.Mode {
	case config.AuthModeMock:
		prov, err := devauth.NewProvider(devauth.Config{
			UserID:          cfg.DevAuth.UserID,
			Email:           cfg.DevAuth.Email,
			FirstName:       cfg.DevAuth.FirstName,
			LastName:        cfg.DevAuth.LastName,
			SessionDuration: cfg.DevAuth.SessionDuration,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("dev auth provider: %w", err)
		}
		return prov, nil, nil

	case config.AuthModeHosted:
		h := cfg.Hosted
		prov, err := hostedauth.NewProvider(hostedauth.Config{
			BaseURL:     h.BaseURL,
			APIKey:      h.APIKey,
			JWTSecret:   h.JWTSecret,
			Audience:    h.Audience,
			Provider:    h.Provider,
			RedirectURL: h.RedirectURL,
			Leeway:      h.Leeway,
			Claims: hostedauth.ClaimMapping{
				UserID:    h.ClaimUserID,
				Email:     h.ClaimEmail,
				FirstName: h.ClaimFirstName,
				LastName:  h.ClaimLastName,
			},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("hosted auth provider: %w", err)
		}
		return prov, prov, nil

	case config.AuthModeOAuth:
		o := cfg.OAuth
		prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			RedirectURL:  o.RedirectURL,
			Scope:        o.Scope,
			DiscoveryURL: o.DiscoveryURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("OIDC provider: %w", err)
		}
		return prov, nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}
