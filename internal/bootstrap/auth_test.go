package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/bookshelf/config"
	"github.com/target/bookshelf/internal/adapters/events"
	mockauth "github.com/target/bookshelf/internal/mocks/auth"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func devAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		Mode: config.AuthModeMock,
		DevAuth: config.DevAuthConfig{
			UserID: "dev-student",
			Email:  "student@example.edu",
		},
	}
}

func TestBuildAuthService_DevMode(t *testing.T) {
	svc, err := BuildAuthService(context.Background(), AuthConfig{
		Auth:   devAuthConfig(),
		Store:  mockauth.NewMemorySessionStore(),
		Events: events.NewLocalBus(discardLogger()),
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	require.NotNil(t, svc)
	t.Cleanup(svc.Close)

	begin, err := svc.BeginLogin(context.Background(), "/my-books")
	require.NoError(t, err)
	assert.NotEmpty(t, begin.State)
}

func TestBuildAuthService_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AuthConfig
		wantErr string
	}{
		{
			name:    "missing store",
			cfg:     AuthConfig{Auth: devAuthConfig()},
			wantErr: "session store",
		},
		{
			name: "dev mode without email",
			cfg: AuthConfig{
				Auth:  config.AuthConfig{Mode: config.AuthModeMock, DevAuth: config.DevAuthConfig{UserID: "dev"}},
				Store: mockauth.NewMemorySessionStore(),
			},
			wantErr: "dev auth provider",
		},
		{
			name: "hosted mode without settings",
			cfg: AuthConfig{
				Auth:  config.AuthConfig{Mode: config.AuthModeHosted},
				Store: mockauth.NewMemorySessionStore(),
			},
			wantErr: "hosted auth provider",
		},
		{
			name: "unsupported mode",
			cfg: AuthConfig{
				Auth:  config.AuthConfig{Mode: config.AuthMode("ldap")},
				Store: mockauth.NewMemorySessionStore(),
			},
			wantErr: "unsupported auth mode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := BuildAuthService(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
