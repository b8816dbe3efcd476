package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/bookshelf/config"
	"github.com/target/bookshelf/internal/adapters/postgres"
	redisadapter "github.com/target/bookshelf/internal/adapters/redis"
	"github.com/target/bookshelf/internal/bootstrap"
	domainauth "github.com/target/bookshelf/internal/domain/auth"
	apperrors "github.com/target/bookshelf/internal/errors"
	"github.com/target/bookshelf/internal/ports"
)

// sessionBackend is the session store selected by configuration plus the bus used to tell
// running servers about revocations.
type sessionBackend struct {
	store  ports.SessionStore
	events ports.AuthEventBus
	purger interface {
		PurgeExpired(ctx context.Context) (int64, error)
	}
	close func() error
}

func (b *sessionBackend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// openSessionBackend connects the infrastructure behind the configured session backend.
func openSessionBackend(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*sessionBackend, error) {
	infra, err := bootstrap.ConnectInfra(ctx, cfg, bootstrap.InfraOptions{Logger: logger})
	if err != nil {
		return nil, err
	}
	backend := &sessionBackend{
		events: redisadapter.NewEventBus(infra.Redis, redisadapter.EventBusOptions{
			Channel: cfg.Sessions.EventsChannel,
			Logger:  logger,
		}),
		close:  infra.Close,
	}
	if infra.DB != nil {
		store := postgres.NewSessionStore(infra.DB)
		backend.store, backend.purger = store, store
	} else {
		backend.store = redisadapter.NewSessionStore(infra.Redis, cfg.Sessions.KeyPrefix)
	}
	return backend, nil
}

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and revoke browser sessions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show SESSION_ID",
			Short: "Print a stored session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withSessions(cmd.Context(), func(b *sessionBackend) error {
					return showSession(cmd, b, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "revoke SESSION_ID",
			Short: "Delete a session and sign out every tab using it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withSessions(cmd.Context(), func(b *sessionBackend) error {
					return revokeSession(cmd, b, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "purge",
			Short: "Delete expired sessions (postgres backend)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withSessions(cmd.Context(), func(b *sessionBackend) error {
					return purgeSessions(cmd, b)
				})
			},
		},
	)
	return cmd
}

func (a *app) withSessions(ctx context.Context, fn func(*sessionBackend) error) (err error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	backend, err := a.openSessions(ctx, &cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close session backend: %w", cerr))
		}
	}()
	return fn(backend)
}

func showSession(cmd *cobra.Command, b *sessionBackend, id string) error {
	sess, err := b.store.Get(cmd.Context(), id)
	if apperrors.IsNotFound(err) {
		return fmt.Errorf("session %q not found", id)
	}
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if sess.AccessToken != "" {
		sess.AccessToken = "[redacted]"
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(sess)
}

func revokeSession(cmd *cobra.Command, b *sessionBackend, id string) error {
	ctx := cmd.Context()
	sess, err := b.store.Get(ctx, id)
	if apperrors.IsNotFound(err) {
		return fmt.Errorf("session %q not found", id)
	}
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if err := b.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if b.events != nil {
		ev := domainauth.Event{
			Kind:      domainauth.EventSignedOut,
			SessionID: id,
			Identity:  sess.Identity(),
			At:        time.Now().UTC(),
		}
		if err := b.events.Publish(ctx, ev); err != nil {
			return fmt.Errorf("session deleted but sign-out event not delivered: %w", err)
		}
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "revoked session %s (%s)\n", id, sess.Email)
	return err
}

func purgeSessions(cmd *cobra.Command, b *sessionBackend) error {
	if b.purger == nil {
		return errors.New("purge requires the postgres session backend; redis expires sessions by key TTL")
	}
	n, err := b.purger.PurgeExpired(cmd.Context())
	if err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired sessions\n", n)
	return err
}
