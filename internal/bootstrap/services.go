package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/bookshelf/config"
	"github.com/target/bookshelf/internal/adapters/events"
	"github.com/target/bookshelf/internal/adapters/postgres"
	"github.com/target/bookshelf/internal/adapters/reaper"
	redisadapter "github.com/target/bookshelf/internal/adapters/redis"
	"github.com/target/bookshelf/internal/domain/nav"
	httpx "github.com/target/bookshelf/internal/http"
	"github.com/target/bookshelf/internal/observability/statsd"
	"github.com/target/bookshelf/internal/ports"
	"github.com/target/bookshelf/internal/service"
	"github.com/target/bookshelf/internal/session"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Navigation nav.Table
	Sessions   ports.SessionStore
	Events     ports.AuthEventBus
	Auth       *service.AuthService
	Hub        *session.Hub
	// Reaper purges expired sessions; nil unless sessions live in PostgreSQL.
	Reaper *reaper.Runner

	closers []func() error
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	// DB is only required when sessions are stored in PostgreSQL.
	DB *sql.DB
	// RedisClient carries sessions and auth events between instances. Without it events stay
	// in-process.
	RedisClient redis.UniversalClient
	Metrics     statsd.Sink
	Logger      *slog.Logger
}

// NewServices wires the navigation table, session persistence, auth event fan-out,
// the auth service, and the session hub.
func NewServices(ctx context.Context, deps ServiceDeps) (*ServiceContainer, error) {
	if deps.Config == nil {
		return nil, errors.New("services require configuration")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	table, err := config.LoadNavigation(cfg.Navigation)
	if err != nil {
		return nil, fmt.Errorf("load navigation: %w", err)
	}

	store, err := BuildSessionStore(cfg.Sessions, deps.RedisClient, deps.DB)
	if err != nil {
		return nil, err
	}

	c := &ServiceContainer{Navigation: table, Sessions: store}

	bus, err := c.buildEventBus(ctx, cfg.Sessions, deps.RedisClient, logger)
	if err != nil {
		return nil, err
	}
	c.Events = bus

	svc, err := BuildAuthService(ctx, AuthConfig{
		Auth:     cfg.Auth,
		Sessions: cfg.Sessions,
		Store:    store,
		Events:   bus,
		Logger:   logger,
	})
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Auth = svc
	c.closers = append(c.closers, func() error { svc.Close(); return nil })

	c.Hub = session.NewHub(session.HubOptions{
		Collaborators: svc.Collaborator,
		Store: session.Options{
			Logger:         logger,
			Metrics:        deps.Metrics,
			SignOutTimeout: cfg.Auth.SignOutTimeout,
		},
	})
	c.closers = append(c.closers, func() error { c.Hub.Close(); return nil })

	if cfg.Sessions.Backend == config.SessionBackendPostgres && cfg.Sessions.PurgeInterval > 0 {
		runner, err := reaper.NewRunner(reaper.RunnerOptions{
			DB:       deps.DB,
			Interval: cfg.Sessions.PurgeInterval,
			Logger:   logger,
			Metrics:  deps.Metrics,
		})
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.Reaper = runner
	}

	logger.Info("services initialized",
		"nav_entries", len(table.Entries()),
		"session_backend", cfg.Sessions.Backend,
		"auth_mode", cfg.Auth.Mode,
	)
	return c, nil
}

func (c *ServiceContainer) buildEventBus(
	ctx context.Context,
	cfg config.SessionsConfig,
	client redis.UniversalClient,
	logger *slog.Logger,
) (ports.AuthEventBus, error) {
	if client == nil {
		logger.Warn("redis not configured; auth events stay within this instance")
		return events.NewLocalBus(logger), nil
	}
	bus := redisadapter.NewEventBus(client, redisadapter.EventBusOptions{
		Channel: cfg.EventsChannel,
		Logger:  logger,
	})
	if err := bus.Start(ctx); err != nil {
		return nil, fmt.Errorf("start auth event bus: %w", err)
	}
	c.closers = append(c.closers, bus.Close)
	return bus, nil
}

// Close releases services in reverse order of construction.
func (c *ServiceContainer) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// BuildSessionStore selects the session persistence backend.
//
//nolint:ireturn // the backend is chosen from configuration.
func BuildSessionStore(cfg config.SessionsConfig, client redis.UniversalClient, db *sql.DB) (ports.SessionStore, error) {
	switch cfg.Backend {
	case config.SessionBackendPostgres:
		if db == nil {
			return nil, errors.New("postgres session backend requires a database connection")
		}
		return postgres.NewSessionStore(db), nil
	case config.SessionBackendRedis, "":
		if client == nil {
			return nil, errors.New("redis session backend requires a redis client")
		}
		return redisadapter.NewSessionStore(client, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported session backend %q", cfg.Backend)
	}
}

// HealthChecks builds the dependency probes served by /healthz.
func HealthChecks(db *sql.DB, client redis.UniversalClient) map[string]httpx.HealthCheck {
	checks := make(map[string]httpx.HealthCheck)
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	return checks
}

// ServiceOrchestrationConfig contains configuration for running services.
type ServiceOrchestrationConfig struct {
	Config       *config.AppConfig
	Services     *ServiceContainer
	Metrics      statsd.Sink
	HealthChecks map[string]httpx.HealthCheck
	Logger       *slog.Logger
}

// RunServicesWithShutdown serves HTTP until SIGINT or SIGTERM, then shuts the server down.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := NewHTTPServer(&HTTPServerConfig{
		Config:       cfg.Config,
		Services:     cfg.Services,
		Metrics:      cfg.Metrics,
		HealthChecks: cfg.HealthChecks,
		Logger:       cfg.Logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cfg.Logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	if runner := cfg.Services.Reaper; runner != nil {
		g.Go(func() error { return runner.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		cfg.Logger.Info("shutdown signal received")
		return ShutdownHTTPServer(ShutdownConfig{
			Server:  server,
			Timeout: cfg.Config.HTTP.ShutdownTimeout,
			Logger:  cfg.Logger,
		})
	})

	return g.Wait()
}
