package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	// Register the pgx database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/target/bookshelf/config"
	"github.com/target/bookshelf/internal/migrate"
)

const (
	defaultConnectTimeout = 5 * time.Second

	dbMaxOpenConns    = 25
	dbMaxIdleConns    = 5
	dbConnMaxLifetime = 5 * time.Minute
)

// Infra holds the external stores the service talks to.
type Infra struct {
	// Redis carries session events and, for the redis backend, the sessions themselves.
	Redis redis.UniversalClient
	// DB is nil unless sessions are stored in PostgreSQL.
	DB *sql.DB
}

// InfraOptions controls ConnectInfra.
type InfraOptions struct {
	Logger *slog.Logger
	// Migrate applies pending migrations when a database is connected and
	// Postgres.RunMigrationsOnStart allows it.
	Migrate bool
	// Timeout bounds each connection check. Defaults to 5s.
	Timeout time.Duration
}

// ConnectInfra connects Redis and, when the session backend needs it, PostgreSQL. Anything
// already connected is closed again when a later step fails.
func ConnectInfra(ctx context.Context, cfg *config.AppConfig, opts InfraOptions) (*Infra, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	client, err := connectRedis(ctx, cfg.Redis, timeout, logger)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	infra := &Infra{Redis: client}
	if !cfg.NeedsPostgres() {
		return infra, nil
	}

	infra.DB, err = connectPostgres(ctx, cfg.Postgres, timeout, logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("connect db: %w", err), infra.Close())
	}

	switch {
	case !opts.Migrate:
	case !cfg.Postgres.RunMigrationsOnStart:
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	default:
		if err := migrate.Run(ctx, infra.DB); err != nil {
			return nil, errors.Join(fmt.Errorf("run migrations: %w", err), infra.Close())
		}
		logger.InfoContext(ctx, "database migrations completed")
	}
	return infra, nil
}

// Close closes every connected store.
func (i *Infra) Close() error {
	if i == nil {
		return nil
	}
	var errs []error
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

//nolint:ireturn // sentinel and direct clients share redis.UniversalClient.
func connectRedis(
	ctx context.Context,
	cfg config.RedisConfig,
	timeout time.Duration,
	logger *slog.Logger,
) (redis.UniversalClient, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if cerr := client.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close redis client: %w", cerr))
		}
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.InfoContext(ctx, "redis connected", "target", redisTarget(opts))
	return client, nil
}

// redisOptions maps the config onto go-redis options. URI is either host:port or a
// redis:// or rediss:// URL; a password in the URL wins over Password.
func redisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, error) {
	if cfg.UseSentinel {
		if len(cfg.SentinelNodes) == 0 {
			return nil, errors.New("redis sentinel mode requires at least one sentinel node")
		}
		if cfg.SentinelMasterName == "" {
			return nil, errors.New("redis sentinel mode requires a master name")
		}
		return &redis.UniversalOptions{
			Addrs:            cfg.SentinelNodes,
			MasterName:       cfg.SentinelMasterName,
			Password:         cfg.Password,
			SentinelPassword: cfg.SentinelPassword,
			DB:               cfg.DB,
		}, nil
	}

	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, errors.New("redis direct mode requires a URI")
	}
	if !strings.Contains(uri, "://") {
		return &redis.UniversalOptions{Addrs: []string{uri}, Password: cfg.Password, DB: cfg.DB}, nil
	}

	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri: %w", err)
	}
	password := parsed.Password
	if password == "" {
		password = cfg.Password
	}
	return &redis.UniversalOptions{
		Addrs:     []string{parsed.Addr},
		Username:  parsed.Username,
		Password:  password,
		DB:        parsed.DB,
		TLSConfig: parsed.TLSConfig,
	}, nil
}

// redisTarget describes where opts point, without credentials.
func redisTarget(opts *redis.UniversalOptions) string {
	if opts.MasterName != "" {
		return "sentinel:" + opts.MasterName
	}
	return strings.Join(opts.Addrs, ",")
}

func connectPostgres(ctx context.Context, cfg config.DBConfig, timeout time.Duration, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(dbMaxOpenConns)
	db.SetMaxIdleConns(dbMaxIdleConns)
	db.SetConnMaxLifetime(dbConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", cerr))
		}
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.InfoContext(ctx, "database connected", "host", cfg.Host, "port", cfg.Port, "database", cfg.Name)
	return db, nil
}
