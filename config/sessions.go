package config

import (
	"fmt"
	"strings"
	"time"
)

// SessionBackend selects where sessions are persisted.
type SessionBackend string

const (
	SessionBackendRedis    SessionBackend = "redis"
	SessionBackendPostgres SessionBackend = "postgres"
)

// UnmarshalText implements encoding.TextUnmarshaler for SessionBackend.
func (b *SessionBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "redis", "postgres":
		*b = SessionBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid SessionBackend: %q (valid options: redis, postgres)", v)
	}
}

const (
	defaultSessionCacheSize = 1024
	maxSessionCacheSize     = 1 << 20
	defaultSessionCacheTTL  = 30 * time.Second
	maxSessionCacheTTL      = 10 * time.Minute
	defaultEventsChannel    = "bookshelf:auth-events"
	minPurgeInterval        = time.Minute
)

// SessionsConfig controls session persistence, lookup caching, and auth event fan-out.
type SessionsConfig struct {
	Backend   SessionBackend `env:"BACKEND"    envDefault:"redis"`
	KeyPrefix string         `env:"KEY_PREFIX" envDefault:"bookshelf:session:"`

	// CacheTTL bounds how stale a cached lookup may be when no sign-out event arrives.
	CacheTTL  time.Duration `env:"CACHE_TTL"  envDefault:"30s"`
	CacheSize int           `env:"CACHE_SIZE" envDefault:"1024"`

	// EventsChannel is the Redis Pub/Sub channel carrying auth events between instances.
	EventsChannel string `env:"EVENTS_CHANNEL" envDefault:"bookshelf:auth-events"`

	// PurgeInterval is how often expired rows are deleted when sessions live in PostgreSQL.
	// Zero disables the background purge.
	PurgeInterval time.Duration `env:"PURGE_INTERVAL" envDefault:"15m"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionsConfig) Sanitize() {
	if s.Backend == "" {
		s.Backend = SessionBackendRedis
	}
	if s.CacheSize <= 0 {
		s.CacheSize = defaultSessionCacheSize
	}
	if s.CacheSize > maxSessionCacheSize {
		s.CacheSize = maxSessionCacheSize
	}
	if s.CacheTTL <= 0 {
		s.CacheTTL = defaultSessionCacheTTL
	}
	if s.CacheTTL > maxSessionCacheTTL {
		s.CacheTTL = maxSessionCacheTTL
	}
	if s.PurgeInterval < 0 {
		s.PurgeInterval = 0
	}
	if s.PurgeInterval > 0 && s.PurgeInterval < minPurgeInterval {
		s.PurgeInterval = minPurgeInterval
	}
	if s.EventsChannel = strings.TrimSpace(s.EventsChannel); s.EventsChannel == "" {
		s.EventsChannel = defaultEventsChannel
	}
}
