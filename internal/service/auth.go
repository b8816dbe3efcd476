package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	domainauth "github.com/target/bookshelf/internal/domain/auth"
	apperrors "github.com/target/bookshelf/internal/errors"
	"github.com/target/bookshelf/internal/ports"
)

const (
	// DefaultSessionDuration applies when the provider does not say when the identity expires.
	DefaultSessionDuration = 8 * time.Hour
	defaultCacheSize       = 1024
	defaultCacheTTL        = 30 * time.Second
)

// ErrSessionExpired is returned by GetSession for a session past its expiry.
var ErrSessionExpired = errors.New("session expired")

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider ports.AuthProvider
	Sessions ports.SessionStore
	// Events carries auth-state changes to every tab and process. Optional.
	Events ports.AuthEventBus
	// Revoker is told when a session ends. Optional.
	Revoker ports.SessionRevoker

	CacheSize int
	CacheTTL  time.Duration
	Logger    *slog.Logger
}

// AuthService orchestrates authentication flows by coordinating provider, session persistence,
// and auth-state events. Lookups are cached briefly and collapsed per session ID.
type AuthService struct {
	provider ports.AuthProvider
	sessions ports.SessionStore
	events   ports.AuthEventBus
	revoker  ports.SessionRevoker
	logger   *slog.Logger
	now      func() time.Time

	cache     *expirable.LRU[string, domainauth.Session]
	lookups   singleflight.Group
	stopWatch func()
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	s := &AuthService{
		provider:  opts.Provider,
		sessions:  opts.Sessions,
		events:    opts.Events,
		revoker:   opts.Revoker,
		logger:    logger.With("component", "auth_service"),
		now:       time.Now,
		cache:     expirable.NewLRU[string, domainauth.Session](size, nil, ttl),
		stopWatch: func() {},
	}
	if s.events != nil {
		// Sign-outs raised by other processes must not be served from the cache.
		s.stopWatch = s.events.Subscribe("", func(ev domainauth.Event) {
			if ev.Kind != domainauth.EventSignedIn {
				s.cache.Remove(ev.SessionID)
			}
		})
	}
	return s
}

// Close stops watching the event bus.
func (s *AuthService) Close() {
	s.stopWatch()
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates an authentication flow and returns the provider auth URL with state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if redirectURL == "" {
		return nil, apperrors.ValidationField("redirect_url", "redirect URL is required")
	}

	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}

	return &BeginLoginResult{
		AuthURL: authURL,
		State:   state,
		Nonce:   nonce,
	}, nil
}

// CompleteLoginInput groups parameters for completing a login flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteLoginResult contains the result of completing a login flow.
type CompleteLoginResult struct {
	Session domainauth.Session
}

// CompleteLogin exchanges the code for an identity, persists a new session, and announces
// the sign-in.
func (s *AuthService) CompleteLogin(ctx context.Context, input CompleteLoginInput) (*CompleteLoginResult, error) {
	var errs []error
	if input.Code == "" {
		errs = append(errs, apperrors.ValidationField("code", "authorization code is required"))
	}
	if input.State == "" {
		errs = append(errs, apperrors.ValidationField("state", "state parameter is required"))
	}
	if input.Nonce == "" {
		errs = append(errs, apperrors.ValidationField("nonce", "nonce parameter is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	res, err := s.provider.Exchange(ctx, ports.ExchangeInput{
		Code:  input.Code,
		State: input.State,
		Nonce: input.Nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	identity := res.Identity
	if identity.ExpiresAt.IsZero() {
		identity.ExpiresAt = s.now().Add(DefaultSessionDuration)
	}
	session := domainauth.Session{
		ID:          uuid.NewString(),
		UserID:      identity.UserID,
		Email:       identity.Email,
		FirstName:   identity.FirstName,
		LastName:    identity.LastName,
		AccessToken: res.AccessToken,
		ExpiresAt:   identity.ExpiresAt,
	}

	if saveErr := s.sessions.Save(ctx, session); saveErr != nil {
		return nil, fmt.Errorf("save session: %w", saveErr)
	}
	s.cache.Add(session.ID, session)
	s.publish(ctx, domainauth.EventSignedIn, session.ID, session.Identity())

	return &CompleteLoginResult{Session: session}, nil
}

// GetSession retrieves a live session by ID. Expired sessions are deleted and reported as
// ErrSessionExpired.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, apperrors.ValidationField("session_id", "session ID is required")
	}

	if cached, ok := s.cache.Get(sessionID); ok && !cached.Expired(s.now()) {
		return &cached, nil
	}

	v, err, _ := s.lookups.Do(sessionID, func() (any, error) {
		return s.loadSession(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	session := v.(domainauth.Session)
	return &session, nil
}

func (s *AuthService) loadSession(ctx context.Context, sessionID string) (domainauth.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		s.cache.Remove(sessionID)
		return domainauth.Session{}, fmt.Errorf("get session: %w", err)
	}

	if session.Expired(s.now()) {
		if expireErr := s.expire(ctx, sessionID); expireErr != nil {
			return domainauth.Session{}, errors.Join(ErrSessionExpired, expireErr)
		}
		return domainauth.Session{}, ErrSessionExpired
	}

	s.cache.Add(sessionID, session)
	return session, nil
}

// Logout ends a session: the provider is told, the record deleted, and every tab notified.
// Missing sessions are not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	var errs []error
	if s.revoker != nil {
		session, err := s.sessions.Get(ctx, sessionID)
		switch {
		case err == nil:
			if revokeErr := s.revoker.Revoke(ctx, session); revokeErr != nil {
				errs = append(errs, fmt.Errorf("revoke session: %w", revokeErr))
			}
		case !apperrors.IsNotFound(err):
			errs = append(errs, fmt.Errorf("get session: %w", err))
		}
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil && !apperrors.IsNotFound(err) {
		errs = append(errs, fmt.Errorf("delete session: %w", err))
	}
	s.cache.Remove(sessionID)
	s.publish(ctx, domainauth.EventSignedOut, sessionID, domainauth.Identity{})

	return errors.Join(errs...)
}

func (s *AuthService) expire(ctx context.Context, sessionID string) error {
	s.cache.Remove(sessionID)
	if err := s.sessions.Delete(ctx, sessionID); err != nil && !apperrors.IsNotFound(err) {
		return fmt.Errorf("delete session: %w", err)
	}
	s.publish(ctx, domainauth.EventExpired, sessionID, domainauth.Identity{})
	return nil
}

func (s *AuthService) publish(ctx context.Context, kind domainauth.EventKind, sessionID string, id domainauth.Identity) {
	if s.events == nil {
		return
	}
	ev := domainauth.Event{Kind: kind, SessionID: sessionID, Identity: id, At: s.now().UTC()}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "publish auth event failed",
			"kind", kind, "session_id", sessionID, "error", err)
	}
}

// Collaborator binds the service to one browser session.
func (s *AuthService) Collaborator(sessionID string) ports.AuthCollaborator {
	return &sessionCollaborator{svc: s, sessionID: sessionID}
}

// sessionCollaborator adapts AuthService to ports.AuthCollaborator for a single session ID.
// While anyone watches, it also raises an expired event when the session lapses.
type sessionCollaborator struct {
	svc       *AuthService
	sessionID string

	mu       sync.Mutex
	watchers int
	timer    *time.Timer
}

func (c *sessionCollaborator) CurrentSession(ctx context.Context) (domainauth.Identity, error) {
	if c.sessionID == "" {
		return domainauth.Identity{}, domainauth.ErrNoSession
	}
	session, err := c.svc.GetSession(ctx, c.sessionID)
	switch {
	case err == nil:
		c.armExpiry(session.ExpiresAt)
		return session.Identity(), nil
	case errors.Is(err, ErrSessionExpired), apperrors.IsNotFound(err):
		return domainauth.Identity{}, domainauth.ErrNoSession
	default:
		return domainauth.Identity{}, err
	}
}

func (c *sessionCollaborator) OnAuthStateChange(fn func(domainauth.Event)) func() {
	// An empty ID would subscribe to every session on the bus.
	if c.sessionID == "" || c.svc.events == nil {
		return func() {}
	}
	cancel := c.svc.events.Subscribe(c.sessionID, func(ev domainauth.Event) {
		if ev.Kind == domainauth.EventSignedIn {
			c.armExpiry(ev.Identity.ExpiresAt)
		}
		fn(ev)
	})

	c.mu.Lock()
	c.watchers++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			c.mu.Lock()
			defer c.mu.Unlock()
			c.watchers--
			if c.watchers == 0 && c.timer != nil {
				c.timer.Stop()
				c.timer = nil
			}
		})
	}
}

func (c *sessionCollaborator) SignOut(ctx context.Context) error {
	return c.svc.Logout(ctx, c.sessionID)
}

func (c *sessionCollaborator) armExpiry(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watchers == 0 || at.IsZero() {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(at.Sub(c.svc.now()), func() {
		if err := c.svc.expire(context.Background(), c.sessionID); err != nil {
			c.svc.logger.Warn("expire session failed", "session_id", c.sessionID, "error", err)
		}
	})
}
