// Package postgres provides the PostgreSQL session backend.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domainauth "github.com/target/bookshelf/internal/domain/auth"
	apperrors "github.com/target/bookshelf/internal/errors"
	"github.com/target/bookshelf/internal/ports"
)

var _ ports.SessionStore = (*SessionStore)(nil)

// SessionStore persists sessions in the sessions table (see internal/migrate).
// It expects a *sql.DB opened with the pgx stdlib driver.
type SessionStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionStore wraps db.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db, now: time.Now}
}

const upsertSessionSQL = `
INSERT INTO sessions (id, user_id, email, first_name, last_name, access_token, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    user_id      = EXCLUDED.user_id,
    email        = EXCLUDED.email,
    first_name   = EXCLUDED.first_name,
    last_name    = EXCLUDED.last_name,
    access_token = EXCLUDED.access_token,
    expires_at   = EXCLUDED.expires_at`

func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return apperrors.ValidationField("id", "session ID cannot be empty")
	}
	if sess.ExpiresAt.IsZero() || sess.Expired(s.now()) {
		return apperrors.ValidationField("expires_at", "session is expired")
	}
	_, err := s.db.ExecContext(ctx, upsertSessionSQL,
		sess.ID, sess.UserID, sess.Email, sess.FirstName, sess.LastName, sess.AccessToken, sess.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("save session: %w", apperrors.MapDBError(err))
	}
	return nil
}

const selectSessionSQL = `
SELECT id, user_id, email, first_name, last_name, access_token, expires_at
FROM sessions
WHERE id = $1 AND expires_at > $2`

func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, apperrors.NotFound("session not found")
	}
	var sess domainauth.Session
	err := s.db.QueryRowContext(ctx, selectSessionSQL, id, s.now().UTC()).Scan(
		&sess.ID, &sess.UserID, &sess.Email, &sess.FirstName, &sess.LastName, &sess.AccessToken, &sess.ExpiresAt)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("get session: %w", apperrors.MapDBError(err))
	}
	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", apperrors.MapDBError(err))
	}
	return nil
}

// PurgeExpired removes sessions that expired before now and reports how many were removed.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return n, nil
}
