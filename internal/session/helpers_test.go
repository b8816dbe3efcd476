package session

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	domainauth "github.com/target/bookshelf/internal/domain/auth"
)

var (
	ada   = domainauth.Identity{UserID: "u-ada", Email: "ada@uni.edu"}
	grace = domainauth.Identity{UserID: "u-grace", Email: "grace@uni.edu"}
)

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *logBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *logBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func testLogger(buf *logBuffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// recorder collects states delivered to a subscriber.
type recorder struct {
	mu     sync.Mutex
	states []domainauth.State
}

func (r *recorder) record(s domainauth.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) got() []domainauth.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domainauth.State, len(r.states))
	copy(out, r.states)
	return out
}

func waitReady(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("store did not resolve")
	}
}
