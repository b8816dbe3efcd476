package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/bookshelf/internal/mocks"
)

func TestNewSessionReaper_Validation(t *testing.T) {
	_, err := NewSessionReaper(SessionReaperOptions{Interval: time.Minute})
	require.Error(t, err)

	ctrl := gomock.NewController(t)
	_, err = NewSessionReaper(SessionReaperOptions{Purger: mocks.NewMockSessionPurger(ctrl)})
	require.Error(t, err)
}

func TestSessionReaper_PurgeOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	purger := mocks.NewMockSessionPurger(ctrl)
	purger.EXPECT().PurgeExpired(gomock.Any()).Return(int64(3), nil)
	purger.EXPECT().PurgeExpired(gomock.Any()).Return(int64(0), errors.New("db down"))

	r, err := NewSessionReaper(SessionReaperOptions{Purger: purger, Interval: time.Minute})
	require.NoError(t, err)

	n, err := r.PurgeOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = r.PurgeOnce(context.Background())
	require.EqualError(t, err, "db down")
}

func TestSessionReaper_RunPurgesUntilCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	purger := mocks.NewMockSessionPurger(ctrl)

	var calls atomic.Int32
	purger.EXPECT().PurgeExpired(gomock.Any()).DoAndReturn(func(context.Context) (int64, error) {
		calls.Add(1)
		return 1, nil
	}).MinTimes(2)

	r, err := NewSessionReaper(SessionReaperOptions{Purger: purger, Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}
