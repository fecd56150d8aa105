package lock_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/memgen-go/internal/lock"
	"github.com/raphaelgruber/memgen-go/internal/models"
	"github.com/raphaelgruber/memgen-go/internal/store"
)

func newCoordinator(t *testing.T) *lock.Coordinator {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := store.NewFileStore(filepath.Join(t.TempDir(), "state.json"), log)
	require.NoError(t, err)
	return lock.NewCoordinator(gw, 0, log)
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(t)
	scope := models.ScopeKey{Service: "profile", ScopeID: "user-1"}

	acq, err := c.Acquire(ctx, scope, "r1")
	require.NoError(t, err)
	assert.True(t, acq.Acquired)

	pending, err := c.Release(ctx, scope, "r1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	state, err := c.Read(ctx, scope)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.False(t, state.InProgress)
}

func TestAcquire_SecondCallerEnqueued(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(t)
	scope := models.ScopeKey{Service: "profile", ScopeID: "user-1"}

	_, err := c.Acquire(ctx, scope, "r1")
	require.NoError(t, err)

	acq, err := c.Acquire(ctx, scope, "r2")
	require.NoError(t, err)
	assert.False(t, acq.Acquired)

	pending, err := c.RunPending(ctx, scope)
	require.NoError(t, err)
	assert.True(t, pending)

	// Releasing the holder hands the lock to the queued request
	next, err := c.Release(ctx, scope, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r2", next)
}

func TestRelease_NotHolder(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(t)
	scope := models.ScopeKey{Service: "profile", ScopeID: "user-1"}

	_, err := c.Acquire(ctx, scope, "r1")
	require.NoError(t, err)

	_, err = c.Release(ctx, scope, "r2")
	assert.ErrorIs(t, err, store.ErrLockNotHeld)
}

func TestClear_DiscardsPending(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(t)
	scope := models.ScopeKey{Service: "profile", ScopeID: "user-1"}

	_, err := c.Acquire(ctx, scope, "r1")
	require.NoError(t, err)
	_, err = c.Acquire(ctx, scope, "r2")
	require.NoError(t, err)

	require.NoError(t, c.Clear(ctx, scope))

	pending, err := c.RunPending(ctx, scope)
	require.NoError(t, err)
	assert.False(t, pending)

	state, err := c.Read(ctx, scope)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.False(t, state.InProgress)
}

func TestScopeKeyString(t *testing.T) {
	assert.Equal(t, "profile", models.ScopeKey{Service: "profile"}.String())
	assert.Equal(t, "profile:user-1", models.ScopeKey{Service: "profile", ScopeID: "user-1"}.String())
}

func TestLockStateStale(t *testing.T) {
	now := time.Now()
	l := models.LockState{InProgress: true, StartedAt: now.Add(-20 * time.Minute)}
	assert.True(t, l.Stale(now, 15*time.Minute))

	l.StartedAt = now.Add(-10 * time.Minute)
	assert.False(t, l.Stale(now, 15*time.Minute))

	// A released lock is never stale regardless of age
	l = models.LockState{InProgress: false, StartedAt: now.Add(-24 * time.Hour)}
	assert.False(t, l.Stale(now, 15*time.Minute))
}
