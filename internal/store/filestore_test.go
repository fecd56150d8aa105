package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/memgen-go/internal/models"
)

const testStaleAfter = 15 * time.Minute

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"), nil)
	require.NoError(t, err)
	return s
}

// =============================================================================
// LOCK TESTS
// =============================================================================

func TestTryAcquireLock_AbsentAcquires(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	acq, err := s.TryAcquireLock(ctx, "profile:user-1", "r1", testStaleAfter)
	require.NoError(t, err)
	assert.True(t, acq.Acquired)
	assert.Equal(t, "r1", acq.State.CurrentRequestID)
	assert.True(t, acq.State.InProgress)
}

func TestTryAcquireLock_HeldKeepsLatestPendingOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	acq, err := s.TryAcquireLock(ctx, "profile:user-1", "r1", testStaleAfter)
	require.NoError(t, err)
	require.True(t, acq.Acquired)

	// Second request is enqueued, not acquired
	acq, err = s.TryAcquireLock(ctx, "profile:user-1", "r2", testStaleAfter)
	require.NoError(t, err)
	assert.False(t, acq.Acquired)
	assert.Equal(t, "r1", acq.State.CurrentRequestID)
	assert.Equal(t, "r2", acq.State.PendingRequestID)

	// Third request replaces the second as pending
	acq, err = s.TryAcquireLock(ctx, "profile:user-1", "r3", testStaleAfter)
	require.NoError(t, err)
	assert.False(t, acq.Acquired)
	assert.Equal(t, "r3", acq.State.PendingRequestID, "only the latest pending request survives")
}

func TestTryAcquireLock_ReleasedLockIsAcquirable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.TryAcquireLock(ctx, "profile:user-1", "r1", testStaleAfter)
	require.NoError(t, err)
	_, err = s.ReleaseLock(ctx, "profile:user-1", "r1")
	require.NoError(t, err)

	acq, err := s.TryAcquireLock(ctx, "profile:user-1", "r2", testStaleAfter)
	require.NoError(t, err)
	assert.True(t, acq.Acquired)
	assert.Equal(t, "r2", acq.State.CurrentRequestID)
}

func TestTryAcquireLock_StaleTakeover(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.TryAcquireLock(ctx, "profile:user-1", "crashed", testStaleAfter)
	require.NoError(t, err)

	// Backdate the lock past the staleness threshold
	s.mu.Lock()
	s.state.Locks["profile:user-1"].StartedAt = time.Now().UTC().Add(-testStaleAfter - time.Minute)
	s.mu.Unlock()

	acq, err := s.TryAcquireLock(ctx, "profile:user-1", "r2", testStaleAfter)
	require.NoError(t, err)
	assert.True(t, acq.Acquired, "stale lock should be taken over")
	assert.Equal(t, "r2", acq.State.CurrentRequestID)
}

func TestTryAcquireLock_HeldJustUnderThresholdEnqueues(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.TryAcquireLock(ctx, "profile:user-1", "r1", testStaleAfter)
	require.NoError(t, err)

	s.mu.Lock()
	s.state.Locks["profile:user-1"].StartedAt = time.Now().UTC().Add(-testStaleAfter + time.Minute)
	s.mu.Unlock()

	acq, err := s.TryAcquireLock(ctx, "profile:user-1", "r2", testStaleAfter)
	require.NoError(t, err)
	assert.False(t, acq.Acquired, "lock held under the threshold is not stale")
}

func TestReleaseLock_OwnerGuard(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.TryAcquireLock(ctx, "profile:user-1", "r1", testStaleAfter)
	require.NoError(t, err)

	_, err = s.ReleaseLock(ctx, "profile:user-1", "someone-else")
	assert.ErrorIs(t, err, ErrLockNotHeld)

	// Release of a never-locked scope also fails
	_, err = s.ReleaseLock(ctx, "profile:user-2", "r1")
	assert.ErrorIs(t, err, ErrLockNotHeld)
}

func TestReleaseLock_PromotesPending(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.TryAcquireLock(ctx, "profile:user-1", "r1", testStaleAfter)
	require.NoError(t, err)
	_, err = s.TryAcquireLock(ctx, "profile:user-1", "r2", testStaleAfter)
	require.NoError(t, err)

	pending, err := s.ReleaseLock(ctx, "profile:user-1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "r2", pending)

	// The pending request is now the holder; the lock stays held
	l, err := s.ReadLock(ctx, "profile:user-1")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.True(t, l.InProgress)
	assert.Equal(t, "r2", l.CurrentRequestID)
	assert.Empty(t, l.PendingRequestID)

	// The promoted holder releases with nothing pending
	pending, err = s.ReleaseLock(ctx, "profile:user-1", "r2")
	require.NoError(t, err)
	assert.Empty(t, pending)

	l, err = s.ReadLock(ctx, "profile:user-1")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.False(t, l.InProgress)
}

func TestClearLock_DiscardsPending(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.TryAcquireLock(ctx, "profile:user-1", "r1", testStaleAfter)
	require.NoError(t, err)
	_, err = s.TryAcquireLock(ctx, "profile:user-1", "r2", testStaleAfter)
	require.NoError(t, err)

	require.NoError(t, s.ClearLock(ctx, "profile:user-1"))

	l, err := s.ReadLock(ctx, "profile:user-1")
	require.NoError(t, err)
	require.NotNil(t, l, "row is kept for observability")
	assert.False(t, l.InProgress)
	assert.Empty(t, l.CurrentRequestID)
	assert.Empty(t, l.PendingRequestID)

	// Clearing a scope that never had a lock is a no-op
	require.NoError(t, s.ClearLock(ctx, "profile:user-never"))
}

func TestReadLock_NilForUnknownScope(t *testing.T) {
	s := newTestStore(t)
	l, err := s.ReadLock(context.Background(), "profile:user-1")
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestTryAcquireLock_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const goroutines = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acq, err := s.TryAcquireLock(ctx, "profile:user-1", fmt.Sprintf("r%d", i), testStaleAfter)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if acq.Acquired {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one concurrent acquirer must win")

	l, err := s.ReadLock(ctx, "profile:user-1")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.True(t, l.InProgress)
	assert.NotEmpty(t, l.PendingRequestID, "losers must be recorded as pending")
}

func TestFileStore_StateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	s1, err := NewFileStore(path, nil)
	require.NoError(t, err)
	_, err = s1.TryAcquireLock(ctx, "profile:user-1", "r1", testStaleAfter)
	require.NoError(t, err)
	require.NoError(t, s1.CreateArtifacts(ctx, []models.Artifact{
		{ID: "a1", Service: "profile", ScopeID: "user-1", Status: models.StatusPending},
	}))

	s2, err := NewFileStore(path, nil)
	require.NoError(t, err)

	l, err := s2.ReadLock(ctx, "profile:user-1")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "r1", l.CurrentRequestID)

	arts, err := s2.ListArtifacts(ctx, "profile", models.StatusPending, nil)
	require.NoError(t, err)
	assert.Len(t, arts, 1)
}

// =============================================================================
// ARTIFACT TESTS
// =============================================================================

func seedArtifacts(t *testing.T, s *FileStore) {
	t.Helper()
	require.NoError(t, s.CreateArtifacts(context.Background(), []models.Artifact{
		{ID: "c1", Service: "profile", ScopeID: "user-1", Status: models.StatusCurrent},
		{ID: "c2", Service: "profile", ScopeID: "user-2", Status: models.StatusCurrent},
		{ID: "p1", Service: "profile", ScopeID: "user-1", Status: models.StatusPending},
		{ID: "a1", Service: "profile", ScopeID: "user-1", Status: models.StatusArchived},
		{ID: "f1", Service: "feedback", ScopeID: "user-1", Status: models.StatusPending},
	}))
}

func TestListArtifacts_Filters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedArtifacts(t, s)

	arts, err := s.ListArtifacts(ctx, "profile", models.StatusCurrent, nil)
	require.NoError(t, err)
	assert.Len(t, arts, 2)

	arts, err = s.ListArtifacts(ctx, "profile", models.StatusCurrent, []string{"user-2"})
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "c2", arts[0].ID)

	// Empty service matches all services
	arts, err = s.ListArtifacts(ctx, "", models.StatusPending, nil)
	require.NoError(t, err)
	assert.Len(t, arts, 2)
}

func TestUpdateArtifactStatus_CountsAndScopes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedArtifacts(t, s)

	n, err := s.UpdateArtifactStatus(ctx, "profile", models.StatusCurrent, models.StatusArchived, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	arts, err := s.ListArtifacts(ctx, "profile", models.StatusArchived, nil)
	require.NoError(t, err)
	assert.Len(t, arts, 3)

	// No matches is not an error
	n, err = s.UpdateArtifactStatus(ctx, "profile", models.StatusCurrent, models.StatusArchived, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDeleteArtifactsByStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedArtifacts(t, s)

	n, err := s.DeleteArtifactsByStatus(ctx, "profile", models.StatusArchived, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	arts, err := s.ListArtifacts(ctx, "profile", models.StatusArchived, nil)
	require.NoError(t, err)
	assert.Empty(t, arts)

	// Other services are untouched
	arts, err = s.ListArtifacts(ctx, "feedback", models.StatusPending, nil)
	require.NoError(t, err)
	assert.Len(t, arts, 1)
}

// =============================================================================
// PROGRESS TESTS
// =============================================================================

func TestProgressLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateProgress(ctx, "profile", 3))

	require.NoError(t, s.SetProgressItem(ctx, "profile", "user-1"))
	rec, err := s.ReadProgress(ctx, "profile")
	require.NoError(t, err)
	assert.Equal(t, "user-1", rec.CurrentItemID)
	assert.Equal(t, models.RunInProgress, rec.RunStatus)

	require.NoError(t, s.RecordProgressItem(ctx, "profile", "user-1", ""))
	require.NoError(t, s.RecordProgressItem(ctx, "profile", "user-2", "llm unavailable"))

	rec, err = s.ReadProgress(ctx, "profile")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.ProcessedItems)
	assert.Equal(t, 1, rec.Succeeded)
	assert.Equal(t, 1, rec.Failed)
	require.Len(t, rec.Errors, 1)
	assert.Equal(t, "user-2", rec.Errors[0].ItemID)

	require.NoError(t, s.FinalizeProgress(ctx, "profile", models.RunCompleted))
	rec, err = s.ReadProgress(ctx, "profile")
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, rec.RunStatus)
	assert.NotNil(t, rec.CompletedAt)
	assert.Empty(t, rec.CurrentItemID)
}

func TestRequestCancel_SurvivesItemWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateProgress(ctx, "profile", 5))
	require.NoError(t, s.RequestCancel(ctx, "profile"))

	// Item-level writes must not clobber the cancellation flag
	require.NoError(t, s.SetProgressItem(ctx, "profile", "user-1"))
	require.NoError(t, s.RecordProgressItem(ctx, "profile", "user-1", ""))

	rec, err := s.ReadProgress(ctx, "profile")
	require.NoError(t, err)
	assert.True(t, rec.CancellationRequested)
}

func TestProgress_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.ReadProgress(ctx, "profile")
	assert.ErrorIs(t, err, ErrProgressNotFound)
	assert.ErrorIs(t, s.RequestCancel(ctx, "profile"), ErrProgressNotFound)
	assert.ErrorIs(t, s.RecordProgressItem(ctx, "profile", "user-1", ""), ErrProgressNotFound)
}

func TestCreateProgress_ReplacesPreviousRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateProgress(ctx, "profile", 2))
	require.NoError(t, s.RequestCancel(ctx, "profile"))
	require.NoError(t, s.FinalizeProgress(ctx, "profile", models.RunCancelled))

	// A new run starts clean
	require.NoError(t, s.CreateProgress(ctx, "profile", 4))
	rec, err := s.ReadProgress(ctx, "profile")
	require.NoError(t, err)
	assert.Equal(t, 4, rec.TotalItems)
	assert.Equal(t, 0, rec.ProcessedItems)
	assert.False(t, rec.CancellationRequested)
	assert.Equal(t, models.RunInProgress, rec.RunStatus)
}
