// Package lock coordinates per-scope exclusive generation runs on top
// of the storage gateway's atomic lock primitive.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/memgen-go/internal/models"
	"github.com/raphaelgruber/memgen-go/internal/store"
)

// DefaultStaleAfter is how long a lock may be held before its holder is
// presumed crashed and the lock becomes acquirable again. Generation
// runs are bounded by the extractor timeout, so anything held this long
// is abandoned.
const DefaultStaleAfter = 15 * time.Minute

// Coordinator exposes acquire/release/clear semantics keyed by
// (service, scope id). It owns no state of its own; every mutation goes
// through the gateway's atomic primitives.
type Coordinator struct {
	store      store.Gateway
	staleAfter time.Duration
	log        *slog.Logger
}

// NewCoordinator creates a coordinator. staleAfter <= 0 uses the default.
func NewCoordinator(gw store.Gateway, staleAfter time.Duration, log *slog.Logger) *Coordinator {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{store: gw, staleAfter: staleAfter, log: log}
}

// Acquire attempts to take the scope's lock for requestID. A false
// Acquired means the request is now recorded as the pending successor
// of the active run and will be serviced by it; callers must not treat
// that as failure.
func (c *Coordinator) Acquire(ctx context.Context, scope models.ScopeKey, requestID string) (store.Acquisition, error) {
	acq, err := c.store.TryAcquireLock(ctx, scope.String(), requestID, c.staleAfter)
	if err != nil {
		return store.Acquisition{}, fmt.Errorf("acquire %q: %w", scope.String(), err)
	}
	if acq.Acquired {
		c.log.Debug("lock acquired", "scope_key", scope.String(), "request_id", requestID)
	} else {
		c.log.Info("lock held, request recorded as pending",
			"scope_key", scope.String(),
			"request_id", requestID,
			"holder", acq.State.CurrentRequestID)
	}
	return acq, nil
}

// Release gives up the lock held by requestID. A non-empty return is
// the id of a request that arrived during the run; the lock remains
// held and the caller must service it before finishing.
func (c *Coordinator) Release(ctx context.Context, scope models.ScopeKey, requestID string) (string, error) {
	pending, err := c.store.ReleaseLock(ctx, scope.String(), requestID)
	if err != nil {
		return "", fmt.Errorf("release %q: %w", scope.String(), err)
	}
	return pending, nil
}

// Clear unconditionally forces the lock free, discarding any pending
// successor. Used for cleanup after unrecoverable failures and for
// batch cancellation.
func (c *Coordinator) Clear(ctx context.Context, scope models.ScopeKey) error {
	if err := c.store.ClearLock(ctx, scope.String()); err != nil {
		return fmt.Errorf("clear %q: %w", scope.String(), err)
	}
	c.log.Warn("lock cleared", "scope_key", scope.String())
	return nil
}

// Read returns the current lock state, or nil if no run was ever
// tracked for the scope.
func (c *Coordinator) Read(ctx context.Context, scope models.ScopeKey) (*models.LockState, error) {
	return c.store.ReadLock(ctx, scope.String())
}

// RunPending reports whether another request is queued behind the
// active run for the scope.
func (c *Coordinator) RunPending(ctx context.Context, scope models.ScopeKey) (bool, error) {
	l, err := c.store.ReadLock(ctx, scope.String())
	if err != nil {
		return false, err
	}
	return l != nil && l.InProgress && l.PendingRequestID != "", nil
}
