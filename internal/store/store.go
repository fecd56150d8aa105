// Package store defines the storage gateway consumed by the generation
// orchestration core, and its two backends: a single-process file store
// and a multi-process SurrealDB store. Both satisfy the same contract;
// in particular the lock primitives are atomic per scope key with
// respect to concurrent callers.
package store

import (
	"context"
	"time"

	"github.com/raphaelgruber/memgen-go/internal/models"
)

// Acquisition is the outcome of a TryAcquireLock call.
type Acquisition struct {
	// Acquired is true when the caller now holds the lock. False means
	// the request was recorded as the pending successor of the active
	// run; it is a normal outcome, not an error.
	Acquired bool
	State    models.LockState
}

// Gateway is the persistence contract for locks, artifacts and batch
// progress. LockState and ProgressRecord are mutated exclusively through
// these primitives; no caller may read-modify-write them outside the
// gateway.
type Gateway interface {
	// TryAcquireLock atomically acquires the lock for scopeKey, or
	// records requestID as the pending successor if an active, non-stale
	// lock is held by someone else. Two racing callers never both
	// observe Acquired=true.
	TryAcquireLock(ctx context.Context, scopeKey, requestID string, staleAfter time.Duration) (Acquisition, error)

	// ReleaseLock releases the lock held by requestID. If a pending
	// request was recorded it is promoted to the current holder (the
	// lock stays held) and its id is returned; otherwise the lock is
	// cleared and the empty string is returned. Releasing a lock not
	// held by requestID fails with ErrLockNotHeld and mutates nothing.
	ReleaseLock(ctx context.Context, scopeKey, requestID string) (pendingID string, err error)

	// ClearLock unconditionally forces the lock to the not-held state,
	// discarding any pending successor. The row itself is kept.
	ClearLock(ctx context.Context, scopeKey string) error

	// ReadLock returns the lock state, or nil if no row exists yet.
	ReadLock(ctx context.Context, scopeKey string) (*models.LockState, error)

	// ListArtifacts returns artifacts with the given status, optionally
	// filtered to a service (empty = all) and scope ids (nil = all).
	ListArtifacts(ctx context.Context, service string, status models.ArtifactStatus, scopes []string) ([]models.Artifact, error)

	// CreateArtifacts persists new artifacts.
	CreateArtifacts(ctx context.Context, artifacts []models.Artifact) error

	// UpdateArtifactStatus moves every matching artifact from one status
	// to another in a single atomic operation, returning the count moved.
	UpdateArtifactStatus(ctx context.Context, service string, from, to models.ArtifactStatus, scopes []string) (int, error)

	// DeleteArtifactsByStatus deletes matching artifacts, returning the
	// count deleted.
	DeleteArtifactsByStatus(ctx context.Context, service string, status models.ArtifactStatus, scopes []string) (int, error)

	// CreateProgress starts a new batch progress record for a service,
	// replacing any previous run's record.
	CreateProgress(ctx context.Context, service string, total int) error

	// SetProgressItem records the item currently being processed.
	SetProgressItem(ctx context.Context, service, itemID string) error

	// RecordProgressItem counts one processed item; itemErr non-empty
	// marks it failed and appends to the error list.
	RecordProgressItem(ctx context.Context, service, itemID, itemErr string) error

	// FinalizeProgress sets the terminal run status and completion time.
	FinalizeProgress(ctx context.Context, service string, status models.RunStatus) error

	// RequestCancel flips the cancellation flag on an in-progress run.
	RequestCancel(ctx context.Context, service string) error

	// ReadProgress returns the progress record for a service, or
	// ErrProgressNotFound if none exists.
	ReadProgress(ctx context.Context, service string) (*models.ProgressRecord, error)
}
