// Package store provides error types for storage gateway operations.
package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for storage operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrLockNotHeld indicates a release attempt by a caller that does
	// not hold the lock. This happens when a stale run tries to release
	// a lock that has since been re-acquired by a newer request; the
	// release is a no-op and the new holder is unaffected.
	ErrLockNotHeld = errors.New("lock not held by caller")

	// ErrProgressNotFound indicates no batch progress record exists for
	// the requested service.
	ErrProgressNotFound = errors.New("progress record not found")

	// ErrNothingToUpgrade indicates an upgrade was requested with no
	// pending artifacts to promote.
	ErrNothingToUpgrade = errors.New("no pending artifacts to upgrade")

	// ErrNothingToRestore indicates a downgrade was requested with no
	// archived artifacts to restore.
	ErrNothingToRestore = errors.New("no archived artifacts to restore")
)

// wrapQueryError inspects a SurrealDB error and wraps it with the
// appropriate sentinel error when the database-level message matches a
// known pattern. Returns the original error otherwise.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "lock not held") {
			return fmt.Errorf("%w: %s", ErrLockNotHeld, msg)
		}
		if strings.Contains(msg, "progress not found") {
			return fmt.Errorf("%w: %s", ErrProgressNotFound, msg)
		}
	}

	return err
}
