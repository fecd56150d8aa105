// Package models defines data structures shared by the memgen storage
// backends and orchestration layers.
package models

import (
	"time"
)

// ScopeKey identifies the unit of exclusivity for generation locking:
// one service combined with an optional scope (a user, or empty for the
// organization-wide pseudo-scope). At most one active lock row exists
// per ScopeKey.
type ScopeKey struct {
	Service string
	ScopeID string // empty = org-wide scope
}

// String renders the key in the form used by the storage backends.
func (k ScopeKey) String() string {
	if k.ScopeID == "" {
		return k.Service
	}
	return k.Service + ":" + k.ScopeID
}

// LockState is the persisted generation lock for one ScopeKey.
//
// Rows are never deleted, only cleared, so staleness and run history
// survive process restarts. InProgress=true implies CurrentRequestID is
// set. PendingRequestID is set only while a run is in progress and a
// second request arrived; only the latest pending request survives.
type LockState struct {
	Key              string    `json:"key"`
	InProgress       bool      `json:"in_progress"`
	StartedAt        time.Time `json:"started_at"`
	CurrentRequestID string    `json:"current_request_id,omitempty"`
	PendingRequestID string    `json:"pending_request_id,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Stale reports whether the lock has been held past staleAfter. A stale
// holder is presumed crashed and the lock is acquirable by new requests.
func (l *LockState) Stale(now time.Time, staleAfter time.Duration) bool {
	return l.InProgress && now.Sub(l.StartedAt) >= staleAfter
}
