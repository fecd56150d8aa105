// Package lifecycle governs the four-state artifact model and its
// two-phase promotion (upgrade) and reversal (downgrade) protocols.
//
// Each step is individually atomic at the storage layer, but the
// multi-step sequences are deliberately not wrapped in one cross-step
// transaction: a mid-sequence failure reports whatever counts were
// achieved and leaves a detectable partial state instead of silently
// merging generations. The archive_in_progress marker exists precisely
// so a crashed downgrade is visible.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/memgen-go/internal/metrics"
	"github.com/raphaelgruber/memgen-go/internal/models"
	"github.com/raphaelgruber/memgen-go/internal/store"
)

// Options scopes a lifecycle transition.
type Options struct {
	// Service restricts the transition to one service's artifacts
	// (empty = all services).
	Service string
	// Scopes restricts the transition to the given scope ids, typically
	// resolved by the caller to exactly the scopes a generation run
	// touched. Nil = whole collection.
	Scopes []string
	// KeepArchived skips the delete-previous-archive step of an upgrade.
	KeepArchived bool
}

// UpgradeResult carries the per-step counts of an upgrade. On failure
// the counts reflect the steps that committed before the error.
type UpgradeResult struct {
	Deleted  int
	Archived int
	Promoted int
}

// DowngradeResult carries the per-step counts of a downgrade.
type DowngradeResult struct {
	Demoted  int
	Restored int
}

// Manager applies bulk status transitions through the storage gateway.
type Manager struct {
	store   store.Gateway
	log     *slog.Logger
	metrics *metrics.Collector
}

// NewManager creates a lifecycle manager.
func NewManager(gw store.Gateway, collector *metrics.Collector, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: gw, metrics: collector, log: log}
}

// Upgrade promotes pending artifacts into the current set:
// (1) delete previous archived artifacts unless KeepArchived,
// (2) move current to archived, (3) move pending to current.
// Fails with ErrNothingToUpgrade when no pending artifacts exist. A
// step failure returns the counts achieved so far; committed steps are
// not rolled back.
func (m *Manager) Upgrade(ctx context.Context, opts Options) (UpgradeResult, error) {
	start := time.Now()
	defer m.recordTiming(start)

	var res UpgradeResult

	pending, err := m.store.ListArtifacts(ctx, opts.Service, models.StatusPending, opts.Scopes)
	if err != nil {
		return res, fmt.Errorf("list pending artifacts: %w", err)
	}
	if len(pending) == 0 {
		return res, store.ErrNothingToUpgrade
	}

	if !opts.KeepArchived {
		n, err := m.store.DeleteArtifactsByStatus(ctx, opts.Service, models.StatusArchived, opts.Scopes)
		res.Deleted = n
		if err != nil {
			return res, fmt.Errorf("delete archived artifacts: %w", err)
		}
	}

	n, err := m.store.UpdateArtifactStatus(ctx, opts.Service, models.StatusCurrent, models.StatusArchived, opts.Scopes)
	res.Archived = n
	if err != nil {
		return res, fmt.Errorf("archive current artifacts: %w", err)
	}

	n, err = m.store.UpdateArtifactStatus(ctx, opts.Service, models.StatusPending, models.StatusCurrent, opts.Scopes)
	res.Promoted = n
	if err != nil {
		return res, fmt.Errorf("promote pending artifacts: %w", err)
	}

	m.log.Info("upgrade complete",
		"service", opts.Service,
		"scopes", len(opts.Scopes),
		"deleted", res.Deleted,
		"archived", res.Archived,
		"promoted", res.Promoted)
	return res, nil
}

// Downgrade restores the most recent archive, undoing an upgrade:
// (1) move current to archive_in_progress, (2) move archived to
// current, (3) move archive_in_progress to archived. A crash between
// steps 1 and 3 leaves the displaced artifacts visibly mid-transition
// rather than merged into the archive.
// Fails with ErrNothingToRestore when no archived artifacts exist.
func (m *Manager) Downgrade(ctx context.Context, opts Options) (DowngradeResult, error) {
	start := time.Now()
	defer m.recordTiming(start)

	var res DowngradeResult

	archived, err := m.store.ListArtifacts(ctx, opts.Service, models.StatusArchived, opts.Scopes)
	if err != nil {
		return res, fmt.Errorf("list archived artifacts: %w", err)
	}
	if len(archived) == 0 {
		return res, store.ErrNothingToRestore
	}

	n, err := m.store.UpdateArtifactStatus(ctx, opts.Service, models.StatusCurrent, models.StatusArchiveInProgress, opts.Scopes)
	res.Demoted = n
	if err != nil {
		return res, fmt.Errorf("demote current artifacts: %w", err)
	}

	n, err = m.store.UpdateArtifactStatus(ctx, opts.Service, models.StatusArchived, models.StatusCurrent, opts.Scopes)
	res.Restored = n
	if err != nil {
		return res, fmt.Errorf("restore archived artifacts: %w", err)
	}

	if _, err = m.store.UpdateArtifactStatus(ctx, opts.Service, models.StatusArchiveInProgress, models.StatusArchived, opts.Scopes); err != nil {
		return res, fmt.Errorf("finalize demoted artifacts: %w", err)
	}

	m.log.Info("downgrade complete",
		"service", opts.Service,
		"scopes", len(opts.Scopes),
		"demoted", res.Demoted,
		"restored", res.Restored)
	return res, nil
}

// DetectPartialDowngrade counts artifacts stranded in
// archive_in_progress by an interrupted downgrade. Reconciliation is a
// deliberate operator decision, so this only reports; it never mutates.
func (m *Manager) DetectPartialDowngrade(ctx context.Context, service string) (int, error) {
	stranded, err := m.store.ListArtifacts(ctx, service, models.StatusArchiveInProgress, nil)
	if err != nil {
		return 0, fmt.Errorf("list archive-in-progress artifacts: %w", err)
	}
	if len(stranded) > 0 {
		m.log.Warn("artifacts stranded mid-downgrade",
			"service", service, "count", len(stranded))
	}
	return len(stranded), nil
}

func (m *Manager) recordTiming(start time.Time) {
	if m.metrics != nil {
		m.metrics.RecordTiming(metrics.OpLifecycle, time.Since(start))
	}
}
