// Package batch drives sequential generation across many scopes with
// persisted progress and cooperative cancellation. The tracker is the
// only component spanning multiple scope keys in one call, and it is
// itself responsible for surfacing cancellation: it polls the persisted
// flag before each scope rather than relying on any lower layer.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/memgen-go/internal/generation"
	"github.com/raphaelgruber/memgen-go/internal/models"
	"github.com/raphaelgruber/memgen-go/internal/store"
)

// GenerateFunc invokes the generation orchestrator for one request.
type GenerateFunc func(ctx context.Context, req generation.Request) (generation.Outcome, error)

// Tracker runs batch generation flows (bulk/rerun/manual) over a list
// of scopes.
type Tracker struct {
	store store.Gateway
	log   *slog.Logger
}

// NewTracker creates a batch tracker.
func NewTracker(gw store.Gateway, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{store: gw, log: log}
}

// Run processes each scope in order: it checks the persisted
// cancellation flag first (finalizing the record as cancelled and
// skipping all remaining scopes if set), then invokes generate for the
// scope and records the per-scope outcome. The returned record is the
// finalized progress.
func (t *Tracker) Run(ctx context.Context, service string, scopes []string, template generation.Request, generate GenerateFunc) (*models.ProgressRecord, error) {
	if err := t.store.CreateProgress(ctx, service, len(scopes)); err != nil {
		return nil, fmt.Errorf("create progress: %w", err)
	}
	t.log.Info("batch run started", "service", service, "scopes", len(scopes))

	cancelProbe := func(ctx context.Context) bool {
		rec, err := t.store.ReadProgress(ctx, service)
		if err != nil {
			t.log.Warn("failed to read progress for cancellation check",
				"service", service, "error", err)
			return false
		}
		return rec.CancellationRequested
	}

	for _, scopeID := range scopes {
		rec, err := t.store.ReadProgress(ctx, service)
		if err != nil {
			t.finalize(ctx, service, models.RunFailed)
			return nil, fmt.Errorf("read progress: %w", err)
		}
		if rec.CancellationRequested {
			t.log.Info("batch run cancelled",
				"service", service, "processed", rec.ProcessedItems)
			t.finalize(ctx, service, models.RunCancelled)
			return t.store.ReadProgress(ctx, service)
		}

		if err := t.store.SetProgressItem(ctx, service, scopeID); err != nil {
			t.log.Warn("failed to record current item",
				"service", service, "scope_id", scopeID, "error", err)
		}

		req := template
		req.ScopeID = scopeID
		req.RequestID = "" // fresh id per scope
		req.CancelRequested = cancelProbe

		itemErr := ""
		if _, err := generate(ctx, req); err != nil {
			itemErr = err.Error()
			t.log.Error("batch scope failed",
				"service", service, "scope_id", scopeID, "error", err)
		}

		if err := t.store.RecordProgressItem(ctx, service, scopeID, itemErr); err != nil {
			t.finalize(ctx, service, models.RunFailed)
			return nil, fmt.Errorf("record progress item: %w", err)
		}
	}

	t.finalize(ctx, service, models.RunCompleted)
	rec, err := t.store.ReadProgress(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("read final progress: %w", err)
	}
	t.log.Info("batch run complete",
		"service", service,
		"processed", rec.ProcessedItems,
		"succeeded", rec.Succeeded,
		"failed", rec.Failed)
	return rec, nil
}

// Cancel requests cooperative cancellation of the service's active
// batch run. The run stops before its next scope.
func (t *Tracker) Cancel(ctx context.Context, service string) error {
	if err := t.store.RequestCancel(ctx, service); err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	t.log.Info("batch cancellation requested", "service", service)
	return nil
}

func (t *Tracker) finalize(ctx context.Context, service string, status models.RunStatus) {
	if err := t.store.FinalizeProgress(ctx, service, status); err != nil {
		t.log.Error("failed to finalize progress",
			"service", service, "status", status, "error", err)
	}
}
