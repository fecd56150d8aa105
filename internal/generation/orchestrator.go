// Package generation is the top-level entry point for extraction runs.
// The orchestrator guarantees at most one concurrent run per scope,
// never drops a request that arrives while a run is in progress, and
// folds overlapping requests into re-run cycles of the active holder.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/memgen-go/internal/extractor"
	"github.com/raphaelgruber/memgen-go/internal/harness"
	"github.com/raphaelgruber/memgen-go/internal/lock"
	"github.com/raphaelgruber/memgen-go/internal/metrics"
	"github.com/raphaelgruber/memgen-go/internal/models"
	"github.com/raphaelgruber/memgen-go/internal/store"
)

// Request describes one generation trigger.
type Request struct {
	// ScopeID selects the scope (empty = org-wide).
	ScopeID string
	// RequestID identifies the trigger; generated when empty.
	RequestID string
	// Source is the trigger source (e.g. "scheduler", "api", "manual").
	Source string
	// AllowManual permits manual-trigger-only extractors to run.
	AllowManual bool
	// ExtractorNames is an optional allow-list of extractors to run.
	ExtractorNames []string
	// CancelRequested is the batch-mode cancellation probe. Nil outside
	// batch runs. Polled after each generation cycle; a cancelled run
	// clears (rather than releases) its lock, intentionally discarding
	// any coalesced pending successor.
	CancelRequested func(ctx context.Context) bool
}

// Identity names a generation service and declares whether its runs
// must be exclusively tracked per scope.
type Identity interface {
	ServiceName() string
	RequiresExclusiveRun() bool
}

// ConfigLoader loads the extractor configurations for a request.
type ConfigLoader interface {
	LoadConfigs(ctx context.Context, req Request) ([]extractor.Config, error)
}

// ExtractorFactory constructs extractor instances from filtered configs.
type ExtractorFactory interface {
	BuildExtractors(ctx context.Context, req Request, configs []extractor.Config) ([]extractor.Extractor, error)
}

// ResultProcessor consumes the non-empty results of one harness run.
type ResultProcessor interface {
	ProcessResults(ctx context.Context, req Request, results []extractor.Result) error
}

// Service is a concrete generation service: the four collaborator
// interfaces the orchestrator is parameterized by.
type Service interface {
	Identity
	ConfigLoader
	ExtractorFactory
	ResultProcessor
}

// Outcome tells the caller what happened to their request.
type Outcome string

const (
	// OutcomeCompleted means this call ran at least one generation cycle.
	OutcomeCompleted Outcome = "completed"
	// OutcomeQueued means an active run holds the scope lock; the
	// request was recorded as pending and will be serviced by that run.
	OutcomeQueued Outcome = "queued"
	// OutcomeCancelled means batch cancellation stopped the run after
	// the current cycle; the pending successor (if any) was discarded.
	OutcomeCancelled Outcome = "cancelled"
)

// Options configures an orchestrator.
type Options struct {
	Workers          int
	ExtractorTimeout time.Duration
	Metrics          *metrics.Collector
	Logger           *slog.Logger
}

// Orchestrator drives generation runs for one service.
type Orchestrator struct {
	svc     Service
	locks   *lock.Coordinator
	opts    Options
	log     *slog.Logger
	metrics *metrics.Collector
}

// New creates an orchestrator for a service.
func New(svc Service, locks *lock.Coordinator, opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		svc:     svc,
		locks:   locks,
		opts:    opts,
		log:     log.With("service", svc.ServiceName()),
		metrics: opts.Metrics,
	}
}

// Run executes the generation run/re-run loop for one request.
//
// Callers either get OutcomeCompleted/OutcomeQueued/OutcomeCancelled or
// a hard error from an infrastructure failure; a cycle whose body
// failed still counts as completed (logged, zero results). On any error
// escaping the loop the lock is forcibly cleared so the scope can never
// deadlock.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Outcome, error) {
	if !o.svc.RequiresExclusiveRun() {
		o.runCycle(ctx, req)
		return OutcomeCompleted, nil
	}

	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	scope := models.ScopeKey{Service: o.svc.ServiceName(), ScopeID: req.ScopeID}

	start := time.Now()
	acq, err := o.locks.Acquire(ctx, scope, req.RequestID)
	if o.metrics != nil {
		o.metrics.RecordTiming(metrics.OpLockAcquire, time.Since(start))
	}
	if err != nil {
		return "", fmt.Errorf("acquire lock: %w", err)
	}
	if !acq.Acquired {
		// Normal outcome: the active run services this request on its
		// next cycle. Nothing to retry.
		return OutcomeQueued, nil
	}

	for {
		o.runCycle(ctx, req)

		if req.CancelRequested != nil && req.CancelRequested(ctx) {
			if err := o.locks.Clear(ctx, scope); err != nil {
				return "", fmt.Errorf("clear lock after cancellation: %w", err)
			}
			o.log.Info("run cancelled, pending successor discarded",
				"scope_id", req.ScopeID, "request_id", req.RequestID)
			return OutcomeCancelled, nil
		}

		pending, err := o.locks.Release(ctx, scope, req.RequestID)
		if err != nil {
			if errors.Is(err, store.ErrLockNotHeld) {
				// A stale takeover happened while this run was executing.
				// The new holder owns the scope now; do not clear.
				o.log.Warn("lock no longer held at release, run superseded",
					"scope_id", req.ScopeID, "request_id", req.RequestID)
				return OutcomeCompleted, nil
			}
			if cerr := o.locks.Clear(ctx, scope); cerr != nil {
				o.log.Error("failed to clear lock after release failure",
					"scope_id", req.ScopeID, "error", cerr)
			}
			return "", fmt.Errorf("release lock: %w", err)
		}

		if pending == "" {
			return OutcomeCompleted, nil
		}

		// A request arrived during the cycle. Service it before this
		// holding period ends, without requiring the other caller to retry.
		o.log.Info("servicing coalesced request",
			"scope_id", req.ScopeID,
			"previous_request_id", req.RequestID,
			"request_id", pending)
		req.RequestID = pending
	}
}

// runCycle runs the generation body once. Any failure inside it (config
// loading, extractor construction, result processing, panics) degrades
// to "no results this cycle" and is logged; it is never the
// orchestrator's own error, so the lock loop always proceeds.
func (o *Orchestrator) runCycle(ctx context.Context, req Request) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("generation cycle panicked",
				"scope_id", req.ScopeID, "request_id", req.RequestID, "panic", r)
		}
		if o.metrics != nil {
			o.metrics.RecordTiming(metrics.OpGenerationCycle, time.Since(start))
		}
	}()

	configs, err := o.svc.LoadConfigs(ctx, req)
	if err != nil {
		o.log.Error("failed to load extractor configs",
			"scope_id", req.ScopeID, "error", err)
		return
	}

	configs = extractor.FilterConfigs(configs, req.Source, req.AllowManual, req.ExtractorNames)
	if len(configs) == 0 {
		o.log.Debug("no extractors eligible for this trigger",
			"scope_id", req.ScopeID, "source", req.Source)
		return
	}

	extractors, err := o.svc.BuildExtractors(ctx, req, configs)
	if err != nil {
		o.log.Error("failed to build extractors",
			"scope_id", req.ScopeID, "error", err)
		return
	}

	results := harness.Run(ctx, extractors, harness.Options{
		Workers: o.opts.Workers,
		Timeout: o.opts.ExtractorTimeout,
		Metrics: o.metrics,
		Logger:  o.log,
	})
	if len(results) == 0 {
		o.log.Info("generation cycle produced no results",
			"scope_id", req.ScopeID, "request_id", req.RequestID)
		return
	}

	pStart := time.Now()
	err = o.svc.ProcessResults(ctx, req, results)
	if o.metrics != nil {
		o.metrics.RecordTiming(metrics.OpProcessResults, time.Since(pStart))
	}
	if err != nil {
		o.log.Error("failed to process extractor results",
			"scope_id", req.ScopeID, "results", len(results), "error", err)
		return
	}

	o.log.Info("generation cycle complete",
		"scope_id", req.ScopeID,
		"request_id", req.RequestID,
		"results", len(results))
}
