// Package harness runs a set of independent extractors under a bounded
// worker pool, isolating each extractor's failure, timeout, or panic
// from its siblings and from the caller.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/memgen-go/internal/extractor"
	"github.com/raphaelgruber/memgen-go/internal/metrics"
)

const (
	// DefaultWorkers bounds concurrent extractor invocations.
	DefaultWorkers = 5
	// DefaultTimeout bounds one extractor invocation.
	DefaultTimeout = 300 * time.Second
)

// Options configures a harness run.
type Options struct {
	Workers int
	Timeout time.Duration
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Run executes all extractors concurrently and collects every non-nil,
// non-failed result. Result order is not guaranteed to match input
// order. A failed, timed-out, or panicking extractor is logged and
// excluded; it never aborts the other extractors or the caller. Past
// its timeout a hung extractor is abandoned, not joined, so the
// caller's shutdown path is never blocked on it.
func Run(ctx context.Context, extractors []extractor.Extractor, opts Options) []extractor.Result {
	if len(extractors) == 0 {
		return nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	log.Debug("starting extraction harness", "extractors", len(extractors), "workers", workers)

	var (
		mu      sync.Mutex
		results []extractor.Result
	)

	jobs := make(chan extractor.Extractor, len(extractors))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for ext := range jobs {
				if ctx.Err() != nil {
					return
				}

				start := time.Now()
				res, err := runOne(ctx, ext, timeout)
				if opts.Metrics != nil {
					opts.Metrics.RecordTiming(metrics.OpExtractorRun, time.Since(start))
				}

				if err != nil {
					log.Warn("extractor failed",
						"worker", workerID,
						"extractor", ext.Name(),
						"error", err)
					continue
				}
				if res == nil {
					log.Debug("extractor produced no result", "extractor", ext.Name())
					continue
				}

				mu.Lock()
				results = append(results, *res)
				mu.Unlock()
			}
		}(i)
	}

	for _, ext := range extractors {
		jobs <- ext
	}
	close(jobs)

	wg.Wait()

	log.Info("extraction harness complete",
		"extractors", len(extractors),
		"results", len(results))
	return results
}

// runOne invokes a single extractor with its own timeout. The extractor
// runs in an inner goroutine so that a hang only costs its worker the
// timeout, not forever; the abandoned goroutine's eventual result is
// dropped via the buffered channel.
func runOne(ctx context.Context, ext extractor.Extractor, timeout time.Duration) (*extractor.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *extractor.Result
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{nil, fmt.Errorf("extractor panicked: %v", r)}
			}
		}()
		res, err := ext.Extract(runCtx)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-runCtx.Done():
		return nil, fmt.Errorf("extractor %s: %w", ext.Name(), runCtx.Err())
	}
}
