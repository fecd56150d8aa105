package harness

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/raphaelgruber/memgen-go/internal/extractor"
)

// fakeExtractor scripts one extractor behavior for harness tests.
type fakeExtractor struct {
	name     string
	result   *extractor.Result
	err      error
	sleep    time.Duration // ignores ctx, simulates a hang
	panicMsg string

	running *atomic.Int32 // optional concurrency probe
	peak    *atomic.Int32
}

func (f *fakeExtractor) Name() string { return f.name }

func (f *fakeExtractor) Extract(ctx context.Context) (*extractor.Result, error) {
	if f.running != nil {
		n := f.running.Add(1)
		for {
			p := f.peak.Load()
			if n <= p || f.peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer f.running.Add(-1)
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.sleep > 0 {
		time.Sleep(f.sleep)
	}
	return f.result, f.err
}

func ok(name string) *fakeExtractor {
	return &fakeExtractor{
		name:   name,
		result: &extractor.Result{Extractor: name, Content: "content from " + name},
	}
}

func TestRun_CollectsAllResults(t *testing.T) {
	results := Run(context.Background(),
		[]extractor.Extractor{ok("a"), ok("b"), ok("c")},
		Options{})

	assert.Len(t, results, 3)
	names := map[string]bool{}
	for _, r := range results {
		names[r.Extractor] = true
	}
	assert.True(t, names["a"] && names["b"] && names["c"])
}

func TestRun_FailureIsolation(t *testing.T) {
	extractors := []extractor.Extractor{
		ok("good"),
		&fakeExtractor{name: "failing", err: errors.New("llm unavailable")},
		&fakeExtractor{name: "empty"}, // nil result, nothing to extract
		&fakeExtractor{name: "panicking", panicMsg: "boom"},
	}

	results := Run(context.Background(), extractors, Options{})

	// One sibling failing, panicking, or producing nothing never affects
	// the others.
	assert.Len(t, results, 1)
	assert.Equal(t, "good", results[0].Extractor)
}

func TestRun_TimeoutAbandonsHungExtractor(t *testing.T) {
	extractors := []extractor.Extractor{
		ok("fast"),
		&fakeExtractor{name: "hung", sleep: 2 * time.Second,
			result: &extractor.Result{Extractor: "hung", Content: "too late"}},
	}

	start := time.Now()
	results := Run(context.Background(), extractors, Options{Timeout: 50 * time.Millisecond})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "hung extractor must be abandoned, not joined")
	assert.Len(t, results, 1)
	assert.Equal(t, "fast", results[0].Extractor)
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32

	var extractors []extractor.Extractor
	for i := 0; i < 8; i++ {
		extractors = append(extractors, &fakeExtractor{
			name:    "probe",
			result:  &extractor.Result{Extractor: "probe", Content: "x"},
			sleep:   20 * time.Millisecond,
			running: &running,
			peak:    &peak,
		})
	}

	results := Run(context.Background(), extractors, Options{Workers: 2})

	assert.Len(t, results, 8)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_EmptyInput(t *testing.T) {
	assert.Nil(t, Run(context.Background(), nil, Options{}))
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Run(ctx, []extractor.Extractor{ok("a"), ok("b")}, Options{})
	assert.Empty(t, results)
}
