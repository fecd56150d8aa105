// Package extractor defines the unit-of-work contract for generation
// runs: independent extractors that each produce zero or one result per
// invocation, plus their configuration and trigger filtering.
package extractor

import "context"

// Result is the output of one extractor invocation.
type Result struct {
	// Extractor is the name of the extractor that produced the result.
	Extractor string
	// Content is the generated payload.
	Content string
	// Attributes carries extractor-specific metadata.
	Attributes map[string]any
}

// Extractor is one independent unit of work. Extract returns nil when
// the extractor had nothing to do, which is distinct from failure: an
// extractor that cannot complete must return an error, never a
// sentinel result. Extractors are mutually independent and must not
// spawn concurrent work outside the harness's accounting.
type Extractor interface {
	Name() string
	Extract(ctx context.Context) (*Result, error)
}
