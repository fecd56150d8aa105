package extractor

import (
	"context"
	"fmt"
	"strings"
)

// Generator is the slice of the inference client extractors need.
// Satisfied by *llm.Model.
type Generator interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// noResultMarker is what the model is instructed to answer when the
// input contains nothing worth extracting.
const noResultMarker = "NONE"

// PromptExtractor runs one configured prompt over the scope's
// new-since-last-run input through the inference service. It is
// tolerant of at-least-once processing: re-running over the same input
// yields an equivalent result.
type PromptExtractor struct {
	cfg   Config
	gen   Generator
	input string
}

// Compile-time check that PromptExtractor implements Extractor.
var _ Extractor = (*PromptExtractor)(nil)

// NewPromptExtractor builds an extractor from its config, the inference
// client, and the raw input to extract from.
func NewPromptExtractor(cfg Config, gen Generator, input string) *PromptExtractor {
	return &PromptExtractor{cfg: cfg, gen: gen, input: input}
}

// Name returns the configured extractor name.
func (e *PromptExtractor) Name() string {
	return e.cfg.Name
}

// Extract runs the configured prompt. A trimmed empty or NONE response
// means the extractor had nothing to do.
func (e *PromptExtractor) Extract(ctx context.Context) (*Result, error) {
	system := e.cfg.Prompt +
		"\n\nIf the input contains nothing relevant, respond with exactly " + noResultMarker + "."

	out, err := e.gen.GenerateWithSystem(ctx, system, e.input)
	if err != nil {
		return nil, fmt.Errorf("extractor %s: generate: %w", e.cfg.Name, err)
	}

	out = strings.TrimSpace(out)
	if out == "" || strings.EqualFold(out, noResultMarker) {
		return nil, nil
	}

	return &Result{
		Extractor: e.cfg.Name,
		Content:   out,
		Attributes: map[string]any{
			"model": e.cfg.Model,
		},
	}, nil
}
