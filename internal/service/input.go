// Package service provides the concrete generation services that plug
// into the orchestrator: each implements the config-loader,
// extractor-factory, result-processor, and identity interfaces.
package service

import (
	"context"
	"fmt"
	"os"
)

// InputSource supplies the raw input an extraction run observes for a
// scope: everything new since the scope's last successful run. The
// extraction core treats it as opaque; extractors are expected to be
// idempotent over at-least-once delivery of this input.
type InputSource interface {
	RecentInput(ctx context.Context, scopeID string) (string, error)
}

// FileInput reads extraction input from a file. Used by the CLI and by
// tests; production deployments plug in a conversation-log source.
type FileInput struct {
	Path string
}

// RecentInput returns the file's contents.
func (f FileInput) RecentInput(ctx context.Context, scopeID string) (string, error) {
	return readFile(f.Path)
}

// StaticInput returns a fixed string. Test helper.
type StaticInput string

// RecentInput returns the static string.
func (s StaticInput) RecentInput(ctx context.Context, scopeID string) (string, error) {
	return string(s), nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}
