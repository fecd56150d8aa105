package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/memgen-go/internal/extractor"
	"github.com/raphaelgruber/memgen-go/internal/generation"
	"github.com/raphaelgruber/memgen-go/internal/models"
	"github.com/raphaelgruber/memgen-go/internal/store"
)

// FeedbackService extracts feedback signals from recent activity. Its
// output is append-only and idempotent, so runs are not exclusively
// tracked: overlapping runs at worst re-append equivalent pending
// artifacts, which downstream deduplication tolerates.
type FeedbackService struct {
	store      store.Gateway
	gen        extractor.Generator
	input      InputSource
	configPath string
}

// Compile-time check that FeedbackService implements generation.Service.
var _ generation.Service = (*FeedbackService)(nil)

// NewFeedbackService creates the feedback generation service.
func NewFeedbackService(gw store.Gateway, gen extractor.Generator, input InputSource, configPath string) *FeedbackService {
	return &FeedbackService{store: gw, gen: gen, input: input, configPath: configPath}
}

// ServiceName identifies the service in artifact rows.
func (s *FeedbackService) ServiceName() string { return "feedback" }

// RequiresExclusiveRun is false; see the type comment.
func (s *FeedbackService) RequiresExclusiveRun() bool { return false }

// LoadConfigs reads extractor configs from the config file.
func (s *FeedbackService) LoadConfigs(ctx context.Context, req generation.Request) ([]extractor.Config, error) {
	configs, err := extractor.LoadConfigs(s.configPath)
	if err != nil {
		return nil, fmt.Errorf("load configs: %w", err)
	}
	return configs, nil
}

// BuildExtractors constructs a prompt extractor per config.
func (s *FeedbackService) BuildExtractors(ctx context.Context, req generation.Request, configs []extractor.Config) ([]extractor.Extractor, error) {
	input, err := s.input.RecentInput(ctx, req.ScopeID)
	if err != nil {
		return nil, fmt.Errorf("load recent input: %w", err)
	}

	extractors := make([]extractor.Extractor, 0, len(configs))
	for _, cfg := range configs {
		extractors = append(extractors, extractor.NewPromptExtractor(cfg, s.gen, input))
	}
	return extractors, nil
}

// ProcessResults persists extractor output as pending artifacts.
func (s *FeedbackService) ProcessResults(ctx context.Context, req generation.Request, results []extractor.Result) error {
	now := time.Now().UTC()
	artifacts := make([]models.Artifact, 0, len(results))
	for _, r := range results {
		artifacts = append(artifacts, models.Artifact{
			ID:        uuid.New().String(),
			Service:   s.ServiceName(),
			ScopeID:   req.ScopeID,
			Kind:      r.Extractor,
			Content:   r.Content,
			Status:    models.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if err := s.store.CreateArtifacts(ctx, artifacts); err != nil {
		return fmt.Errorf("persist artifacts: %w", err)
	}
	return nil
}
