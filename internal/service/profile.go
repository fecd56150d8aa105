package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/memgen-go/internal/cache"
	"github.com/raphaelgruber/memgen-go/internal/extractor"
	"github.com/raphaelgruber/memgen-go/internal/generation"
	"github.com/raphaelgruber/memgen-go/internal/models"
	"github.com/raphaelgruber/memgen-go/internal/store"
)

// configCacheTTL throttles re-reading the extractor config file when a
// run loop services several coalesced requests back to back.
const configCacheTTL = 30 * time.Second

// NewConfigCache returns a cache sized for extractor config throttling.
func NewConfigCache() *cache.TTL {
	return cache.New(configCacheTTL, 16)
}

// ProfileService generates per-user profile artifacts from recent
// activity. Runs are exclusively tracked per scope.
type ProfileService struct {
	store       store.Gateway
	gen         extractor.Generator
	input       InputSource
	configPath  string
	configCache *cache.TTL
}

// Compile-time check that ProfileService implements generation.Service.
var _ generation.Service = (*ProfileService)(nil)

// NewProfileService creates the profile generation service. configCache
// may be shared with other services; nil disables caching.
func NewProfileService(gw store.Gateway, gen extractor.Generator, input InputSource, configPath string, configCache *cache.TTL) *ProfileService {
	return &ProfileService{
		store:       gw,
		gen:         gen,
		input:       input,
		configPath:  configPath,
		configCache: configCache,
	}
}

// ServiceName identifies the service in lock keys and artifact rows.
func (s *ProfileService) ServiceName() string { return "profile" }

// RequiresExclusiveRun is true: concurrent profile generation for one
// user would double-process the same activity window.
func (s *ProfileService) RequiresExclusiveRun() bool { return true }

// LoadConfigs reads extractor configs, cached briefly per service.
func (s *ProfileService) LoadConfigs(ctx context.Context, req generation.Request) ([]extractor.Config, error) {
	cacheKey := s.ServiceName() + ":configs"
	if s.configCache != nil {
		if v, ok := s.configCache.Get(cacheKey); ok {
			return v.([]extractor.Config), nil
		}
	}

	configs, err := extractor.LoadConfigs(s.configPath)
	if err != nil {
		return nil, fmt.Errorf("load configs: %w", err)
	}
	if s.configCache != nil {
		s.configCache.Set(cacheKey, configs)
	}
	return configs, nil
}

// BuildExtractors loads the scope's recent input once and constructs a
// prompt extractor per config over it.
func (s *ProfileService) BuildExtractors(ctx context.Context, req generation.Request, configs []extractor.Config) ([]extractor.Extractor, error) {
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

// ProcessResults persists extractor output as pending artifacts. The
// lifecycle manager later promotes them to current via upgrade.
func (s *ProfileService) ProcessResults(ctx context.Context, req generation.Request, results []extractor.Result) error {
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
