package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/research/tools"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

// NewEngineFactory builds the stage models and search backend once and
// returns a constructor for per-run engines sharing them.
func NewEngineFactory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (func(opts ...research.Option) (*research.Engine, error), error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	models, err := clients.NewModels(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM clients: %w", err)
	}
	searcher, err := tools.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create search backend: %w", err)
	}
	clipper := splitter.NewRecursiveCharacterTextSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	researchCfg := cfg.ResearchConfig()

	logger.Info("Research engine configured",
		"llm_provider", cfg.LLMProvider,
		"search_providers", cfg.SearchProviders,
		"initial_queries", researchCfg.InitialQueryCount,
		"max_loops", researchCfg.MaxResearchLoops)

	return func(opts ...research.Option) (*research.Engine, error) {
		base := []research.Option{research.WithLogger(logger), research.WithClipper(clipper)}
		return research.NewEngine(researchCfg, models, searcher, append(base, opts...)...)
	}, nil
}
