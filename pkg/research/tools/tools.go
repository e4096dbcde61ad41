package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// New builds the configured search backend. One provider is used directly;
// several are wrapped in a Chain in the configured order.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (research.Searcher, error) {
	providers := make([]Named, 0, len(cfg.SearchProviders))
	for _, name := range cfg.SearchProviders {
		var (
			s   research.Searcher
			err error
		)
		switch name {
		case "google":
			s, err = NewGoogleSearch(ctx, cfg.GoogleSearchKey(), cfg.SearchModel)
		case "tavily":
			s = NewTavily(cfg.TavilyAPIKey, cfg.TavilyDepth)
		case "arxiv":
			s = NewArxiv()
		default:
			err = fmt.Errorf("%w: unknown search provider %q", research.ErrInvalidConfig, name)
		}
		if err != nil {
			return nil, err
		}
		providers = append(providers, Named{Name: name, Searcher: s})
	}

	switch len(providers) {
	case 0:
		return nil, fmt.Errorf("%w: no search providers configured", research.ErrInvalidConfig)
	case 1:
		return providers[0].Searcher, nil
	default:
		return NewChain(logger, providers...), nil
	}
}
