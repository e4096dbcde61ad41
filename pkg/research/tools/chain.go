package tools

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mikeboe/deep-research/pkg/research"
)

// Named pairs a searcher with the name used in logs and configuration.
type Named struct {
	Name     string
	Searcher research.Searcher
}

// Chain queries providers in order and merges their results, dropping
// duplicates by canonical URL. A failing provider is skipped; the chain only
// fails when every provider does.
type Chain struct {
	providers []Named
	logger    *slog.Logger
}

// NewChain builds a chain over providers.
func NewChain(logger *slog.Logger, providers ...Named) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, logger: logger}
}

// Search collects up to maxResults distinct results across providers.
func (c *Chain) Search(ctx context.Context, query string, maxResults int) ([]research.SearchResult, error) {
	if len(c.providers) == 0 {
		return nil, errors.New("search chain has no providers")
	}

	var (
		merged []research.SearchResult
		errs   []error
		seen   = make(map[string]bool)
	)
	for _, p := range c.providers {
		if maxResults > 0 && len(merged) >= maxResults {
			break
		}
		results, err := p.Searcher.Search(ctx, query, maxResults)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("Search provider failed", "provider", p.Name, "query", query, "error", err)
			errs = append(errs, err)
			continue
		}
		for _, r := range results {
			key, err := research.CanonicalURL(r.URL)
			if err != nil {
				key = r.URL
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, r)
			if maxResults > 0 && len(merged) >= maxResults {
				break
			}
		}
	}

	if len(errs) == len(c.providers) {
		return nil, errors.Join(errs...)
	}
	if merged == nil {
		merged = []research.SearchResult{}
	}
	return merged, nil
}
