package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mikeboe/deep-research/pkg/metrics"
)

const snippetRunes = 300

// Clipper bounds the amount of result content sent to the summarizer.
type Clipper interface {
	Clip(text string) string
}

// RuneClipper truncates text to a number of runes.
type RuneClipper int

func (n RuneClipper) Clip(text string) string {
	return truncateRunes(text, int(n))
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// SearchOutcome is what one SearchExecutor branch produced. An empty Summary
// means the query contributed nothing.
type SearchOutcome struct {
	Query      Query
	Summary    string
	NewSources []Source
}

type resultSummary struct {
	Relevant *bool  `json:"relevant"`
	Summary  string `json:"summary"`
}

func decodeResultSummary(raw string) (resultSummary, error) {
	var s resultSummary
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &s); err != nil {
		return resultSummary{}, fmt.Errorf("json parse error: %w", err)
	}
	if s.Relevant == nil {
		return resultSummary{}, errors.New("relevant is missing")
	}
	s.Summary = strings.TrimSpace(s.Summary)
	if *s.Relevant && s.Summary == "" {
		return resultSummary{}, errors.New("relevant result without summary")
	}
	return s, nil
}

// searchAll fans out one executeSearch per query and joins on all of them.
// Outcomes are indexed by submission order. The only error is cancellation
// of ctx itself.
func (e *Engine) searchAll(ctx context.Context, queries []Query, reg *SourceRegistry, cfg Config, date string) ([]SearchOutcome, error) {
	e.logger.Info("Starting search phase", "queries", len(queries))

	outcomes := make([]SearchOutcome, len(queries))
	var g errgroup.Group
	if cfg.MaxConcurrency > 0 {
		g.SetLimit(cfg.MaxConcurrency)
	}
	for i, q := range queries {
		g.Go(func() error {
			outcomes[i] = e.executeSearch(ctx, q, reg, cfg, date)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// executeSearch runs one query end to end. Every failure inside is soft.
func (e *Engine) executeSearch(ctx context.Context, q Query, reg *SourceRegistry, cfg Config, date string) SearchOutcome {
	empty := SearchOutcome{Query: q}
	log := e.logger.With("query", q.Text)

	qctx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
	defer cancel()

	results, err := e.searcher.Search(qctx, q.Text, cfg.MaxResultsPerQuery)
	if err != nil {
		if ctx.Err() == nil && qctx.Err() != nil {
			log.Warn("Search timed out", "timeout", cfg.QueryTimeout)
			metrics.SearchOutcomes.WithLabelValues("timeout").Inc()
		} else {
			log.Warn("Search failed", "error", err)
			metrics.SearchOutcomes.WithLabelValues("search_error").Inc()
		}
		return empty
	}
	if len(results) == 0 {
		log.Info("Search returned no results")
		metrics.SearchOutcomes.WithLabelValues("no_results").Inc()
		return empty
	}
	if len(results) > cfg.MaxResultsPerQuery {
		results = results[:cfg.MaxResultsPerQuery]
	}

	var (
		parts      []string
		newSources []Source
	)
	for _, res := range results {
		if qctx.Err() != nil {
			break
		}
		content := strings.TrimSpace(res.Content)
		if content == "" || strings.TrimSpace(res.URL) == "" {
			metrics.ResultSummaries.WithLabelValues("skipped").Inc()
			continue
		}

		prompt := buildSummarizerPrompt(q.Text, res, e.clipper.Clip(content), date)
		raw, err := generateText(qctx, e.models.Summarizer, summarizerSystemPrompt, prompt)
		if err != nil {
			log.Warn("Result summarization failed", "url", res.URL, "error", err)
			metrics.ResultSummaries.WithLabelValues("failed").Inc()
			continue
		}
		verdict, err := decodeResultSummary(raw)
		if err != nil {
			log.Warn("Result summary malformed", "url", res.URL, "error", err)
			metrics.ResultSummaries.WithLabelValues("failed").Inc()
			continue
		}
		if !*verdict.Relevant {
			log.Info("Result judged irrelevant", "url", res.URL)
			metrics.ResultSummaries.WithLabelValues("irrelevant").Inc()
			continue
		}

		src, created, err := reg.Register(res.URL, res.Title, truncateRunes(content, snippetRunes))
		if err != nil {
			log.Warn("Skipping result with unusable URL", "url", res.URL, "error", err)
			metrics.ResultSummaries.WithLabelValues("failed").Inc()
			continue
		}
		if created {
			metrics.SourcesRegistered.Inc()
			newSources = append(newSources, src)
		}
		metrics.ResultSummaries.WithLabelValues("relevant").Inc()
		parts = append(parts, verdict.Summary+" "+reg.Marker(src))
	}

	if ctx.Err() == nil && qctx.Err() != nil {
		log.Warn("Query timed out during summarization", "timeout", cfg.QueryTimeout)
		metrics.SearchOutcomes.WithLabelValues("timeout").Inc()
		return empty
	}
	if len(parts) == 0 {
		metrics.SearchOutcomes.WithLabelValues("no_contribution").Inc()
		return empty
	}

	metrics.SearchOutcomes.WithLabelValues("contributed").Inc()
	log.Info("Query contributed", "results", len(parts), "new_sources", len(newSources))
	return SearchOutcome{
		Query:      q,
		Summary:    strings.Join(parts, "\n\n"),
		NewSources: newSources,
	}
}
