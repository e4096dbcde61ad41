package research

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Config holds the bounds of a research run.
type Config struct {
	InitialQueryCount  int
	MaxResearchLoops   int
	MaxResultsPerQuery int
	// MaxConcurrency caps parallel search branches. Zero runs every query of a round at once.
	MaxConcurrency int
	QueryTimeout   time.Duration
}

// DefaultConfig mirrors the defaults used by the binaries.
func DefaultConfig() Config {
	return Config{
		InitialQueryCount:  3,
		MaxResearchLoops:   2,
		MaxResultsPerQuery: 5,
		QueryTimeout:       45 * time.Second,
	}
}

// Validate rejects non-positive counts and timeouts.
func (c Config) Validate() error {
	switch {
	case c.InitialQueryCount <= 0:
		return fmt.Errorf("%w: initial query count must be positive, got %d", ErrInvalidConfig, c.InitialQueryCount)
	case c.MaxResearchLoops <= 0:
		return fmt.Errorf("%w: max research loops must be positive, got %d", ErrInvalidConfig, c.MaxResearchLoops)
	case c.MaxResultsPerQuery <= 0:
		return fmt.Errorf("%w: max results per query must be positive, got %d", ErrInvalidConfig, c.MaxResultsPerQuery)
	case c.MaxConcurrency < 0:
		return fmt.Errorf("%w: max concurrency must not be negative, got %d", ErrInvalidConfig, c.MaxConcurrency)
	case c.QueryTimeout <= 0:
		return fmt.Errorf("%w: query timeout must be positive, got %s", ErrInvalidConfig, c.QueryTimeout)
	}
	return nil
}

// Overrides adjusts a Config for a single run. Zero keeps the configured value.
type Overrides struct {
	InitialQueryCount  int `json:"initial_query_count,omitempty"`
	MaxResearchLoops   int `json:"max_research_loops,omitempty"`
	MaxResultsPerQuery int `json:"max_results_per_query,omitempty"`
}

// Validate rejects negative overrides.
func (o Overrides) Validate() error {
	if o.InitialQueryCount < 0 || o.MaxResearchLoops < 0 || o.MaxResultsPerQuery < 0 {
		return fmt.Errorf("%w: overrides must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Apply returns cfg with the non-zero overrides applied. Negative values are
// carried over so that Validate rejects them.
func (o Overrides) Apply(cfg Config) Config {
	if o.InitialQueryCount != 0 {
		cfg.InitialQueryCount = o.InitialQueryCount
	}
	if o.MaxResearchLoops != 0 {
		cfg.MaxResearchLoops = o.MaxResearchLoops
	}
	if o.MaxResultsPerQuery != 0 {
		cfg.MaxResultsPerQuery = o.MaxResultsPerQuery
	}
	return cfg
}

// Models are the language model handles used by each stage.
type Models struct {
	QueryGenerator llms.Model
	Summarizer     llms.Model
	Reflector      llms.Model
	Answerer       llms.Model
}

func (m Models) validate() error {
	if m.QueryGenerator == nil || m.Summarizer == nil || m.Reflector == nil || m.Answerer == nil {
		return fmt.Errorf("%w: every stage needs a model", ErrInvalidConfig)
	}
	return nil
}

// SearchResult represents a single search result
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Searcher runs one query against a search backend. An empty result list is
// a valid response, not an error.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// Query is a single search query and the reason it was issued.
type Query struct {
	Text      string `json:"text"`
	Rationale string `json:"rationale"`
}

// Source is a distinct piece of evidence, keyed by canonical URL.
type Source struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Result is what a research run hands back to its caller.
type Result struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	Loops     int      `json:"loops"`
	Queries   []Query  `json:"queries"`
	Summaries []string `json:"-"`
}

// Stage names a state of the research state machine.
type Stage string

const (
	StageInit              Stage = "init"
	StageGeneratingQueries Stage = "generating_queries"
	StageSearching         Stage = "searching"
	StageReflecting        Stage = "reflecting"
	StageFinalizing        Stage = "finalizing"
	StageDone              Stage = "done"
)

// Event is emitted on every state transition.
type Event struct {
	Stage        Stage   `json:"stage"`
	Loop         int     `json:"loop"`
	Queries      []Query `json:"queries,omitempty"`
	Summaries    int     `json:"summaries"`
	Sources      int     `json:"sources"`
	Sufficient   *bool   `json:"sufficient,omitempty"`
	KnowledgeGap string  `json:"knowledge_gap,omitempty"`
	Result       *Result `json:"result,omitempty"`
}
