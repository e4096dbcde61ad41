package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

type searchFunc func(ctx context.Context, query string, maxResults int) ([]research.SearchResult, error)

func (f searchFunc) Search(ctx context.Context, query string, maxResults int) ([]research.SearchResult, error) {
	return f(ctx, query, maxResults)
}

func fixed(results ...research.SearchResult) searchFunc {
	return func(context.Context, string, int) ([]research.SearchResult, error) {
		return results, nil
	}
}

func failing(msg string) searchFunc {
	return func(context.Context, string, int) ([]research.SearchResult, error) {
		return nil, errors.New(msg)
	}
}

func TestChainDeduplicatesByCanonicalURL(t *testing.T) {
	chain := NewChain(nil,
		Named{Name: "first", Searcher: fixed(
			research.SearchResult{Title: "A", URL: "https://www.example.com/a/", Content: "one"},
			research.SearchResult{Title: "B", URL: "https://example.com/b", Content: "two"},
		)},
		Named{Name: "second", Searcher: fixed(
			research.SearchResult{Title: "A again", URL: "https://example.com/a?utm_source=x#top", Content: "dup"},
			research.SearchResult{Title: "C", URL: "https://example.org/c", Content: "three"},
		)},
	)

	results, err := chain.Search(context.Background(), "q", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{results[0].Title, results[1].Title, results[2].Title})
}

func TestChainStopsAtMaxResults(t *testing.T) {
	called := false
	chain := NewChain(nil,
		Named{Name: "first", Searcher: fixed(
			research.SearchResult{URL: "https://a.example"},
			research.SearchResult{URL: "https://b.example"},
		)},
		Named{Name: "second", Searcher: searchFunc(func(context.Context, string, int) ([]research.SearchResult, error) {
			called = true
			return nil, nil
		})},
	)

	results, err := chain.Search(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.False(t, called, "later providers should not be queried once the cap is reached")
}

func TestChainSkipsFailingProvider(t *testing.T) {
	chain := NewChain(nil,
		Named{Name: "broken", Searcher: failing("boom")},
		Named{Name: "ok", Searcher: fixed(research.SearchResult{URL: "https://a.example", Content: "alpha"})},
	)

	results, err := chain.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestChainFailsWhenEveryProviderFails(t *testing.T) {
	chain := NewChain(nil,
		Named{Name: "a", Searcher: failing("first down")},
		Named{Name: "b", Searcher: failing("second down")},
	)

	_, err := chain.Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first down")
	assert.Contains(t, err.Error(), "second down")
}

func TestChainEmptyResultsIsNotAnError(t *testing.T) {
	chain := NewChain(nil, Named{Name: "empty", Searcher: fixed()})

	results, err := chain.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestGroundingResults(t *testing.T) {
	meta := &genai.GroundingMetadata{
		GroundingChunks: []*genai.GroundingChunk{
			{Web: &genai.GroundingChunkWeb{Title: "example.com", URI: "https://example.com/a"}},
			{Web: &genai.GroundingChunkWeb{Title: "other.org", URI: "https://other.org/b"}},
			{},
		},
		GroundingSupports: []*genai.GroundingSupport{
			{Segment: &genai.Segment{Text: "First claim."}, GroundingChunkIndices: []int32{0}},
			{Segment: &genai.Segment{Text: "Second claim."}, GroundingChunkIndices: []int32{0, 1}},
			{Segment: &genai.Segment{Text: "  "}, GroundingChunkIndices: []int32{1}},
		},
	}

	results := groundingResults(meta, 5)
	require.Len(t, results, 2)
	assert.Equal(t, research.SearchResult{Title: "example.com", URL: "https://example.com/a", Content: "First claim. Second claim."}, results[0])
	assert.Equal(t, "Second claim.", results[1].Content)

	assert.Len(t, groundingResults(meta, 1), 1)
}

func TestNewBuildsChainForSeveralProviders(t *testing.T) {
	s, err := New(context.Background(), &config.Config{
		SearchProviders: []string{"tavily", "arxiv"},
		TavilyAPIKey:    "test-key",
	}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Chain{}, s)

	s, err = New(context.Background(), &config.Config{SearchProviders: []string{"arxiv"}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Arxiv{}, s)

	_, err = New(context.Background(), &config.Config{SearchProviders: []string{"bing"}}, nil)
	assert.ErrorIs(t, err, research.ErrInvalidConfig)
}
