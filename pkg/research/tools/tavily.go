package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mikeboe/deep-research/pkg/metrics"
	"github.com/mikeboe/deep-research/pkg/research"
)

const defaultTavilyEndpoint = "https://api.tavily.com/search"

// Tavily calls the Tavily search API.
type Tavily struct {
	APIKey   string
	Endpoint string
	// Depth controls Tavily's search_depth parameter (basic or advanced).
	Depth string
	// RetryDelay is the pause before the single retry after a 429.
	RetryDelay time.Duration
	client     *http.Client
	limiter    *rate.Limiter
}

// NewTavily constructs a Tavily search provider.
func NewTavily(apiKey, depth string) *Tavily {
	return NewTavilyWithClient(apiKey, depth, &http.Client{Timeout: 15 * time.Second})
}

// NewTavilyWithClient constructs a Tavily search provider using the supplied HTTP client.
func NewTavilyWithClient(apiKey, depth string, client *http.Client) *Tavily {
	if depth == "" {
		depth = "basic"
	}
	return &Tavily{
		APIKey:     apiKey,
		Endpoint:   defaultTavilyEndpoint,
		Depth:      depth,
		RetryDelay: time.Second,
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
	}
}

// Search posts a query to Tavily. A 429 is retried once after RetryDelay.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]research.SearchResult, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"search_depth": t.Depth,
		"max_results":  maxResults,
	})
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	for attempt := 1; ; attempt++ {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+t.APIKey)

		resp, err = t.client.Do(req)
		if err != nil {
			metrics.ProviderRequests.WithLabelValues("tavily", "error").Inc()
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt == 2 {
			break
		}
		resp.Body.Close()
		metrics.ProviderRequests.WithLabelValues("tavily", "429").Inc()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t.RetryDelay):
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ProviderRequests.WithLabelValues("tavily", strconv.Itoa(resp.StatusCode)).Inc()
		return nil, fmt.Errorf("tavily http %d", resp.StatusCode)
	}
	metrics.ProviderRequests.WithLabelValues("tavily", "ok").Inc()

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}

	results := make([]research.SearchResult, 0, len(response.Results))
	for _, r := range response.Results {
		results = append(results, research.SearchResult{Title: r.Title, URL: r.URL, Content: r.Content})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}
