package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/mikeboe/deep-research/pkg/metrics"
	"github.com/mikeboe/deep-research/pkg/research"
)

const googleSearchPrompt = `Search the web for the most recent, credible information on the following query and report the findings factually. Only include information found in the search results.

Query: %s`

// Grounding chunks point at per-response redirect links rather than the page.
const groundingRedirectPath = "/grounding-api-redirect/"

// GoogleSearch uses Gemini's Google Search grounding as a search backend.
// Each grounding chunk becomes one result whose content is the text of the
// response segments it supports.
type GoogleSearch struct {
	client *genai.Client
	model  string
	// redirects resolves grounding redirect links without following them.
	redirects *http.Client
}

func newRedirectClient(base *http.Client) *http.Client {
	c := &http.Client{Timeout: 10 * time.Second}
	if base != nil {
		*c = *base
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

// NewGoogleSearch creates a Gemini API client for grounded search.
func NewGoogleSearch(ctx context.Context, apiKey, model string) (*GoogleSearch, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("google search: API key is missing")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}
	return &GoogleSearch{client: client, model: model, redirects: newRedirectClient(nil)}, nil
}

// Search runs one grounded generation and returns its grounding chunks as results.
func (g *GoogleSearch) Search(ctx context.Context, query string, maxResults int) ([]research.SearchResult, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(fmt.Sprintf(googleSearchPrompt, query)),
		&genai.GenerateContentConfig{
			Tools:       []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
			Temperature: genai.Ptr[float32](0),
		})
	if err != nil {
		metrics.ProviderRequests.WithLabelValues("google", "error").Inc()
		return nil, fmt.Errorf("google search: %w", err)
	}
	metrics.ProviderRequests.WithLabelValues("google", "ok").Inc()

	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return []research.SearchResult{}, nil
	}
	results := groundingResults(resp.Candidates[0].GroundingMetadata, maxResults)
	g.resolveRedirects(ctx, results)
	return results, nil
}

// resolveRedirects replaces grounding redirect links with their targets so
// that the same page found by different queries shares one URL. A link that
// cannot be resolved is kept as is.
func (g *GoogleSearch) resolveRedirects(ctx context.Context, results []research.SearchResult) {
	if g.redirects == nil {
		return
	}
	var eg errgroup.Group
	for i := range results {
		if !strings.Contains(results[i].URL, groundingRedirectPath) {
			continue
		}
		eg.Go(func() error {
			if target, ok := g.redirectTarget(ctx, results[i].URL); ok {
				results[i].URL = target
			}
			return nil
		})
	}
	_ = eg.Wait()
}

func (g *GoogleSearch) redirectTarget(ctx context.Context, link string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return "", false
	}
	resp, err := g.redirects.Do(req)
	if err != nil {
		return "", false
	}
	resp.Body.Close()

	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return "", false
	}
	loc, err := resp.Location()
	if err != nil {
		return "", false
	}
	return loc.String(), true
}

func groundingResults(meta *genai.GroundingMetadata, maxResults int) []research.SearchResult {
	segments := make(map[int][]string)
	for _, support := range meta.GroundingSupports {
		if support == nil || support.Segment == nil {
			continue
		}
		text := strings.TrimSpace(support.Segment.Text)
		if text == "" {
			continue
		}
		for _, idx := range support.GroundingChunkIndices {
			segments[int(idx)] = append(segments[int(idx)], text)
		}
	}

	results := make([]research.SearchResult, 0, len(meta.GroundingChunks))
	for i, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		results = append(results, research.SearchResult{
			Title:   chunk.Web.Title,
			URL:     chunk.Web.URI,
			Content: strings.Join(segments[i], " "),
		})
		if maxResults > 0 && len(results) >= maxResults {
			break
		}
	}
	return results
}
