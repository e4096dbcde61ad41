package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mikeboe/deep-research/pkg/metrics"
	"github.com/mikeboe/deep-research/pkg/research"
)

const defaultArxivEndpoint = "https://export.arxiv.org/api/query"

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// Arxiv searches the arXiv export API.
type Arxiv struct {
	Endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewArxiv creates an arXiv searcher paced at one request every three
// seconds, as the API terms ask.
func NewArxiv() *Arxiv {
	return &Arxiv{
		Endpoint: defaultArxivEndpoint,
		client:   &http.Client{Timeout: 20 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(3*time.Second), 1),
	}
}

// NewArxivWithClient uses the supplied HTTP client and limiter. A nil limiter
// disables pacing.
func NewArxivWithClient(client *http.Client, limiter *rate.Limiter) *Arxiv {
	return &Arxiv{Endpoint: defaultArxivEndpoint, client: client, limiter: limiter}
}

// Search queries arXiv and maps each entry to a result whose content is the abstract.
func (a *Arxiv) Search(ctx context.Context, query string, maxResults int) ([]research.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(maxResults))
	params.Add("start", "0")
	apiURL := a.Endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build arxiv request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues("arxiv", "error").Inc()
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ProviderRequests.WithLabelValues("arxiv", strconv.Itoa(resp.StatusCode)).Inc()
		slog.Error("API returned non-200 status code", "provider", "arxiv", "status", resp.StatusCode)
		return nil, fmt.Errorf("arxiv http %d: %s", resp.StatusCode, string(body))
	}
	metrics.ProviderRequests.WithLabelValues("arxiv", "ok").Inc()

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}
	return feedResults(feed, maxResults), nil
}

func feedResults(feed ArxivFeed, maxResults int) []research.SearchResult {
	results := make([]research.SearchResult, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		title := collapseSpace(entry.Title)
		link := entryLink(entry)
		if title == "" || link == "" {
			continue
		}
		content := collapseSpace(entry.Summary)
		if entry.Published != "" && content != "" {
			content = "Published " + entry.Published + ". " + content
		}
		results = append(results, research.SearchResult{
			Title:   title,
			URL:     link,
			Content: content,
		})
		if len(results) >= maxResults {
			break
		}
	}
	return results
}

// entryLink prefers the abstract page over the PDF so both map to one source.
func entryLink(entry ArxivEntry) string {
	for _, link := range entry.Link {
		if link.Rel == "alternate" && link.Href != "" {
			return link.Href
		}
	}
	for _, link := range entry.Link {
		if link.Type == "application/pdf" && link.Href != "" {
			return link.Href
		}
	}
	return strings.TrimSpace(entry.ID)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
