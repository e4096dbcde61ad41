package research

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// scriptedModel answers each call with respond(n, prompt), n counting from 1.
type scriptedModel struct {
	mu      sync.Mutex
	prompts []string
	respond func(n int, prompt string) (string, error)
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := userPrompt(messages)

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	n := len(m.prompts)
	m.mu.Unlock()

	content, err := m.respond(n, prompt)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func userPrompt(messages []llms.MessageContent) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != llms.ChatMessageTypeHuman {
			continue
		}
		for _, part := range messages[i].Parts {
			if text, ok := part.(llms.TextContent); ok {
				return text.Text
			}
		}
	}
	return ""
}

func constant(content string) *scriptedModel {
	return &scriptedModel{respond: func(int, string) (string, error) { return content, nil }}
}

func sequence(contents ...string) *scriptedModel {
	return &scriptedModel{respond: func(n int, _ string) (string, error) {
		if n > len(contents) {
			return contents[len(contents)-1], nil
		}
		return contents[n-1], nil
	}}
}

// relevantSummarizer marks every result relevant and summarizes it by title.
func relevantSummarizer() *scriptedModel {
	return &scriptedModel{respond: func(_ int, prompt string) (string, error) {
		return `{"relevant":true,"summary":"Finding from ` + promptField(prompt, "Result title: ") + `."}`, nil
	}}
}

// echoAnswerer answers with the summaries section of the prompt, so every
// marker gathered appears in summary order.
func echoAnswerer() *scriptedModel {
	return &scriptedModel{respond: func(_ int, prompt string) (string, error) {
		_, summaries, _ := strings.Cut(prompt, "Summaries:\n")
		return summaries, nil
	}}
}

func promptField(prompt, prefix string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if v, ok := strings.CutPrefix(line, prefix); ok {
			return v
		}
	}
	return ""
}

// fakeSearcher returns canned results per query text.
type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]SearchResult
	errs    map[string]error
	delays  map[string]time.Duration
	block   map[string]bool
	queries []string
}

func (s *fakeSearcher) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	delay := s.delays[query]
	blocked := s.block[query]
	s.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := s.errs[query]; err != nil {
		return nil, err
	}
	return s.results[query], nil
}

func (s *fakeSearcher) searched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func result(title, url string) SearchResult {
	return SearchResult{Title: title, URL: url, Content: "Content about " + title}
}

const (
	sufficientJSON   = `{"is_sufficient":true,"knowledge_gap":"","follow_up_queries":[]}`
	insufficientJSON = `{"is_sufficient":false,"knowledge_gap":"missing costs","follow_up_queries":["battery cost per kWh"]}`
)

type harness struct {
	queryGen   *scriptedModel
	summarizer *scriptedModel
	reflector  *scriptedModel
	answerer   *scriptedModel
	searcher   *fakeSearcher
	cfg        Config
	events     []Event
	mu         sync.Mutex
}

func newHarness() *harness {
	return &harness{
		queryGen:   constant(`{"rationale":"cover basics","queries":["q1","q2"]}`),
		summarizer: relevantSummarizer(),
		reflector:  constant(sufficientJSON),
		answerer:   echoAnswerer(),
		searcher:   &fakeSearcher{results: map[string][]SearchResult{}},
		cfg: Config{
			InitialQueryCount:  2,
			MaxResearchLoops:   1,
			MaxResultsPerQuery: 5,
			QueryTimeout:       2 * time.Second,
		},
	}
}

func (h *harness) engine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithRunTag("t1"),
		WithRetryBackoff(0),
		WithClock(func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }),
		WithEventHandler(func(ev Event) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.events = append(h.events, ev)
		}),
	}
	e, err := NewEngine(h.cfg, Models{
		QueryGenerator: h.queryGen,
		Summarizer:     h.summarizer,
		Reflector:      h.reflector,
		Answerer:       h.answerer,
	}, h.searcher, append(base, opts...)...)
	require.NoError(t, err)
	return e
}

func (h *harness) lastEvent() Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[len(h.events)-1]
}

func (h *harness) stages() []Stage {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Stage
	for _, ev := range h.events {
		out = append(out, ev.Stage)
	}
	return out
}
