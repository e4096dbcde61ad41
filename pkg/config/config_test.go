package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/research"
)

// clearEnv blanks every bound variable. Viper treats empty variables as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, envs := range envBindings {
		for _, name := range envs {
			t.Setenv(name, "")
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLMProvider)
	assert.Equal(t, "gemini-2.0-flash", cfg.QueryGeneratorModel)
	assert.Equal(t, "gemini-2.5-pro", cfg.AnswerModel)
	assert.Equal(t, 3, cfg.InitialQueries)
	assert.Equal(t, 2, cfg.MaxResearchLoops)
	assert.Equal(t, 5, cfg.MaxResultsPerQuery)
	assert.Equal(t, 45*time.Second, cfg.QueryTimeout)
	assert.Equal(t, []string{"google"}, cfg.SearchProviders)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 10, cfg.DatabaseMaxConns)
	assert.Equal(t, research.DefaultConfig(), cfg.ResearchConfig())

	err = cfg.Validate()
	assert.ErrorIs(t, err, research.ErrInvalidConfig, "no API key is set")
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("NUMBER_OF_INITIAL_QUERIES", "4")
	t.Setenv("QUERY_TIMEOUT", "10s")
	t.Setenv("SEARCH_PROVIDERS", "Google, tavily")
	t.Setenv("TAVILY_API_KEY", "tvly-key")
	t.Setenv("LLM_PROVIDER", " Gemini ")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLMProvider)
	assert.Equal(t, "gemini-key", cfg.LLMAPIKey, "falls back to GEMINI_API_KEY")
	assert.Equal(t, "gemini-key", cfg.GoogleSearchKey())
	assert.Equal(t, 4, cfg.InitialQueries)
	assert.Equal(t, 10*time.Second, cfg.QueryTimeout)
	assert.Equal(t, []string{"google", "tavily"}, cfg.SearchProviders)
	assert.NoError(t, cfg.Validate())
}

func TestLLMKeyTakesPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_API_KEY", "primary")
	t.Setenv("GOOGLE_API_KEY", "secondary")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.LLMAPIKey)
	assert.Equal(t, "secondary", cfg.GeminiAPIKey)
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_RESEARCH_LOOPS", "5")

	path := filepath.Join(t.TempDir(), "research.yaml")
	content := `llm_provider: ollama
query_generator_model: llama3
summarizer_model: llama3
reflection_model: llama3
answer_model: llama3
number_of_initial_queries: 6
max_research_loops: 1
search_providers: "arxiv"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.LLMProvider)
	assert.Equal(t, "llama3", cfg.AnswerModel)
	assert.Equal(t, 6, cfg.InitialQueries)
	assert.Equal(t, 5, cfg.MaxResearchLoops, "environment overrides the file")
	assert.Equal(t, []string{"arxiv"}, cfg.SearchProviders)
	assert.NoError(t, cfg.Validate(), "ollama needs no API key")
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			LLMProvider:         "openai",
			LLMAPIKey:           "sk-test",
			QueryGeneratorModel: "gpt-4o-mini",
			SummarizerModel:     "gpt-4o-mini",
			ReflectionModel:     "gpt-4o",
			AnswerModel:         "gpt-4o",
			InitialQueries:      3,
			MaxResearchLoops:    2,
			MaxResultsPerQuery:  5,
			QueryTimeout:        time.Second,
			SearchProviders:     []string{"arxiv"},
			ChunkSize:           1000,
			ChunkOverlap:        100,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown provider", mutate: func(c *Config) { c.LLMProvider = "mystery" }},
		{name: "missing key", mutate: func(c *Config) { c.LLMAPIKey = "" }},
		{name: "empty model", mutate: func(c *Config) { c.ReflectionModel = " " }},
		{name: "no search providers", mutate: func(c *Config) { c.SearchProviders = nil }},
		{name: "unknown search provider", mutate: func(c *Config) { c.SearchProviders = []string{"bing"} }},
		{name: "tavily without key", mutate: func(c *Config) { c.SearchProviders = []string{"tavily"} }},
		{name: "google without gemini key", mutate: func(c *Config) { c.SearchProviders = []string{"google"} }},
		{name: "overlap exceeds chunk", mutate: func(c *Config) { c.ChunkOverlap = 1000 }},
		{name: "negative pool size", mutate: func(c *Config) { c.DatabaseMaxConns = -1 }},
		{name: "zero loops", mutate: func(c *Config) { c.MaxResearchLoops = 0 }},
		{name: "zero timeout", mutate: func(c *Config) { c.QueryTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, research.ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestNormalizeList(t *testing.T) {
	got := normalizeList([]string{"Google, TAVILY", " ", "arxiv,"})
	assert.Equal(t, []string{"google", "tavily", "arxiv"}, got)
	assert.Nil(t, normalizeList(nil))
}
