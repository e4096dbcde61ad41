package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mikeboe/deep-research/pkg/research"
)

// Providers understood by pkg/clients.
var knownLLMProviders = []string{"gemini", "openai", "openrouter", "deepseek", "ollama", "anthropic"}

// Search backends understood by pkg/research/tools.
var knownSearchProviders = []string{"google", "tavily", "arxiv"}

type Config struct {
	LLMProvider string `mapstructure:"llm_provider"`
	LLMAPIKey   string `mapstructure:"llm_api_key"`
	LLMBaseURL  string `mapstructure:"llm_base_url"`

	// GeminiAPIKey serves Google Search grounding when the LLM provider is not gemini.
	GeminiAPIKey string `mapstructure:"gemini_api_key"`

	QueryGeneratorModel string `mapstructure:"query_generator_model"`
	SummarizerModel     string `mapstructure:"summarizer_model"`
	ReflectionModel     string `mapstructure:"reflection_model"`
	AnswerModel         string `mapstructure:"answer_model"`

	InitialQueries     int           `mapstructure:"number_of_initial_queries"`
	MaxResearchLoops   int           `mapstructure:"max_research_loops"`
	MaxResultsPerQuery int           `mapstructure:"max_results_per_query"`
	QueryTimeout       time.Duration `mapstructure:"query_timeout"`
	MaxConcurrency     int           `mapstructure:"max_concurrency"`

	SearchProviders []string `mapstructure:"search_providers"`
	SearchModel     string   `mapstructure:"search_model"`
	TavilyAPIKey    string   `mapstructure:"tavily_api_key"`
	TavilyDepth     string   `mapstructure:"tavily_depth"`

	// Result content is clipped to the first chunk before summarization.
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`

	DatabaseURL      string `mapstructure:"database_url"`
	DatabaseMaxConns int    `mapstructure:"database_max_conns"`
	Port             string `mapstructure:"port"`
}

// env names per key. The first variable that is set wins.
var envBindings = map[string][]string{
	"llm_provider":              {"LLM_PROVIDER"},
	"llm_api_key":               {"LLM_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"llm_base_url":              {"LLM_BASE_URL"},
	"gemini_api_key":            {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"query_generator_model":     {"QUERY_GENERATOR_MODEL"},
	"summarizer_model":          {"SUMMARIZER_MODEL"},
	"reflection_model":          {"REFLECTION_MODEL"},
	"answer_model":              {"ANSWER_MODEL"},
	"number_of_initial_queries": {"NUMBER_OF_INITIAL_QUERIES"},
	"max_research_loops":        {"MAX_RESEARCH_LOOPS"},
	"max_results_per_query":     {"MAX_RESULTS_PER_QUERY"},
	"query_timeout":             {"QUERY_TIMEOUT"},
	"max_concurrency":           {"MAX_CONCURRENCY"},
	"search_providers":          {"SEARCH_PROVIDERS"},
	"search_model":              {"SEARCH_MODEL"},
	"tavily_api_key":            {"TAVILY_API_KEY"},
	"tavily_depth":              {"TAVILY_DEPTH"},
	"chunk_size":                {"CHUNK_SIZE"},
	"chunk_overlap":             {"CHUNK_OVERLAP"},
	"database_url":              {"DATABASE_URL"},
	"database_max_conns":        {"DATABASE_MAX_CONNS"},
	"port":                      {"PORT"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm_provider", "gemini")
	v.SetDefault("query_generator_model", "gemini-2.0-flash")
	v.SetDefault("summarizer_model", "gemini-2.0-flash")
	v.SetDefault("reflection_model", "gemini-2.5-flash")
	v.SetDefault("answer_model", "gemini-2.5-pro")
	v.SetDefault("number_of_initial_queries", 3)
	v.SetDefault("max_research_loops", 2)
	v.SetDefault("max_results_per_query", 5)
	v.SetDefault("query_timeout", "45s")
	v.SetDefault("max_concurrency", 0)
	v.SetDefault("search_providers", []string{"google"})
	v.SetDefault("search_model", "gemini-2.0-flash")
	v.SetDefault("tavily_depth", "basic")
	v.SetDefault("chunk_size", 4000)
	v.SetDefault("chunk_overlap", 200)
	v.SetDefault("database_max_conns", 10)
	v.SetDefault("port", "3000")
}

// Load reads defaults, the optional config file at path (YAML, JSON or TOML by
// extension) and the environment, in increasing priority.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.SearchProviders = normalizeList(cfg.SearchProviders)
	return &cfg, nil
}

// values like "google, tavily" arrive as one element when set from a file.
func normalizeList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks provider names, credentials, model identifiers and run bounds.
func (c *Config) Validate() error {
	if !slices.Contains(knownLLMProviders, c.LLMProvider) {
		return fmt.Errorf("%w: unknown LLM provider %q", research.ErrInvalidConfig, c.LLMProvider)
	}
	if c.LLMProvider != "ollama" && strings.TrimSpace(c.LLMAPIKey) == "" {
		return fmt.Errorf("%w: LLM_API_KEY is required for provider %s", research.ErrInvalidConfig, c.LLMProvider)
	}
	models := map[string]string{
		"query generator": c.QueryGeneratorModel,
		"summarizer":      c.SummarizerModel,
		"reflection":      c.ReflectionModel,
		"answer":          c.AnswerModel,
	}
	for role, id := range models {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: %s model is empty", research.ErrInvalidConfig, role)
		}
	}

	if len(c.SearchProviders) == 0 {
		return fmt.Errorf("%w: no search providers configured", research.ErrInvalidConfig)
	}
	for _, p := range c.SearchProviders {
		if !slices.Contains(knownSearchProviders, p) {
			return fmt.Errorf("%w: unknown search provider %q", research.ErrInvalidConfig, p)
		}
	}
	if slices.Contains(c.SearchProviders, "tavily") && strings.TrimSpace(c.TavilyAPIKey) == "" {
		return fmt.Errorf("%w: TAVILY_API_KEY is required for the tavily provider", research.ErrInvalidConfig)
	}
	if slices.Contains(c.SearchProviders, "google") && c.GoogleSearchKey() == "" {
		return fmt.Errorf("%w: google search needs a Gemini API key", research.ErrInvalidConfig)
	}
	if c.DatabaseMaxConns < 0 {
		return fmt.Errorf("%w: database max conns must not be negative", research.ErrInvalidConfig)
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk size %d / overlap %d", research.ErrInvalidConfig, c.ChunkSize, c.ChunkOverlap)
	}

	return c.ResearchConfig().Validate()
}

// GoogleSearchKey is the key used for Google Search grounding.
func (c *Config) GoogleSearchKey() string {
	if c.GeminiAPIKey != "" {
		return c.GeminiAPIKey
	}
	if c.LLMProvider == "gemini" {
		return c.LLMAPIKey
	}
	return ""
}

// ResearchConfig projects the run bounds used by the engine.
func (c *Config) ResearchConfig() research.Config {
	return research.Config{
		InitialQueryCount:  c.InitialQueries,
		MaxResearchLoops:   c.MaxResearchLoops,
		MaxResultsPerQuery: c.MaxResultsPerQuery,
		MaxConcurrency:     c.MaxConcurrency,
		QueryTimeout:       c.QueryTimeout,
	}
}
