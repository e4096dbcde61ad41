package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// OpenAI-compatible endpoints used when no base URL is configured.
const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DeepSeekBaseURL   = "https://api.deepseek.com/v1"
)

// Options selects a provider and model for one client.
type Options struct {
	Provider string
	APIKey   string
	// BaseURL overrides the provider endpoint. Ollama uses it as the server URL.
	BaseURL string
	Model   string
}

// New returns a langchaingo model for the given provider.
func New(ctx context.Context, opts Options) (llms.Model, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: model name is empty", research.ErrInvalidConfig)
	}

	switch opts.Provider {
	case "gemini":
		// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
		llm, err := googleai.New(ctx, googleai.WithAPIKey(opts.APIKey), googleai.WithDefaultModel(opts.Model))
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return llm, nil
	case "openai", "openrouter", "deepseek":
		return newOpenAICompatible(opts)
	case "ollama":
		ollamaOpts := []ollama.Option{ollama.WithModel(opts.Model)}
		if opts.BaseURL != "" {
			ollamaOpts = append(ollamaOpts, ollama.WithServerURL(opts.BaseURL))
		}
		llm, err := ollama.New(ollamaOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return llm, nil
	case "anthropic":
		anthropicOpts := []anthropic.Option{anthropic.WithToken(opts.APIKey), anthropic.WithModel(opts.Model)}
		if opts.BaseURL != "" {
			anthropicOpts = append(anthropicOpts, anthropic.WithBaseURL(opts.BaseURL))
		}
		llm, err := anthropic.New(anthropicOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Anthropic client: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider %q", research.ErrInvalidConfig, opts.Provider)
	}
}

func newOpenAICompatible(opts Options) (llms.Model, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		switch opts.Provider {
		case "openrouter":
			baseURL = OpenRouterBaseURL
		case "deepseek":
			baseURL = DeepSeekBaseURL
		}
	}

	openaiOpts := []openai.Option{openai.WithToken(opts.APIKey), openai.WithModel(opts.Model)}
	if baseURL != "" {
		openaiOpts = append(openaiOpts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(openaiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", opts.Provider, err)
	}
	return llm, nil
}

// NewModels builds one client per research stage. Stages sharing a model
// identifier share a client.
func NewModels(ctx context.Context, cfg *config.Config) (research.Models, error) {
	cache := make(map[string]llms.Model)
	get := func(model string) (llms.Model, error) {
		if llm, ok := cache[model]; ok {
			return llm, nil
		}
		llm, err := New(ctx, Options{
			Provider: cfg.LLMProvider,
			APIKey:   cfg.LLMAPIKey,
			BaseURL:  cfg.LLMBaseURL,
			Model:    model,
		})
		if err != nil {
			return nil, err
		}
		cache[model] = llm
		return llm, nil
	}

	var (
		models research.Models
		err    error
	)
	if models.QueryGenerator, err = get(cfg.QueryGeneratorModel); err != nil {
		return research.Models{}, err
	}
	if models.Summarizer, err = get(cfg.SummarizerModel); err != nil {
		return research.Models{}, err
	}
	if models.Reflector, err = get(cfg.ReflectionModel); err != nil {
		return research.Models{}, err
	}
	if models.Answerer, err = get(cfg.AnswerModel); err != nil {
		return research.Models{}, err
	}
	return models, nil
}
