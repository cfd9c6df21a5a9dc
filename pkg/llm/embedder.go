package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/xhad/sectionrag/internal/models"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// EmbedderConfig represents the configuration for an embedding client.
type EmbedderConfig struct {
	Provider  string
	Model     string
	BaseURL   string // Ollama server URL or OpenAI-compatible endpoint
	APIKey    string
	RateLimit float64 // requests per second, 0 disables limiting
	Burst     int
}

// Embedder calls an embedding model through langchaingo.
type Embedder struct {
	config  EmbedderConfig
	client  embeddings.Embedder
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func applyEmbedderDefaults(config *EmbedderConfig) {
	if config.Provider == "" {
		config.Provider = ProviderOpenAI
	}
	if config.Model == "" {
		switch config.Provider {
		case ProviderOllama:
			config.Model = "nomic-embed-text:latest"
		default:
			config.Model = "text-embedding-3-small"
		}
	}
	if config.Provider == ProviderOllama && config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
}

func NewEmbedderWithConfig(config EmbedderConfig, logger zerolog.Logger) (*Embedder, error) {
	applyEmbedderDefaults(&config)

	var client embeddings.EmbedderClient
	switch config.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithEmbeddingModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai client: %w", err)
		}
		client = llm
	case ProviderOllama:
		llm, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
		}
		client = llm
	default:
		return nil, &models.ValidationError{
			Field:   "embedder.provider",
			Message: fmt.Sprintf("unknown provider %q", config.Provider),
		}
	}

	emb, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return NewEmbedderWithClient(config, emb, logger), nil
}

// NewEmbedderWithClient wraps an existing langchaingo embedder.
func NewEmbedderWithClient(config EmbedderConfig, client embeddings.Embedder, logger zerolog.Logger) *Embedder {
	applyEmbedderDefaults(&config)

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst)
	}

	return &Embedder{
		config:  config,
		client:  client,
		limiter: limiter,
		logger:  logger,
	}
}

// Embed returns the embedding of text. Every failure wraps
// models.ErrEmbeddingService.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", models.ErrEmbeddingService, err)
		}
	}

	start := time.Now()
	vec, err := e.client.EmbedQuery(ctx, text)
	duration := time.Since(start)

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrEmbeddingService, e.config.Model, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty embedding", models.ErrEmbeddingService, e.config.Model)
	}

	e.logger.Debug().
		Str("model", e.config.Model).
		Int("dim", len(vec)).
		Dur("duration", duration).
		Msg("generated embedding")

	return vec, nil
}

func (e *Embedder) Model() string {
	return e.config.Model
}
