package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/xhad/sectionrag/internal/models"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider        string
	Model           string
	Temperature     float64
	MaxTokens       int
	SystemTemplate  string
	ContextTemplate string
	BaseURL         string
	APIKey          string
}

// ChatEngine answers questions from retrieved sections.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
	logger zerolog.Logger
}

func applyChatDefaults(config *ChatConfig) error {
	if config.Provider == "" {
		config.Provider = ProviderOpenAI
	}
	if config.Model == "" {
		switch config.Provider {
		case ProviderOllama:
			config.Model = "mistral"
		default:
			config.Model = "gpt-4o-mini"
		}
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = "You are a helpful research assistant. Answer the question using only the provided sources and cite the files you used."
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = "Sources:\n%s\nQuestion: %s"
	}
	if config.Provider == ProviderOllama && config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	return nil
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig, logger zerolog.Logger) (*ChatEngine, error) {
	if err := applyChatDefaults(&config); err != nil {
		return nil, err
	}

	var model llms.Model
	var err error
	switch config.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		model, err = openai.New(opts...)
	case ProviderOllama:
		model, err = ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	default:
		return nil, fmt.Errorf("unknown chat provider %q", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{config: config, llm: model, logger: logger}, nil
}

// NewWithModel creates a ChatEngine around an existing model.
func NewWithModel(config ChatConfig, model llms.Model, logger zerolog.Logger) (*ChatEngine, error) {
	if err := applyChatDefaults(&config); err != nil {
		return nil, err
	}
	return &ChatEngine{config: config, llm: model, logger: logger}, nil
}

// Answer asks the model to answer question from results. When onChunk is set
// the response is streamed through it as it arrives.
func (ce *ChatEngine) Answer(ctx context.Context, question string, results []models.SearchResult, onChunk func(string)) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", &models.ValidationError{Field: "question", Message: "must not be empty"}
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(ce.config.ContextTemplate, formatContext(results), question)),
	}

	opts := []llms.CallOption{
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	}
	if onChunk != nil {
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			onChunk(string(chunk))
			return nil
		}))
	}

	response, err := ce.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if response == nil || len(response.Choices) == 0 {
		return "", errors.New("chat error: no response from LLM")
	}

	ce.logger.Debug().
		Str("model", ce.config.Model).
		Int("sources", len(results)).
		Msg("answered question")

	return response.Choices[0].Content, nil
}

func formatContext(results []models.SearchResult) string {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "Source: %s (%s)\n%s\n\n", r.FilePath, r.Title, r.Content)
	}
	return b.String()
}

// Sources lists the distinct file paths of results in rank order.
func Sources(results []models.SearchResult) []string {
	var sources []string
	seen := make(map[string]bool)

	for _, r := range results {
		if !seen[r.FilePath] {
			sources = append(sources, r.FilePath)
			seen[r.FilePath] = true
		}
	}

	return sources
}
