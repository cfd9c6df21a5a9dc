package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Embedder config
	switch c.Embedder.Provider {
	case "openai", "ollama":
	default:
		errors = append(errors, ValidationError{
			Field:   "embedder.provider",
			Message: fmt.Sprintf("unknown provider %q, expected openai or ollama", c.Embedder.Provider),
		})
	}

	if c.Embedder.BaseURL != "" && !validURL(c.Embedder.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "embedder.base_url",
			Message: "invalid embedder base URL",
		})
	}

	if c.Embedder.Dimension < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedder.dimension",
			Message: "dimension must be positive",
		})
	}

	if c.Embedder.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "embedder.rate_limit",
			Message: "rate_limit cannot be negative",
		})
	}

	// Validate Database config
	switch c.Database.Backend {
	case "postgres":
		if c.Database.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "database URL is required for the postgres backend",
			})
		}
	case "chromem", "memory":
	default:
		errors = append(errors, ValidationError{
			Field:   "database.backend",
			Message: fmt.Sprintf("unknown backend %q, expected postgres, chromem or memory", c.Database.Backend),
		})
	}

	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	} else if c.Database.VectorDim != c.Embedder.Dimension {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: fmt.Sprintf("vector_dim %d does not match embedder dimension %d", c.Database.VectorDim, c.Embedder.Dimension),
		})
	}

	if c.Database.SearchLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.search_limit",
			Message: "search_limit must be positive",
		})
	}

	// Validate Processor config
	if c.Processor.MaxTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.max_tokens",
			Message: "max_tokens must be positive",
		})
	}

	if c.Ingest.Concurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "ingest.concurrency",
			Message: "concurrency must be positive",
		})
	}

	// Validate Scraper config
	if c.Scraper.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must be positive",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate Chat config
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 1 {
		errors = append(errors, ValidationError{
			Field:   "chat.temperature",
			Message: "temperature must be between 0 and 1",
		})
	}

	if c.Chat.MaxTokens < 1 || c.Chat.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "chat.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.format",
			Message: "format must be console or json",
		})
	}

	return errors
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
