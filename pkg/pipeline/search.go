package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/xhad/sectionrag/internal/models"
	"github.com/xhad/sectionrag/internal/types"
)

type SearcherConfig struct {
	DefaultLimit int
	EmbedTimeout time.Duration
	StoreTimeout time.Duration
}

// Searcher embeds a query and ranks stored sections against it.
type Searcher struct {
	config   SearcherConfig
	embedder types.Embedder
	store    types.SectionStore
	logger   zerolog.Logger
}

func NewSearcher(config SearcherConfig, embedder types.Embedder, store types.SectionStore, logger zerolog.Logger) *Searcher {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 5
	}
	if config.EmbedTimeout == 0 {
		config.EmbedTimeout = DefaultEmbedTimeout
	}
	if config.StoreTimeout == 0 {
		config.StoreTimeout = DefaultStoreTimeout
	}
	return &Searcher{config: config, embedder: embedder, store: store, logger: logger}
}

// Search returns at most limit sections, best match first.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &models.ValidationError{Field: "query", Message: "must not be empty"}
	}
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.config.EmbedTimeout)
	embedding, err := s.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		if !errors.Is(err, models.ErrEmbeddingService) {
			err = fmt.Errorf("%w: %w", models.ErrEmbeddingService, err)
		}
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	results, err := s.store.Query(storeCtx, embedding, limit)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("query", query).
		Int("limit", limit).
		Int("results", len(results)).
		Msg("searched sections")

	return results, nil
}
