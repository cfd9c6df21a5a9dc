package types

import (
	"context"

	"github.com/xhad/sectionrag/internal/models"
)

// Core interfaces

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Tokenizer must account tokens the way the embedding model does.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type Chunker interface {
	Split(text string, maxTokens int) ([]string, error)
}

// SectionStore persists rows keyed by (file_path, title) and ranks them by
// cosine similarity.
type SectionStore interface {
	Init(ctx context.Context) error
	Upsert(ctx context.Context, row models.StoredRow) error
	Query(ctx context.Context, embedding []float32, limit int) ([]models.SearchResult, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, filePath string) error
	Dimension() int
	Close()
}
