package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/sectionrag/internal/models"
	"github.com/xhad/sectionrag/internal/testutil"
	"github.com/xhad/sectionrag/pkg/pipeline"
	"github.com/xhad/sectionrag/pkg/store"
)

func TestSearch_FewerRowsThanLimit(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(dim, 0)
	emb := &testutil.HashEmbedder{Dim: dim}
	c := newCoordinator(pipeline.CoordinatorConfig{}, emb, mem)

	_, err := c.IngestMany(ctx, []models.Section{
		{FilePath: "a.md", Title: "one", Content: "alpha"},
		{FilePath: "b.md", Title: "two", Content: "beta"},
	})
	require.NoError(t, err)

	s := pipeline.NewSearcher(pipeline.SearcherConfig{}, emb, mem, zerolog.Nop())
	results, err := s.Search(ctx, "anything", 5)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)
}

func TestSearch_ExactMatchRanksFirst(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(dim, 0)

	sections := []models.Section{
		{FilePath: "a.md", Title: "one", Content: "alpha"},
		{FilePath: "a.md", Title: "two", Content: "beta"},
		{FilePath: "b.md", Title: "three", Content: "gamma"},
	}
	for _, section := range sections {
		require.NoError(t, mem.Upsert(ctx, models.StoredRow{
			FilePath:  section.FilePath,
			Title:     section.Title,
			Content:   section.Content,
			Embedding: testutil.HashVector(section.EmbeddingContent(), dim),
		}))
	}

	s := pipeline.NewSearcher(pipeline.SearcherConfig{}, &testutil.HashEmbedder{Dim: dim}, mem, zerolog.Nop())
	results, err := s.Search(ctx, sections[1].EmbeddingContent(), 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "two", results[0].Title)
	assert.Equal(t, "a.md", results[0].FilePath)
	assert.Equal(t, "beta", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
}

func TestSearch_DefaultLimit(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(dim, 0)
	for i := 0; i < 4; i++ {
		require.NoError(t, mem.Upsert(ctx, models.StoredRow{
			FilePath:  "a.md",
			Title:     string(rune('a' + i)),
			Content:   "x",
			Embedding: testutil.Basis(dim, i),
		}))
	}

	s := pipeline.NewSearcher(pipeline.SearcherConfig{DefaultLimit: 2}, &testutil.HashEmbedder{Dim: dim}, mem, zerolog.Nop())
	results, err := s.Search(ctx, "query", 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_EmptyStore(t *testing.T) {
	s := pipeline.NewSearcher(pipeline.SearcherConfig{}, &testutil.HashEmbedder{Dim: dim}, store.NewMemory(dim, 0), zerolog.Nop())
	results, err := s.Search(context.Background(), "query", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_Errors(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(dim, 0)

	s := pipeline.NewSearcher(pipeline.SearcherConfig{}, &testutil.HashEmbedder{Dim: dim}, mem, zerolog.Nop())
	_, err := s.Search(ctx, "   ", 5)
	assert.True(t, errors.Is(err, models.ErrValidation))

	failing := testutil.FuncEmbedder{Fn: func(context.Context, string) ([]float32, error) {
		return nil, errors.New("503 service unavailable")
	}}
	s = pipeline.NewSearcher(pipeline.SearcherConfig{}, failing, mem, zerolog.Nop())
	_, err = s.Search(ctx, "query", 5)
	assert.True(t, errors.Is(err, models.ErrEmbeddingService))

	down := testutil.DownStore{SectionStore: mem}
	s = pipeline.NewSearcher(pipeline.SearcherConfig{}, &testutil.HashEmbedder{Dim: dim}, down, zerolog.Nop())
	_, err = s.Search(ctx, "query", 5)
	assert.True(t, errors.Is(err, models.ErrStorageUnavailable))

	s = pipeline.NewSearcher(pipeline.SearcherConfig{}, &testutil.HashEmbedder{Dim: dim * 2}, mem, zerolog.Nop())
	_, err = s.Search(ctx, "query", 5)
	assert.True(t, errors.Is(err, models.ErrValidation))
}
