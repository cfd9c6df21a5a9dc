package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/xhad/sectionrag/internal/models"
	"github.com/xhad/sectionrag/internal/types"
)

const (
	DefaultMaxTokens    = 8000
	DefaultConcurrency  = 5
	DefaultEmbedTimeout = 30 * time.Second
	DefaultStoreTimeout = 10 * time.Second
)

type CoordinatorConfig struct {
	MaxTokens    int
	Concurrency  int
	EmbedTimeout time.Duration
	StoreTimeout time.Duration

	// OnProgress is called once per finished section. Under IngestMany it
	// may be called from several goroutines at once.
	OnProgress func(models.SectionReport)
}

// Coordinator drives chunking, embedding and storage of sections.
type Coordinator struct {
	config   CoordinatorConfig
	chunker  types.Chunker
	embedder types.Embedder
	store    types.SectionStore
	logger   zerolog.Logger
}

func NewCoordinator(config CoordinatorConfig, chunker types.Chunker, embedder types.Embedder, store types.SectionStore, logger zerolog.Logger) *Coordinator {
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.EmbedTimeout == 0 {
		config.EmbedTimeout = DefaultEmbedTimeout
	}
	if config.StoreTimeout == 0 {
		config.StoreTimeout = DefaultStoreTimeout
	}

	return &Coordinator{
		config:   config,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Ingest splits section into chunks and embeds and stores them in order.
// A failing chunk is logged and recorded in the report; the remaining chunks
// are still processed. The error is non-nil only when the section itself is
// invalid.
func (c *Coordinator) Ingest(ctx context.Context, section models.Section) (models.SectionReport, error) {
	report := models.SectionReport{FilePath: section.FilePath, Title: section.Title}

	if err := section.Validate(); err != nil {
		return report, err
	}

	parts, err := c.chunker.Split(section.Content, c.config.MaxTokens)
	if err != nil {
		return report, err
	}

	chunks := models.NewChunks(section, parts)
	if len(chunks) == 0 {
		c.logger.Debug().
			Str("file_path", section.FilePath).
			Str("title", section.Title).
			Msg("section has no content, nothing to ingest")
		return report, nil
	}

	c.logger.Info().
		Str("file_path", section.FilePath).
		Str("title", section.Title).
		Int("chunks", len(chunks)).
		Msg("split section")

	report.Chunks = make([]models.ChunkStatus, 0, len(chunks))
	for _, chunk := range chunks {
		status := models.ChunkStatus{
			FilePath: chunk.FilePath,
			Title:    chunk.Title,
			Index:    chunk.Index,
			Total:    chunk.Total,
		}

		if err := ctx.Err(); err != nil {
			status.Err = err
		} else {
			status.Err = c.ingestChunk(ctx, chunk)
		}

		if status.Err != nil {
			c.logger.Error().
				Err(status.Err).
				Str("file_path", chunk.FilePath).
				Str("title", chunk.Title).
				Int("chunk", chunk.Index).
				Int("total", chunk.Total).
				Msg("failed to process chunk")
		} else {
			c.logger.Debug().
				Str("title", chunk.Title).
				Int("chunk", chunk.Index).
				Int("total", chunk.Total).
				Msg("stored chunk")
		}

		report.Chunks = append(report.Chunks, status)
	}

	return report, nil
}

func (c *Coordinator) ingestChunk(ctx context.Context, chunk models.Chunk) error {
	embedCtx, cancel := context.WithTimeout(ctx, c.config.EmbedTimeout)
	embedding, err := c.embedder.Embed(embedCtx, chunk.Section().EmbeddingContent())
	cancel()
	if err != nil {
		if !errors.Is(err, models.ErrEmbeddingService) {
			err = fmt.Errorf("%w: %w", models.ErrEmbeddingService, err)
		}
		return err
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
	defer cancel()

	return c.store.Upsert(storeCtx, models.StoredRow{
		FilePath:  chunk.FilePath,
		Title:     chunk.Title,
		Content:   chunk.Content,
		Embedding: embedding,
	})
}

// IngestMany ingests sections with at most Concurrency in flight. Reports
// are returned in input order. A failing section never cancels its
// siblings. The error is non-nil only when no chunk could be stored because
// the store was unavailable.
func (c *Coordinator) IngestMany(ctx context.Context, sections []models.Section) (models.BatchReport, error) {
	reports := make([]models.SectionReport, len(sections))

	var g errgroup.Group
	g.SetLimit(c.config.Concurrency)

	for i, section := range sections {
		if err := ctx.Err(); err != nil {
			reports[i] = models.SectionReport{FilePath: section.FilePath, Title: section.Title, Err: err}
			continue
		}

		g.Go(func() error {
			reports[i] = c.ingestIsolated(ctx, section)
			if c.config.OnProgress != nil {
				c.config.OnProgress(reports[i])
			}
			return nil
		})
	}

	_ = g.Wait()

	batch := models.BatchReport{Sections: reports}

	c.logger.Info().
		Int("sections", len(sections)).
		Int("succeeded", batch.Succeeded()).
		Int("failed", batch.Failed()).
		Int("chunks_stored", batch.ChunksStored()).
		Msg("batch ingested")

	if batch.StorageDown() {
		return batch, fmt.Errorf("%w: no chunk in the batch could be stored", models.ErrStorageUnavailable)
	}
	return batch, nil
}

func (c *Coordinator) ingestIsolated(ctx context.Context, section models.Section) (report models.SectionReport) {
	defer func() {
		if r := recover(); r != nil {
			report = models.SectionReport{
				FilePath: section.FilePath,
				Title:    section.Title,
				Err:      fmt.Errorf("panic while ingesting section: %v", r),
			}
			c.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("file_path", section.FilePath).
				Str("title", section.Title).
				Msg("recovered from panic in section task")
		}
	}()

	report, err := c.Ingest(ctx, section)
	if err != nil {
		report.Err = err
		c.logger.Error().
			Err(err).
			Str("file_path", section.FilePath).
			Str("title", section.Title).
			Msg("failed to process section")
	}
	return report
}
