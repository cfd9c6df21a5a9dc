package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"

	"github.com/xhad/sectionrag/internal/models"
)

// keyNamespace scopes the deterministic document IDs derived from
// (file_path, title).
var keyNamespace = uuid.MustParse("6f1d4a52-5d0c-4b8e-9a57-3a2c1c0b7e11")

type ChromemConfig struct {
	Path        string // empty keeps the collection in memory
	Collection  string
	VectorDim   int
	SearchLimit int
	Compress    bool
}

// Chromem stores sections in an embedded chromem-go collection, optionally
// persisted to disk. Ranking is exact cosine similarity; ties come back in
// no particular order.
type Chromem struct {
	config     ChromemConfig
	db         *chromem.DB
	collection *chromem.Collection
	logger     zerolog.Logger
}

func NewChromem(ctx context.Context, config ChromemConfig, logger zerolog.Logger) (*Chromem, error) {
	if config.Collection == "" {
		config.Collection = "sections"
	}
	if config.VectorDim == 0 {
		config.VectorDim = DefaultDimension
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = DefaultSearchLimit
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open chromem db: %w", models.ErrStorageUnavailable, err)
		}
	}

	c := &Chromem{
		config: config,
		db:     db,
		logger: logger,
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// precomputedOnly rejects embedding on the chromem side; vectors always come
// from the pipeline's embedder.
func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem collection requires precomputed embeddings")
}

func (c *Chromem) Init(context.Context) error {
	collection, err := c.db.GetOrCreateCollection(c.config.Collection, nil, precomputedOnly)
	if err != nil {
		return fmt.Errorf("%w: failed to create collection: %w", models.ErrStorageUnavailable, err)
	}
	c.collection = collection

	c.logger.Debug().
		Str("collection", c.config.Collection).
		Int("documents", collection.Count()).
		Msg("collection ready")
	return nil
}

func documentID(filePath, title string) string {
	return uuid.NewSHA1(keyNamespace, []byte(filePath+"\x00"+title)).String()
}

// Upsert replaces the document with the same (file_path, title) key; the
// document ID is derived from the key.
func (c *Chromem) Upsert(ctx context.Context, row models.StoredRow) error {
	if err := row.Validate(c.config.VectorDim); err != nil {
		return err
	}

	doc := chromem.Document{
		ID: documentID(row.FilePath, row.Title),
		Metadata: map[string]string{
			"file_path": row.FilePath,
			"title":     row.Title,
		},
		Embedding: append([]float32(nil), row.Embedding...),
		Content:   row.Content,
	}

	// the row is validated above, so a failure here comes from persistence
	if err := c.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("%w: failed to upsert section: %w", models.ErrStorageUnavailable, err)
	}
	return nil
}

func (c *Chromem) Query(ctx context.Context, embedding []float32, limit int) ([]models.SearchResult, error) {
	if err := models.CheckDimension("query embedding", len(embedding), c.config.VectorDim); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = c.config.SearchLimit
	}

	// chromem refuses nResults above the collection size
	n := min(limit, c.collection.Count())
	if n == 0 {
		return []models.SearchResult{}, nil
	}

	found, err := c.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}

	results := make([]models.SearchResult, 0, len(found))
	for _, r := range found {
		results = append(results, models.SearchResult{
			Title:      r.Metadata["title"],
			Content:    r.Content,
			FilePath:   r.Metadata["file_path"],
			Similarity: float64(r.Similarity),
		})
	}
	return results, nil
}

func (c *Chromem) Count(context.Context) (int, error) {
	return c.collection.Count(), nil
}

func (c *Chromem) Delete(ctx context.Context, filePath string) error {
	if err := c.collection.Delete(ctx, map[string]string{"file_path": filePath}, nil); err != nil {
		return fmt.Errorf("%w: failed to delete sections: %w", models.ErrStorageUnavailable, err)
	}
	return nil
}

func (c *Chromem) Dimension() int { return c.config.VectorDim }

func (c *Chromem) Close() {}
