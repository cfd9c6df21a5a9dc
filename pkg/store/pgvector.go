package store

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"

	"github.com/xhad/sectionrag/internal/models"
)

type VectorStoreConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	Lists       int // ivfflat lists
	SearchLimit int
	MaxConns    int32
}

// VectorStore keeps sections in a Postgres table with a pgvector column.
// Every call is a single statement on a pooled connection.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
	table  string
	logger zerolog.Logger
}

func applyVectorDefaults(config *VectorStoreConfig) {
	if config.TableName == "" {
		config.TableName = "sections"
	}
	if config.VectorDim == 0 {
		config.VectorDim = DefaultDimension
	}
	if config.Lists == 0 {
		config.Lists = 100
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = DefaultSearchLimit
	}
}

// NewWithConfig opens the pool and runs Init.
func NewWithConfig(ctx context.Context, config VectorStoreConfig, logger zerolog.Logger) (*VectorStore, error) {
	applyVectorDefaults(&config)

	poolConfig, err := pgxpool.ParseConfig(config.ConnString)
	if err != nil {
		return nil, &models.ValidationError{Field: "database.url", Message: err.Error()}
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, classify("failed to connect to database", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
		table:  pgx.Identifier{config.TableName}.Sanitize(),
		logger: logger,
	}

	if err := vs.Init(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

// Init creates the extension, table and ANN index if missing. Safe to call
// repeatedly.
func (vs *VectorStore) Init(ctx context.Context) error {
	// Enable pgvector extension
	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return classify("failed to create vector extension", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			file_path TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			UNIQUE (file_path, title)
		)`, vs.table, vs.config.VectorDim)

	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return classify("failed to create table", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = %d)`,
		pgx.Identifier{vs.config.TableName + "_embedding_idx"}.Sanitize(), vs.table, vs.config.Lists)

	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return classify("failed to create index", err)
	}

	vs.logger.Debug().
		Str("table", vs.config.TableName).
		Int("dim", vs.config.VectorDim).
		Msg("schema ready")

	return nil
}

// Upsert inserts the row or replaces content and embedding of the row with
// the same (file_path, title).
func (vs *VectorStore) Upsert(ctx context.Context, row models.StoredRow) error {
	if err := row.Validate(vs.config.VectorDim); err != nil {
		return err
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (file_path, title, content, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (file_path, title) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		vs.table)

	_, err := vs.pool.Exec(ctx, stmt,
		sanitizeText(row.FilePath),
		sanitizeText(row.Title),
		sanitizeText(row.Content),
		pgvector.NewVector(row.Embedding),
	)
	if err != nil {
		return classify("failed to upsert section", err)
	}

	return nil
}

// Query returns up to limit rows nearest to embedding by cosine distance.
// Ties keep insertion order.
func (vs *VectorStore) Query(ctx context.Context, embedding []float32, limit int) ([]models.SearchResult, error) {
	if err := models.CheckDimension("query embedding", len(embedding), vs.config.VectorDim); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = vs.config.SearchLimit
	}

	query := fmt.Sprintf(`
		SELECT title, content, file_path, 1 - (embedding <=> $1) AS similarity
		FROM %s
		ORDER BY embedding <=> $1, id
		LIMIT $2`,
		vs.table)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, classify("failed to query sections", err)
	}
	defer rows.Close()

	results := make([]models.SearchResult, 0, limit)
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(&r.Title, &r.Content, &r.FilePath, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("failed to read sections", err)
	}

	return results, nil
}

func (vs *VectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := vs.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", vs.table)).Scan(&n)
	if err != nil {
		return 0, classify("failed to count sections", err)
	}
	return n, nil
}

// Delete removes every row of a source. It is an administrative operation;
// ingestion never deletes.
func (vs *VectorStore) Delete(ctx context.Context, filePath string) error {
	_, err := vs.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE file_path = $1", vs.table), filePath)
	if err != nil {
		return classify("failed to delete sections", err)
	}
	return nil
}

func (vs *VectorStore) Dimension() int {
	return vs.config.VectorDim
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// sanitizeText drops invalid UTF-8 bytes and NULs, which Postgres rejects in
// TEXT columns.
func sanitizeText(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
