package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/xhad/sectionrag/internal/models"
	"github.com/xhad/sectionrag/internal/types"
)

const (
	// DefaultDimension matches OpenAI text-embedding-3-small.
	DefaultDimension   = 1536
	DefaultSearchLimit = 5
)

// Backend names accepted by Open.
const (
	BackendPostgres = "postgres"
	BackendChromem  = "chromem"
	BackendMemory   = "memory"
)

type Config struct {
	Backend     string
	URL         string
	TableName   string
	VectorDim   int
	Lists       int
	SearchLimit int
	ChromemPath string
}

// Open builds the configured backend and initialises its schema.
func Open(ctx context.Context, config Config, logger zerolog.Logger) (types.SectionStore, error) {
	switch config.Backend {
	case BackendPostgres, "":
		return NewWithConfig(ctx, VectorStoreConfig{
			ConnString:  config.URL,
			TableName:   config.TableName,
			VectorDim:   config.VectorDim,
			Lists:       config.Lists,
			SearchLimit: config.SearchLimit,
		}, logger)
	case BackendChromem:
		return NewChromem(ctx, ChromemConfig{
			Path:        config.ChromemPath,
			Collection:  config.TableName,
			VectorDim:   config.VectorDim,
			SearchLimit: config.SearchLimit,
		}, logger)
	case BackendMemory:
		return NewMemory(config.VectorDim, config.SearchLimit), nil
	default:
		return nil, &models.ValidationError{
			Field:   "database.backend",
			Message: fmt.Sprintf("unknown backend %q", config.Backend),
		}
	}
}

// classify wraps err with ErrStorageUnavailable when it stems from the
// connection rather than the statement.
func classify(msg string, err error) error {
	if err == nil {
		return nil
	}
	if unavailable(err) {
		return fmt.Errorf("%s: %w: %w", msg, models.ErrStorageUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22000" {
		// pgvector reports dimension mismatches as data_exception
		return fmt.Errorf("%s: %w: %w", msg, models.ErrValidation, err)
	}

	return fmt.Errorf("%s: %w", msg, err)
}

func unavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08": // connection_exception
			return true
		case pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03", pgErr.Code == "53300":
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// cosineSimilarity of a and b; zero vectors are dissimilar to everything.
func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
