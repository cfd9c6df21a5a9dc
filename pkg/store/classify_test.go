package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/xhad/sectionrag/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
		validation  bool
	}{
		{"deadline", context.DeadlineExceeded, true, false},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true, false},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true, false},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true, false},
		{"dimension mismatch", &pgconn.PgError{Code: "22000", Message: "expected 1536 dimensions, not 3"}, false, true},
		{"syntax", &pgconn.PgError{Code: "42601"}, false, false},
		{"other", errors.New("boom"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.unavailable, errors.Is(err, models.ErrStorageUnavailable))
			assert.Equal(t, tt.validation, errors.Is(err, models.ErrValidation))
		})
	}

	assert.NoError(t, classify("op", nil))
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "abc", sanitizeText("a\x00bc"))
	assert.Equal(t, "ok", sanitizeText("o\xffk"))
	assert.Equal(t, "héllo", sanitizeText("héllo"))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}
