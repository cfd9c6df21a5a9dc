// Package testutil holds deterministic doubles for the embedding model, the
// tokenizer and the store.
package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sync"

	"github.com/xhad/sectionrag/internal/models"
	"github.com/xhad/sectionrag/internal/types"
)

// RuneTokenizer treats every rune as one token.
type RuneTokenizer struct{}

func (RuneTokenizer) Encode(text string) []int {
	runes := []rune(text)
	tokens := make([]int, len(runes))
	for i, r := range runes {
		tokens[i] = int(r)
	}
	return tokens
}

func (RuneTokenizer) Decode(tokens []int) string {
	runes := make([]rune, len(tokens))
	for i, t := range tokens {
		runes[i] = rune(t)
	}
	return string(runes)
}

// HashEmbedder returns a unit vector derived from an FNV hash of the text,
// so equal texts embed equally.
type HashEmbedder struct {
	Dim int

	mu    sync.Mutex
	calls []string
}

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, text)
	e.mu.Unlock()
	return HashVector(text, e.Dim), nil
}

// Calls returns the texts embedded so far.
func (e *HashEmbedder) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func HashVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		h := fnv.New64a()
		h.Write([]byte{byte(i), byte(i >> 8)})
		h.Write([]byte(text))
		v := float64(h.Sum64()%2000)/1000 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Basis returns the unit vector along axis i.
func Basis(dim, i int) []float32 {
	vec := make([]float32, dim)
	vec[i] = 1
	return vec
}

// FuncEmbedder delegates to Fn.
type FuncEmbedder struct {
	Fn func(ctx context.Context, text string) ([]float32, error)
}

func (e FuncEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.Fn(ctx, text)
}

// ErrDown is returned by DownStore.
var ErrDown = errors.New("connection refused")

// DownStore wraps a store and fails every upsert and query as unavailable.
type DownStore struct {
	types.SectionStore
}

func (DownStore) Upsert(context.Context, models.StoredRow) error {
	return errors.Join(models.ErrStorageUnavailable, ErrDown)
}

func (DownStore) Query(context.Context, []float32, int) ([]models.SearchResult, error) {
	return nil, errors.Join(models.ErrStorageUnavailable, ErrDown)
}
