package store

import (
	"context"
	"sort"
	"sync"

	"github.com/xhad/sectionrag/internal/models"
)

type key struct {
	filePath string
	title    string
}

// Memory is an in-process store with exact brute-force cosine ranking.
type Memory struct {
	mu     sync.RWMutex
	dim    int
	limit  int
	nextID int64
	rows   []models.StoredRow
	index  map[key]int
}

func NewMemory(dim, searchLimit int) *Memory {
	if dim == 0 {
		dim = DefaultDimension
	}
	if searchLimit == 0 {
		searchLimit = DefaultSearchLimit
	}
	return &Memory{
		dim:   dim,
		limit: searchLimit,
		index: make(map[key]int),
	}
}

func (m *Memory) Init(context.Context) error { return nil }

func (m *Memory) Upsert(_ context.Context, row models.StoredRow) error {
	if err := row.Validate(m.dim); err != nil {
		return err
	}

	embedding := append([]float32(nil), row.Embedding...)

	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{row.FilePath, row.Title}
	if i, ok := m.index[k]; ok {
		m.rows[i].Content = row.Content
		m.rows[i].Embedding = embedding
		return nil
	}

	m.nextID++
	m.index[k] = len(m.rows)
	m.rows = append(m.rows, models.StoredRow{
		ID:        m.nextID,
		FilePath:  row.FilePath,
		Title:     row.Title,
		Content:   row.Content,
		Embedding: embedding,
	})
	return nil
}

func (m *Memory) Query(_ context.Context, embedding []float32, limit int) ([]models.SearchResult, error) {
	if err := models.CheckDimension("query embedding", len(embedding), m.dim); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = m.limit
	}

	m.mu.RLock()
	results := make([]models.SearchResult, 0, len(m.rows))
	for _, row := range m.rows {
		results = append(results, models.SearchResult{
			Title:      row.Title,
			Content:    row.Content,
			FilePath:   row.FilePath,
			Similarity: cosineSimilarity(embedding, row.Embedding),
		})
	}
	m.mu.RUnlock()

	// rows are kept in insertion order, so a stable sort breaks ties by it
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows), nil
}

func (m *Memory) Delete(_ context.Context, filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.rows[:0]
	for _, row := range m.rows {
		if row.FilePath != filePath {
			kept = append(kept, row)
		}
	}
	m.rows = kept

	m.index = make(map[key]int, len(m.rows))
	for i, row := range m.rows {
		m.index[key{row.FilePath, row.Title}] = i
	}
	return nil
}

// Row returns the stored row for a key.
func (m *Memory) Row(filePath, title string) (models.StoredRow, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[key{filePath, title}]
	if !ok {
		return models.StoredRow{}, false
	}
	return m.rows[i], true
}

func (m *Memory) Dimension() int { return m.dim }

func (m *Memory) Close() {}
