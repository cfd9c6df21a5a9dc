package models

import (
	"fmt"
	"strings"
)

// Section is a named, addressable unit of source text. FilePath and Title
// together identify a stored row.
type Section struct {
	FilePath string `json:"file_path"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

// Validate reports a missing key field.
func (s Section) Validate() error {
	if strings.TrimSpace(s.FilePath) == "" {
		return &ValidationError{Field: "file_path", Message: "must not be empty"}
	}
	if strings.TrimSpace(s.Title) == "" {
		return &ValidationError{Field: "title", Message: "must not be empty"}
	}
	return nil
}

// EmbeddingContent is the text handed to the embedding model. The origin and
// title are prepended so that short chunks keep their context.
func (s Section) EmbeddingContent() string {
	return strings.Join([]string{
		"file: " + s.FilePath,
		"title: " + s.Title,
		s.Content,
	}, "\n\n")
}

// Chunk is a token-bounded piece of a Section.
type Chunk struct {
	FilePath    string
	ParentTitle string
	Title       string
	Index       int // 1-based
	Total       int
	Content     string
}

// Section returns the chunk as a standalone section under its own title.
func (c Chunk) Section() Section {
	return Section{FilePath: c.FilePath, Title: c.Title, Content: c.Content}
}

// ChunkTitle names the i-th (1-based) of total chunks cut from parent.
func ChunkTitle(parent string, i, total int) string {
	if total <= 1 {
		return parent
	}
	return fmt.Sprintf("%s_chunk_%d", parent, i)
}

// NewChunks wraps the split parts of a section's content in order.
func NewChunks(section Section, parts []string) []Chunk {
	chunks := make([]Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, Chunk{
			FilePath:    section.FilePath,
			ParentTitle: section.Title,
			Title:       ChunkTitle(section.Title, i+1, len(parts)),
			Index:       i + 1,
			Total:       len(parts),
			Content:     part,
		})
	}
	return chunks
}

// StoredRow is the persisted form of a chunk.
type StoredRow struct {
	ID        int64
	FilePath  string
	Title     string
	Content   string
	Embedding []float32
}

// Validate checks the key fields and the embedding dimension.
func (r StoredRow) Validate(dim int) error {
	if strings.TrimSpace(r.FilePath) == "" {
		return &ValidationError{Field: "file_path", Message: "must not be empty"}
	}
	if strings.TrimSpace(r.Title) == "" {
		return &ValidationError{Field: "title", Message: "must not be empty"}
	}
	return CheckDimension("embedding", len(r.Embedding), dim)
}

// SearchResult is a stored row ranked against a query embedding.
type SearchResult struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	FilePath   string  `json:"file_path"`
	Similarity float64 `json:"similarity"`
}
