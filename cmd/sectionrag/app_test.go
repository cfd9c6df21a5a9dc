package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/sectionrag/internal/models"
	"github.com/xhad/sectionrag/internal/testutil"
	cfgPkg "github.com/xhad/sectionrag/pkg/config"
	"github.com/xhad/sectionrag/pkg/processor"
	"github.com/xhad/sectionrag/pkg/store"
)

const testDim = 8

type cannedChat struct{}

func (cannedChat) Answer(_ context.Context, _ string, results []models.SearchResult, onChunk func(string)) (string, error) {
	if len(results) == 0 {
		return "", errors.New("no sources")
	}
	if onChunk != nil {
		onChunk("From ")
		onChunk(results[0].Title)
	}
	return "From " + results[0].Title, nil
}

func newTestApp(t *testing.T) (*app, *store.Memory) {
	t.Helper()
	color.NoColor = true

	cfg := &cfgPkg.Config{}
	cfg.Database.Backend = "memory"
	cfg.Database.SearchLimit = 5
	cfg.Processor.MaxTokens = 8000
	cfg.Ingest.Concurrency = 2
	cfg.Scraper.MaxDepth = 1
	cfg.Scraper.RateLimit = 100

	mem := store.NewMemory(testDim, 0)
	return &app{
		cfg:      cfg,
		logger:   zerolog.Nop(),
		store:    mem,
		chunker:  processor.NewWithTokenizer(processor.ProcessorConfig{}, testutil.RuneTokenizer{}),
		embedder: &testutil.HashEmbedder{Dim: testDim},
		chat:     cannedChat{},
	}, mem
}

func writeDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.md"), []byte("# Alpha\nfirst letter\n# Beta\nsecond letter"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(strings.Repeat("long notes ", 50)), 0644))
	return dir
}

func TestIngestCommand(t *testing.T) {
	a, mem := newTestApp(t)
	dir := writeDocs(t)
	var out bytes.Buffer

	require.NoError(t, a.ingest(context.Background(), []string{"-by-heading", dir}, &out))
	assert.Contains(t, out.String(), "3 sections ingested, 0 failed, 3 chunks stored")

	n, err := mem.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, ok := mem.Row(filepath.Join(dir, "alpha.md"), "Beta")
	assert.True(t, ok)

	out.Reset()
	require.NoError(t, a.ingest(context.Background(), []string{filepath.Join(dir, "alpha.md")}, &out))
	_, ok = mem.Row(filepath.Join(dir, "alpha.md"), "alpha")
	assert.True(t, ok)
}

func TestIngestCommandErrors(t *testing.T) {
	a, _ := newTestApp(t)
	var out bytes.Buffer

	assert.Error(t, a.ingest(context.Background(), nil, &out))
	assert.Error(t, a.ingest(context.Background(), []string{filepath.Join(t.TempDir(), "missing.md")}, &out))

	a.embedder = testutil.FuncEmbedder{Fn: func(context.Context, string) ([]float32, error) {
		return nil, errors.New("quota exceeded")
	}}
	err := a.ingest(context.Background(), []string{writeDocs(t)}, &out)
	assert.ErrorContains(t, err, "2 of 2 sections were not fully ingested")
	assert.Contains(t, out.String(), "quota exceeded")
}

func TestSearchCommand(t *testing.T) {
	a, _ := newTestApp(t)
	dir := writeDocs(t)
	var out bytes.Buffer
	require.NoError(t, a.ingest(context.Background(), []string{dir}, &out))

	out.Reset()
	require.NoError(t, a.search(context.Background(), []string{"-limit", "1", "first", "letter"}, &out))
	assert.Contains(t, out.String(), "1. ")
	assert.Contains(t, out.String(), "Similarity: ")
	assert.NotContains(t, out.String(), "2. ")

	// previews are cut at 200 characters
	out.Reset()
	require.NoError(t, a.search(context.Background(), []string{"notes"}, &out))
	assert.Contains(t, out.String(), "...")

	empty, _ := newTestApp(t)
	out.Reset()
	require.NoError(t, empty.search(context.Background(), []string{"anything"}, &out))
	assert.Contains(t, out.String(), "No matching sections")

	assert.Error(t, empty.search(context.Background(), nil, &out))
}

func TestAskCommand(t *testing.T) {
	a, mem := newTestApp(t)
	require.NoError(t, mem.Upsert(context.Background(), models.StoredRow{
		FilePath: "a.md", Title: "Alpha", Content: "x", Embedding: testutil.Basis(testDim, 0),
	}))

	var out bytes.Buffer
	require.NoError(t, a.ask(context.Background(), []string{"what", "is", "alpha?"}, nil, &out))
	assert.Contains(t, out.String(), "Assistant: From Alpha")
	assert.Contains(t, out.String(), "Sources: a.md")

	out.Reset()
	in := strings.NewReader("first question\n\nexit\n")
	require.NoError(t, a.ask(context.Background(), []string{"-stream=false"}, in, &out))
	assert.Equal(t, 1, strings.Count(out.String(), "Assistant: From Alpha"))
}

func TestDeleteCommand(t *testing.T) {
	a, mem := newTestApp(t)
	require.NoError(t, mem.Upsert(context.Background(), models.StoredRow{
		FilePath: "a.md", Title: "Alpha", Content: "x", Embedding: testutil.Basis(testDim, 0),
	}))

	var out bytes.Buffer
	assert.Error(t, a.delete(context.Background(), nil, &out))
	require.NoError(t, a.delete(context.Background(), []string{"a.md"}, &out))

	n, _ := mem.Count(context.Background())
	assert.Equal(t, 0, n)
}

func TestInitCommand(t *testing.T) {
	a, _ := newTestApp(t)
	var out bytes.Buffer
	require.NoError(t, a.initStore(context.Background(), &out))
	assert.Contains(t, out.String(), "memory store ready (8 dimensions, 0 sections)")
}

func TestPrintReport(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer

	printReport(&out, models.BatchReport{Sections: []models.SectionReport{
		{FilePath: "a.md", Title: "ok", Chunks: []models.ChunkStatus{{Title: "ok", Index: 1, Total: 1}}},
		{FilePath: "b.md", Title: "bad", Err: errors.New("rejected")},
		{FilePath: "c.md", Title: "part", Chunks: []models.ChunkStatus{
			{FilePath: "c.md", Title: "part_chunk_1", Index: 1, Total: 2},
			{FilePath: "c.md", Title: "part_chunk_2", Index: 2, Total: 2, Err: errors.New("timeout")},
		}},
	}})

	text := out.String()
	assert.Contains(t, text, "✗ bad (b.md): rejected")
	assert.Contains(t, text, "✗ part_chunk_2 (c.md) chunk 2/2: timeout")
	assert.Contains(t, text, "1 sections ingested, 2 failed, 2 chunks stored")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", preview("a\n\n  b"))
	long := strings.Repeat("é", 250)
	assert.Equal(t, strings.Repeat("é", 200)+"...", preview(long))
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	assert.ErrorContains(t, run(context.Background(), []string{"dance"}), `unknown command "dance"`)
	assert.ErrorContains(t, run(context.Background(), nil), "no command given")
}
