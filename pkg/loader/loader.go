// Package loader turns files on disk into sections ready for ingestion.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xhad/sectionrag/internal/models"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// Stem is the file name without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadMarkdownDir returns one section per *.md file directly under dir,
// titled by the file stem, in name order.
func LoadMarkdownDir(dir string) ([]models.Section, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("error listing markdown files: %w", err)
	}

	sections := make([]models.Section, 0, len(paths))
	for _, path := range paths {
		section, err := LoadText(path)
		if err != nil {
			return nil, err
		}
		sections = append(sections, section)
	}
	return sections, nil
}

// LoadText reads a whole file as a single section.
func LoadText(path string) (models.Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Section{}, fmt.Errorf("error reading %s: %w", path, err)
	}
	return models.Section{FilePath: path, Title: Stem(path), Content: string(data)}, nil
}

// LoadFile dispatches on the file extension. Markdown files are split per
// heading when byHeading is set.
func LoadFile(path string, byHeading bool) ([]models.Section, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		if !byHeading {
			section, err := LoadText(path)
			if err != nil {
				return nil, err
			}
			return []models.Section{section}, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", path, err)
		}
		return SplitMarkdown(path, data), nil
	case ".txt":
		section, err := LoadText(path)
		if err != nil {
			return nil, err
		}
		return []models.Section{section}, nil
	case ".pdf":
		section, err := LoadPDF(path)
		if err != nil {
			return nil, err
		}
		return []models.Section{section}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Load reads a file, or every supported file directly under a directory.
// Unsupported files inside a directory are skipped. A directory of plain
// *.md files loaded whole goes through LoadMarkdownDir.
func Load(path string, byHeading bool) ([]models.Section, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return LoadFile(path, byHeading)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	if !byHeading && markdownOnly(entries) {
		return LoadMarkdownDir(path)
	}

	var sections []models.Section
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		loaded, err := LoadFile(filepath.Join(path, entry.Name()), byHeading)
		if errors.Is(err, ErrUnsupportedFormat) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sections = append(sections, loaded...)
	}
	return sections, nil
}

func markdownOnly(entries []os.DirEntry) bool {
	found := false
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) != ".md" {
			return false
		}
		found = true
	}
	return found
}
