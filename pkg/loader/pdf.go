package loader

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/xhad/sectionrag/internal/models"
)

// LoadPDF extracts the plain text of every page into one section titled by
// the file stem.
func LoadPDF(path string) (models.Section, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Section{}, err
	}
	defer f.Close()

	// Get file size for reader initialization
	stat, err := f.Stat()
	if err != nil {
		return models.Section{}, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return models.Section{}, fmt.Errorf("error opening pdf %s: %w", path, err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return models.Section{}, fmt.Errorf("error reading page %d of %s: %w", i, path, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimSpace(pageText))
	}

	return models.Section{FilePath: path, Title: Stem(path), Content: b.String()}, nil
}
