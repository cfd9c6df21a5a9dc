package loader

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/xhad/sectionrag/internal/models"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

type headingMark struct {
	title string
	start int
}

// SplitMarkdown cuts source into one section per top-level heading. Each
// section keeps its heading line. Text before the first heading is titled
// by the file stem. A repeated title gets the lowest " (n)" suffix, n >= 2,
// that no earlier section already uses, so every section keeps its own key.
func SplitMarkdown(path string, source []byte) []models.Section {
	doc := markdown.Parser().Parse(text.NewReader(source))
	stem := Stem(path)

	var marks []headingMark
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Lines().Len() == 0 {
			continue
		}
		title := headingText(heading, source)
		if title == "" {
			title = stem
		}
		marks = append(marks, headingMark{
			title: title,
			start: lineStart(source, heading.Lines().At(0).Start),
		})
	}

	if len(marks) == 0 {
		return []models.Section{{FilePath: path, Title: stem, Content: string(source)}}
	}

	var sections []models.Section
	used := make(map[string]bool)
	add := func(title string, content []byte) {
		content = bytes.TrimSpace(content)
		if len(content) == 0 {
			return
		}
		name := title
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s (%d)", title, n)
		}
		used[name] = true
		sections = append(sections, models.Section{FilePath: path, Title: name, Content: string(content)})
	}

	add(stem, source[:marks[0].start])
	for i, mark := range marks {
		end := len(source)
		if i+1 < len(marks) {
			end = marks[i+1].start
		}
		add(mark.title, source[mark.start:end])
	}
	return sections
}

func headingText(heading *ast.Heading, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(heading, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func lineStart(source []byte, offset int) int {
	if i := bytes.LastIndexByte(source[:offset], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}
