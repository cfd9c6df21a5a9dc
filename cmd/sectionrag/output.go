package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/sectionrag/internal/models"
)

const previewRunes = 200

var (
	heading         = color.New(color.FgCyan, color.Bold)
	success         = color.New(color.FgGreen)
	warn            = color.New(color.FgYellow)
	failure         = color.New(color.FgRed)
	dim             = color.New(color.Faint)
	userPrompt      = color.New(color.FgGreen)
	assistantPrompt = color.New(color.FgCyan)
)

func getProgressBar(out io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("sections"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(out io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func preview(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= previewRunes {
		return content
	}
	return string(runes[:previewRunes]) + "..."
}

func printResults(out io.Writer, results []models.SearchResult) {
	if len(results) == 0 {
		warn.Fprintln(out, "No matching sections")
		return
	}
	for i, r := range results {
		heading.Fprintf(out, "\n%d. %s\n", i+1, r.Title)
		fmt.Fprintf(out, "Source: %s\n", r.FilePath)
		fmt.Fprintf(out, "Similarity: %.4f\n", r.Similarity)
		dim.Fprintf(out, "%s\n", preview(r.Content))
	}
}

func printReport(out io.Writer, batch models.BatchReport) {
	for _, section := range batch.Sections {
		if section.Err != nil {
			failure.Fprintf(out, "✗ %s (%s): %v\n", section.Title, section.FilePath, section.Err)
			continue
		}
		for _, c := range section.Failures() {
			failure.Fprintf(out, "✗ %s (%s) chunk %d/%d: %v\n", c.Title, c.FilePath, c.Index, c.Total, c.Err)
		}
	}

	summary := success
	if batch.Failed() > 0 {
		summary = warn
	}
	summary.Fprintf(out, "✓ %d sections ingested, %d failed, %d chunks stored\n",
		batch.Succeeded(), batch.Failed(), batch.ChunksStored())
}
