// Package cli provides output helpers for the glyphocr command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/glyphocr/internal/models"
)

// OutputFormat is the format for classification output.
type OutputFormat string

const (
	// OutputText prints one "<test> --> <predicted>, confidence: <score>" line per glyph (default).
	OutputText OutputFormat = "text"
	// OutputJSON is the full report as indented JSON.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteReport writes report to w in the given format.
func WriteReport(w io.Writer, report *models.Report, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	default:
		for _, r := range report.Results {
			if err := WriteResultLine(w, r); err != nil {
				return err
			}
		}
		return nil
	}
}

// WriteResultLine writes one result as "<test_label> --> <predicted_label>, confidence: <score>".
func WriteResultLine(w io.Writer, r *models.ClassificationResult) error {
	_, err := fmt.Fprintf(w, "%s --> %s, confidence: %.3f\n",
		r.DisplayTestLabel(), r.DisplayPredictedLabel(), r.Confidence)
	return err
}

// WriteRuns writes stored run summaries as a table, or JSON.
func WriteRuns(w io.Writer, runs []*models.RunSummary, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	for _, r := range runs {
		if _, err := fmt.Fprintf(w, "%s  %s  train=%s test=%s  glyphs=%d  training=%d  %dms\n",
			r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), Truncate(r.TrainPath, 40), Truncate(r.TestDir, 40),
			r.ResultCount, r.TrainingSize, r.ElapsedMS); err != nil {
			return err
		}
	}
	return nil
}

// Truncate shortens s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
