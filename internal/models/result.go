// Package models defines the data structures produced by classification runs.
package models

import (
	"strings"
	"time"
)

// ClassificationResult is the outcome of classifying one test glyph.
type ClassificationResult struct {
	Index          int     `json:"index" db:"idx"`
	TestFile       string  `json:"test_file" db:"test_file"`
	TestLabel      string  `json:"test_label" db:"test_label"`
	PredictedLabel string  `json:"predicted_label" db:"predicted_label"`
	PredictedFile  string  `json:"predicted_file,omitempty" db:"predicted_file"`
	Confidence     float64 `json:"confidence" db:"confidence"`
}

// DisplayTestLabel returns TestLabel without surrounding whitespace.
func (r *ClassificationResult) DisplayTestLabel() string {
	return strings.TrimSpace(r.TestLabel)
}

// DisplayPredictedLabel returns PredictedLabel without surrounding whitespace.
func (r *ClassificationResult) DisplayPredictedLabel() string {
	return strings.TrimSpace(r.PredictedLabel)
}

// Report is the outcome of one classification run over a test directory.
type Report struct {
	RunID        string                  `json:"run_id,omitempty" db:"id"`
	TrainPath    string                  `json:"train_path" db:"train_path"`
	TestDir      string                  `json:"test_dir" db:"test_dir"`
	TrainingSize int                     `json:"training_size" db:"training_size"`
	Dimensions   int                     `json:"dimensions" db:"dimensions"`
	Results      []*ClassificationResult `json:"results"`
	StartedAt    time.Time               `json:"started_at" db:"started_at"`
	ElapsedMS    int64                   `json:"elapsed_ms" db:"elapsed_ms"`
}

// RunSummary is a stored run without its per-glyph results.
type RunSummary struct {
	RunID        string    `json:"run_id" db:"id"`
	TrainPath    string    `json:"train_path" db:"train_path"`
	TestDir      string    `json:"test_dir" db:"test_dir"`
	TrainingSize int       `json:"training_size" db:"training_size"`
	Dimensions   int       `json:"dimensions" db:"dimensions"`
	ResultCount  int       `json:"result_count" db:"result_count"`
	StartedAt    time.Time `json:"started_at" db:"started_at"`
	ElapsedMS    int64     `json:"elapsed_ms" db:"elapsed_ms"`
}

// TrainingInfo describes a loaded training set.
type TrainingInfo struct {
	Source     string   `json:"source"`
	Size       int      `json:"size"`
	Dimensions int      `json:"dimensions"`
	Polarity   string   `json:"polarity"`
	Labels     []string `json:"labels"`
}
