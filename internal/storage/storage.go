// Package storage defines the persistence interface for classification run history.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/glyphocr/internal/models"
)

// ErrRunNotFound indicates no stored run has the requested ID.
var ErrRunNotFound = errors.New("storage: run not found")

// Storage defines classification run persistence operations.
type Storage interface {
	// SaveReport stores the run and all of its results. An empty RunID is filled in.
	SaveReport(ctx context.Context, report *models.Report) error
	GetRun(ctx context.Context, id string) (*models.RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RunSummary, error)
	GetResults(ctx context.Context, runID string) ([]*models.ClassificationResult, error)

	// Stats
	CountRuns(ctx context.Context) (int64, error)
	CountResults(ctx context.Context) (int64, error)

	Close() error
}
