// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/glyphocr/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		train_path TEXT NOT NULL,
		test_dir TEXT NOT NULL,
		training_size INTEGER NOT NULL,
		dimensions INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL,
		elapsed_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS results (
		run_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		test_file TEXT NOT NULL,
		test_label TEXT NOT NULL,
		predicted_label TEXT NOT NULL,
		predicted_file TEXT,
		confidence REAL NOT NULL,
		PRIMARY KEY (run_id, idx),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveReport inserts the run and its results in one transaction.
func (s *SQLiteStorage) SaveReport(ctx context.Context, report *models.Report) error {
	if report.RunID == "" {
		report.RunID = uuid.New().String()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, train_path, test_dir, training_size, dimensions, started_at, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.TrainPath, report.TestDir, report.TrainingSize, report.Dimensions,
		report.StartedAt.UTC(), report.ElapsedMS,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (run_id, idx, test_file, test_label, predicted_label, predicted_file, confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range report.Results {
		if _, err := stmt.ExecContext(ctx, report.RunID, r.Index, r.TestFile, r.TestLabel,
			r.PredictedLabel, r.PredictedFile, r.Confidence); err != nil {
			return fmt.Errorf("failed to insert result %d: %w", r.Index, err)
		}
	}
	return tx.Commit()
}

const runSummaryQuery = `
	SELECT r.id, r.train_path, r.test_dir, r.training_size, r.dimensions, r.started_at, r.elapsed_ms,
	       (SELECT COUNT(*) FROM results WHERE run_id = r.id)
	FROM runs r`

func scanRun(row interface{ Scan(dest ...any) error }) (*models.RunSummary, error) {
	var run models.RunSummary
	err := row.Scan(&run.RunID, &run.TrainPath, &run.TestDir, &run.TrainingSize, &run.Dimensions,
		&run.StartedAt, &run.ElapsedMS, &run.ResultCount)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun returns a run summary by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*models.RunSummary, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, runSummaryQuery+` WHERE r.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*models.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, runSummaryQuery+` ORDER BY r.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetResults returns the results of a run in classification order.
func (s *SQLiteStorage) GetResults(ctx context.Context, runID string) ([]*models.ClassificationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, test_file, test_label, predicted_label, COALESCE(predicted_file, ''), confidence
		 FROM results WHERE run_id = ? ORDER BY idx`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.ClassificationResult
	for rows.Next() {
		var r models.ClassificationResult
		if err := rows.Scan(&r.Index, &r.TestFile, &r.TestLabel, &r.PredictedLabel, &r.PredictedFile, &r.Confidence); err != nil {
			return nil, err
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

// CountRuns returns the total number of stored runs.
func (s *SQLiteStorage) CountRuns(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&count)
	return count, err
}

// CountResults returns the total number of stored results.
func (s *SQLiteStorage) CountResults(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results`).Scan(&count)
	return count, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
