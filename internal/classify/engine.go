package classify

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/glyphocr/internal/bitmap"
	"github.com/hyperjump/glyphocr/internal/manifest"
	"github.com/hyperjump/glyphocr/internal/models"
	"github.com/hyperjump/glyphocr/internal/vector"
	"go.uber.org/zap"
)

// Sample is one manifest entry resolved to its feature vector.
type Sample struct {
	Entry  manifest.Entry
	Path   string
	Vector vector.FeatureVector
}

// Engine loads labeled glyph directories and classifies test directories against a training set.
// It holds no per-run state, so one Engine can serve any number of runs.
type Engine struct {
	manifestName string
	polarity     bitmap.Polarity
	logger       *zap.Logger // optional; when set, logs debug events
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithManifestName sets the manifest filename looked up in each directory.
func WithManifestName(name string) EngineOption {
	return func(e *Engine) {
		if name != "" {
			e.manifestName = name
		}
	}
}

// WithPolarity sets which pixel level counts as a set cell.
func WithPolarity(p bitmap.Polarity) EngineOption {
	return func(e *Engine) { e.polarity = p }
}

// WithLogger sets a logger for debug output (directories loaded, glyphs classified).
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine. Without options it reads description.txt with native polarity.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{manifestName: manifest.DefaultName, polarity: bitmap.PolarityNative}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Polarity returns the configured pixel polarity.
func (e *Engine) Polarity() bitmap.Polarity { return e.polarity }

// LoadDirectory reads dir's manifest and turns every listed image into a Sample, in manifest order.
// The first failure aborts the load.
func (e *Engine) LoadDirectory(ctx context.Context, dir string) ([]Sample, error) {
	entries, err := manifest.Load(dir, e.manifestName)
	if err != nil {
		return nil, stageErr(StageManifest, filepath.Join(dir, e.manifestName), err)
	}
	samples := make([]Sample, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, entry.Filename)
		grid, err := bitmap.Load(path, e.polarity)
		if err != nil {
			return nil, stageErr(StageLoad, path, err)
		}
		vec, err := vector.Preprocess(grid)
		if err != nil {
			return nil, stageErr(StagePreprocess, path, err)
		}
		samples = append(samples, Sample{Entry: entry, Path: path, Vector: vec})
	}
	if e.logger != nil {
		e.logger.Debug("directory loaded", zap.String("dir", dir), zap.Int("samples", len(samples)))
	}
	return samples, nil
}

// BuildTrainingSet loads dir and freezes its samples into a training set.
func (e *Engine) BuildTrainingSet(ctx context.Context, dir string) (*vector.TrainingSet, error) {
	samples, err := e.LoadDirectory(ctx, dir)
	if err != nil {
		return nil, err
	}
	entries := make([]vector.Entry, len(samples))
	for i, s := range samples {
		entries[i] = vector.Entry{Vector: s.Vector, Label: s.Entry.Label, Source: s.Entry.Filename}
	}
	set, err := vector.NewTrainingSet(entries, vector.WithPolarity(e.polarity))
	if err != nil {
		return nil, stageErr(StageTraining, dir, err)
	}
	return set, nil
}

// LoadTrainingSet accepts either a training directory or a file written by TrainingSet.Save.
// A saved set must have been built with the engine's polarity.
func (e *Engine) LoadTrainingSet(ctx context.Context, path string) (*vector.TrainingSet, error) {
	info, err := os.Stat(path)
	if err == nil && info.Mode().IsRegular() {
		set, err := vector.Load(path)
		if err != nil {
			return nil, stageErr(StageTraining, path, err)
		}
		if err := set.CheckPolarity(e.polarity); err != nil {
			return nil, stageErr(StageTraining, path, err)
		}
		return set, nil
	}
	return e.BuildTrainingSet(ctx, path)
}

func (e *Engine) checkSet(set *vector.TrainingSet) error {
	if set == nil {
		return nil
	}
	if err := set.CheckPolarity(e.polarity); err != nil {
		return stageErr(StageTraining, "", err)
	}
	return nil
}

// Classify matches every sample against set, in sample order.
func (e *Engine) Classify(ctx context.Context, set *vector.TrainingSet, samples []Sample) ([]*models.ClassificationResult, error) {
	if err := e.checkSet(set); err != nil {
		return nil, err
	}
	results := make([]*models.ClassificationResult, 0, len(samples))
	for i, s := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := Nearest(s.Vector, set)
		if err != nil {
			return nil, stageErr(StageScore, s.Path, err)
		}
		results = append(results, &models.ClassificationResult{
			Index:          i,
			TestFile:       s.Entry.Filename,
			TestLabel:      s.Entry.Label,
			PredictedLabel: m.Label,
			PredictedFile:  m.Source,
			Confidence:     m.Score,
		})
		if e.logger != nil {
			e.logger.Debug("glyph classified",
				zap.String("file", s.Entry.Filename),
				zap.String("predicted", m.Source),
				zap.Float64("confidence", m.Score))
		}
	}
	return results, nil
}

// ClassifyImage decodes one image from r and matches it against set. name and label only
// annotate the result.
func (e *Engine) ClassifyImage(set *vector.TrainingSet, r io.Reader, name, label string) (*models.ClassificationResult, error) {
	if err := e.checkSet(set); err != nil {
		return nil, err
	}
	grid, err := bitmap.Decode(r, e.polarity)
	if err != nil {
		return nil, stageErr(StageLoad, name, err)
	}
	vec, err := vector.Preprocess(grid)
	if err != nil {
		return nil, stageErr(StagePreprocess, name, err)
	}
	m, err := Nearest(vec, set)
	if err != nil {
		return nil, stageErr(StageScore, name, err)
	}
	return &models.ClassificationResult{
		TestFile:       name,
		TestLabel:      label,
		PredictedLabel: m.Label,
		PredictedFile:  m.Source,
		Confidence:     m.Score,
	}, nil
}

// Run builds the training set from trainPath (directory or saved set), then classifies every
// entry of testDir. Any failure aborts the whole run.
func (e *Engine) Run(ctx context.Context, trainPath, testDir string) (*models.Report, error) {
	start := time.Now()
	set, err := e.LoadTrainingSet(ctx, trainPath)
	if err != nil {
		return nil, fmt.Errorf("training: %w", err)
	}
	samples, err := e.LoadDirectory(ctx, testDir)
	if err != nil {
		return nil, fmt.Errorf("test: %w", err)
	}
	results, err := e.Classify(ctx, set, samples)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return &models.Report{
		TrainPath:    trainPath,
		TestDir:      testDir,
		TrainingSize: set.Len(),
		Dimensions:   set.Dimensions(),
		Results:      results,
		StartedAt:    start,
		ElapsedMS:    time.Since(start).Milliseconds(),
	}, nil
}
