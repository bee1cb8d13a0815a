// Package vector turns glyph grids into feature vectors, scores them against each other,
// and holds the immutable training set used for nearest-match classification.
package vector

import (
	"errors"
	"fmt"
	"math"

	"github.com/hyperjump/glyphocr/internal/bitmap"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrDegenerateImage indicates a grid with no set cells, which cannot be normalized.
	ErrDegenerateImage = errors.New("vector: degenerate image (no foreground pixels)")
	// ErrDimensionMismatch indicates vectors of different lengths.
	ErrDimensionMismatch = errors.New("vector: dimension mismatch")
	// ErrZeroNormReference indicates a reference vector whose Euclidean norm is zero.
	ErrZeroNormReference = errors.New("vector: reference vector has zero norm")
)

// FeatureVector is the flattened, normalized form of one grid. It is immutable.
type FeatureVector struct {
	values []float64
}

// NewFeatureVector copies values into a new vector.
func NewFeatureVector(values []float64) FeatureVector {
	v := make([]float64, len(values))
	copy(v, values)
	return FeatureVector{values: v}
}

// Len returns the number of elements.
func (v FeatureVector) Len() int { return len(v.values) }

// At returns element i.
func (v FeatureVector) At(i int) float64 { return v.values[i] }

// Values returns a copy of the elements.
func (v FeatureVector) Values() []float64 {
	out := make([]float64, len(v.values))
	copy(out, v.values)
	return out
}

// Norm returns the Euclidean norm.
func (v FeatureVector) Norm() float64 {
	return floats.Norm(v.values, 2)
}

// Flatten returns the cells of g in row-major order as an un-normalized 0/1 vector.
func Flatten(g *bitmap.Grid) FeatureVector {
	cells := g.RowMajor()
	values := make([]float64, len(cells))
	for i, c := range cells {
		values[i] = float64(c)
	}
	return FeatureVector{values: values}
}

// Preprocess flattens g in row-major order and divides every cell by sqrt(k),
// where k is the number of cells equal to 1. The result has unit Euclidean norm.
func Preprocess(g *bitmap.Grid) (FeatureVector, error) {
	k := g.Ones()
	if k == 0 {
		return FeatureVector{}, fmt.Errorf("%w: %dx%d grid", ErrDegenerateImage, g.Width(), g.Height())
	}
	v := Flatten(g)
	root := math.Sqrt(float64(k))
	for i := range v.values {
		v.values[i] /= root
	}
	return v, nil
}
