package vector

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Score returns dot(q, r) / ‖r‖₂. Only the reference is re-normalized, so the score is
// not symmetric: Score(q, r) and Score(r, q) differ in general.
func Score(q, r FeatureVector) (float64, error) {
	if q.Len() != r.Len() {
		return 0, fmt.Errorf("%w: query has %d elements, reference has %d", ErrDimensionMismatch, q.Len(), r.Len())
	}
	norm := floats.Norm(r.values, 2)
	if norm == 0 {
		return 0, ErrZeroNormReference
	}
	return floats.Dot(q.values, r.values) / norm, nil
}
