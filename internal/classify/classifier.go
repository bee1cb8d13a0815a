// Package classify recognizes glyphs by nearest-match search over a training set
// and runs whole train/test directory passes.
package classify

import (
	"errors"
	"fmt"

	"github.com/hyperjump/glyphocr/internal/vector"
)

// ErrEmptyTrainingSet indicates classification against a set with no entries.
var ErrEmptyTrainingSet = errors.New("classify: training set is empty")

// Match is the winning training entry for a query.
type Match struct {
	Index  int
	Label  string
	Source string
	Score  float64
}

// Nearest scores query against every entry of set in order and returns the highest score.
// Ties go to the entry that appears first. The scan is linear in set size and vector length;
// training sets hold tens of glyphs, so no index is kept.
func Nearest(query vector.FeatureVector, set *vector.TrainingSet) (Match, error) {
	if set == nil || set.Len() == 0 {
		return Match{}, ErrEmptyTrainingSet
	}
	best := Match{Index: -1}
	for i := 0; i < set.Len(); i++ {
		e := set.Entry(i)
		score, err := vector.Score(query, e.Vector)
		if err != nil {
			return Match{}, fmt.Errorf("reference %d (%s): %w", i, e.Source, err)
		}
		if best.Index < 0 || score > best.Score {
			best = Match{Index: i, Label: e.Label, Source: e.Source, Score: score}
		}
	}
	return best, nil
}
