package classify

import "fmt"

// Stage names the pipeline step that failed.
type Stage string

const (
	StageManifest   Stage = "manifest"
	StageLoad       Stage = "load"
	StagePreprocess Stage = "preprocess"
	StageTraining   Stage = "training"
	StageScore      Stage = "score"
)

// StageError ties a failure to its stage and the offending file.
type StageError struct {
	Stage Stage
	File  string
	Err   error
}

func (e *StageError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.File, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, file string, err error) error {
	return &StageError{Stage: stage, File: file, Err: err}
}
