package classifier

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotReady is returned by Predict and ModelInfo before any model
	// has been loaded or trained.
	ErrModelNotReady = errors.New("model not ready")

	// ErrNotFound is returned by a Store when no artifacts have been
	// persisted yet. It is the only storage error Load recovers from.
	ErrNotFound = errors.New("persisted model not found")
)

// StorageError reports persisted artifacts that are unreadable, corrupt or
// inconsistent with each other.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// TrainingError reports input that cannot produce a model, such as a label
// with too few rows to appear on both sides of the evaluation split.
type TrainingError struct {
	Reason string
	Err    error
}

func (e *TrainingError) Error() string {
	if e.Err == nil {
		return "training: " + e.Reason
	}
	return fmt.Sprintf("training: %s: %v", e.Reason, e.Err)
}

func (e *TrainingError) Unwrap() error { return e.Err }
