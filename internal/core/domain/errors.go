package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors checked with errors.Is across package boundaries.
var (
	// ErrToolNotFound indicates the planner named a tool that is not registered.
	// The orchestration loop absorbs it and continues with empty passages.
	ErrToolNotFound = errors.New("tool not found")

	// ErrRetrieval indicates query embedding or index search failed.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrGeneration indicates the language model failed during final synthesis.
	ErrGeneration = errors.New("generation failed")
)

// IndexNotFoundError is returned when the persisted index or its metadata
// sidecar is missing. This is a startup-time configuration error, not a
// runtime-recoverable one.
type IndexNotFoundError struct {
	Path string
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("index file %s not found: rebuild the index with lectern-index or fix the index paths in the config", e.Path)
}

// PlannerProtocolError is returned when the planning model emits output that
// cannot be decoded as a decision JSON object. Raw keeps the model output for
// diagnostics.
type PlannerProtocolError struct {
	Raw string
	Err error
}

func (e *PlannerProtocolError) Error() string {
	return fmt.Sprintf("planner emitted malformed decision: %v", e.Err)
}

func (e *PlannerProtocolError) Unwrap() error {
	return e.Err
}
