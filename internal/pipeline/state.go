package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// State is a step of an indexing run.
type State string

const (
	StateListing    State = "listing"
	StateFetching   State = "fetching"
	StateChunking   State = "chunking"
	StateEmbedding  State = "embedding"
	StatePublishing State = "publishing"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// ErrEmptyIndex is returned when a run produced no points. The empty
// collection is deleted and the previous one stays current.
var ErrEmptyIndex = errors.New("run produced no chunks")

// StageError wraps the error that stopped a run with the stage it stopped in.
type StageError struct {
	Stage State
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

// Unwrap allows errors.Is and errors.As to reach the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Result summarises a run. It is returned for failed runs too.
type Result struct {
	RunID      string   `json:"run_id"`
	State      State    `json:"state"`
	FailedAt   State    `json:"failed_at,omitempty"`
	Collection string   `json:"collection,omitempty"`
	Documents  int      `json:"documents"`
	Chunks     int      `json:"chunks"`
	Points     int      `json:"points"`
	Deleted    []string `json:"deleted,omitempty"`
	// SweepFailed names superseded collections that outlived a published run.
	SweepFailed []string      `json:"sweep_failed,omitempty"`
	Duration    time.Duration `json:"duration"`
}
