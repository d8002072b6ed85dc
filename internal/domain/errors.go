package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrEmptyContent         = errors.New("empty content")
	ErrEmbeddingFailed      = errors.New("embedding failed")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrWriteFailed          = errors.New("write failed")
	ErrRetrievalFailed      = errors.New("retrieval failed")
	ErrCancelled            = errors.New("cancelled")
)

// Stage is a state of the ingestion state machine.
type Stage string

const (
	StageExtracted Stage = "extracted"
	StageChunked   Stage = "chunked"
	StageEmbedded  Stage = "embedded"
	StageReplaced  Stage = "replaced"
	StageStored    Stage = "stored"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

// IngestError reports a run that transitioned to StageFailed.
// Stage is the state the run was leaving when it failed. Mutated is set once
// the delete step has been attempted: the document's previous passages may be
// partially or entirely gone and the ingestion should be retried.
type IngestError struct {
	DocumentID string
	Stage      Stage
	Reason     error
	Err        error
	Mutated    bool
}

func (e *IngestError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ingest %q: %v (at %s)", e.DocumentID, e.Reason, e.Stage)
	}
	return fmt.Sprintf("ingest %q: %v (at %s): %v", e.DocumentID, e.Reason, e.Stage, e.Err)
}

func (e *IngestError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

type RetrievalError struct {
	Reason error
	Err    error
}

func (e *RetrievalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("query: %v", e.Reason)
	}
	return fmt.Sprintf("query: %v: %v", e.Reason, e.Err)
}

func (e *RetrievalError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}
