// Package pipeline orchestrates ingestion runs: fetch every active source in
// parallel, then resolve and commit the staged candidates sequentially.
package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure for reporting and retry decisions.
type ErrorKind string

const (
	KindNetworkTimeout    ErrorKind = "network_timeout"
	KindRateLimited       ErrorKind = "rate_limited"
	KindSourceUnavailable ErrorKind = "source_unavailable"
	KindParseError        ErrorKind = "parse_error"
	KindValidationError   ErrorKind = "validation_error"
	KindUnknownCity       ErrorKind = "unknown_city"
	KindConflictOnMerge   ErrorKind = "conflict_on_merge"
	KindDatabaseError     ErrorKind = "database_error"
	KindSearchIndexError  ErrorKind = "search_index_error"
)

// Retriable reports whether a failure of this kind is worth another attempt.
// Malformed or invalid input never is; infrastructure trouble is.
func (k ErrorKind) Retriable() bool {
	switch k {
	case KindNetworkTimeout, KindRateLimited, KindSourceUnavailable,
		KindConflictOnMerge, KindDatabaseError, KindSearchIndexError:
		return true
	default:
		return false
	}
}

// PipelineError ties a failure to the source it occurred on.
type PipelineError struct {
	Kind   ErrorKind
	Source string
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Source, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewError wraps err with a kind and the source name it belongs to.
func NewError(kind ErrorKind, source string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Source: source, Err: err}
}

// classifyFetch maps an adapter fetch failure to an error kind.
func classifyFetch(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetworkTimeout
	}
	return KindSourceUnavailable
}
