package ingest

import (
	"errors"
	"fmt"
)

// Kind categorizes ingestion failures.
type Kind string

const (
	// KindExtraction means the document did not have the expected shape.
	KindExtraction Kind = "EXTRACTION_FAILURE"

	// KindIdentityMissing means no process id could be resolved.
	KindIdentityMissing Kind = "IDENTITY_MISSING"

	// KindStoreUnavailable is transient store contention. It is retried.
	KindStoreUnavailable Kind = "STORE_UNAVAILABLE"

	// KindLockUnavailable means the process lock was not obtained in time.
	// It is retried.
	KindLockUnavailable Kind = "LOCK_UNAVAILABLE"

	// KindStore is any other store failure.
	KindStore Kind = "STORE_FAILURE"

	// KindFetch means the raw document could not be retrieved.
	KindFetch Kind = "FETCH_FAILURE"
)

// Error is a per-document ingestion failure.
type Error struct {
	Kind      Kind
	Document  string
	ProcessID string
	Err       error
}

func (e *Error) Error() string {
	if e.ProcessID != "" {
		return fmt.Sprintf("%s: %s (process=%s): %v", e.Kind, e.Document, e.ProcessID, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Document, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of an ingestion error, or "" when err is not one.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// IsRetryable reports whether err is transient and worth another attempt.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindStoreUnavailable, KindLockUnavailable:
		return true
	default:
		return false
	}
}
