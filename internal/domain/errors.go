package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation signals malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrBadRequest signals a request the engine cannot serve as asked.
	ErrBadRequest = errors.New("bad request")
	// ErrConflict signals a uniqueness or usage violation.
	ErrConflict = errors.New("conflict")
	// ErrUnknownField signals a field that does not exist on a resource type.
	ErrUnknownField = errors.New("unknown field")
	// ErrAccessDenied signals an ownership or field visibility violation.
	ErrAccessDenied = errors.New("access denied")
	// ErrUnauthenticated signals a write attempted without a read-write key.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrNotFound signals a missing resource, revision or type.
	ErrNotFound = errors.New("not found")
	// ErrUnsupported signals an operation that exists on the surface but is not implemented.
	ErrUnsupported = errors.New("unsupported operation")
	// ErrTransientBackend signals an index backend hiccup that survived retries.
	ErrTransientBackend = errors.New("search backend unavailable")
	// ErrFatalIO signals a storage write, copy or move failure.
	ErrFatalIO = errors.New("storage failure")

	// ErrRevisionConflict signals an optimistic locking conflict.
	ErrRevisionConflict = errors.New("revision conflict")
)

// RevisionConflictError wraps ErrRevisionConflict with the current default revision.
type RevisionConflictError struct {
	CurrentRevision int64
}

func (e *RevisionConflictError) Error() string {
	return fmt.Sprintf("%s: current revision is %d", ErrRevisionConflict.Error(), e.CurrentRevision)
}

func (e *RevisionConflictError) Unwrap() error { return ErrRevisionConflict }

// NewRevisionConflict creates a revision conflict error.
func NewRevisionConflict(currentRevision int64) error {
	return &RevisionConflictError{CurrentRevision: currentRevision}
}

// CacheableError attaches HTTP cache metadata to an error so repeated
// requests for the same missing thing can be served from a cache.
type CacheableError struct {
	Err    error
	MaxAge time.Duration
}

func (e *CacheableError) Error() string { return e.Err.Error() }

func (e *CacheableError) Unwrap() error { return e.Err }

// WithMaxAge marks err as cacheable for d.
func WithMaxAge(err error, d time.Duration) error {
	if err == nil {
		return nil
	}
	return &CacheableError{Err: err, MaxAge: d}
}

// CacheMaxAge returns the max-age attached anywhere in err's chain.
func CacheMaxAge(err error) (time.Duration, bool) {
	var ce *CacheableError
	if errors.As(err, &ce) {
		return ce.MaxAge, true
	}
	return 0, false
}
