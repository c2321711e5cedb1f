package resdex

import "github.com/kailas-cloud/resdex/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound         = domain.ErrNotFound
	ErrValidation       = domain.ErrValidation
	ErrConflict         = domain.ErrConflict
	ErrAccessDenied     = domain.ErrAccessDenied
	ErrUnauthenticated  = domain.ErrUnauthenticated
	ErrUnsupported      = domain.ErrUnsupported
	ErrRevisionConflict = domain.ErrRevisionConflict
)
