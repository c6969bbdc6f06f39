package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput        = errors.New("invalid request")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrPartyNotFound       = errors.New("party not found")
	ErrStoreUnavailable    = errors.New("chunk store unavailable")
	ErrEmbeddingFailed     = errors.New("embedding failed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrGenerationFailed    = errors.New("generation failed")
	ErrTimeout             = errors.New("request timed out")
	ErrCancelled           = errors.New("request cancelled")
	ErrTemporary           = errors.New("temporary failure")

	// ErrDimensionMismatch is a configuration error: the query embedding model
	// and the ingested store disagree on vector width.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindName returns a stable machine-readable name for the most specific kind in err.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKind(err, ErrInvalidInput):
		return "invalid_request"
	case IsKind(err, ErrUnauthorized):
		return "unauthorized"
	case IsKind(err, ErrPartyNotFound):
		return "party_not_found"
	case IsKind(err, ErrTimeout):
		return "timeout"
	case IsKind(err, ErrCancelled):
		return "cancelled"
	case IsKind(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case IsKind(err, ErrStoreUnavailable):
		return "store_unavailable"
	case IsKind(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case IsKind(err, ErrEmbeddingFailed):
		return "embedding_failed"
	case IsKind(err, ErrGenerationFailed):
		return "generation_failed"
	case IsKind(err, ErrTemporary):
		return "temporary"
	default:
		return "internal"
	}
}
