package entities

import "errors"

// Error taxonomy shared by use cases and transports.
var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrNoMaterialFound      = errors.New("no course material found for the selected criteria")
	ErrMaterialLookupFailed = errors.New("course material lookup failed")
	ErrEmbeddingFailed      = errors.New("embedding failed")
	ErrGenerationFailed     = errors.New("answer generation failed")
	ErrNotFound             = errors.New("chat session not found")
	ErrConflict             = errors.New("chat session was modified concurrently")
)

// IsUpstreamFailure reports whether err came from an external collaborator.
func IsUpstreamFailure(err error) bool {
	return errors.Is(err, ErrMaterialLookupFailed) ||
		errors.Is(err, ErrEmbeddingFailed) ||
		errors.Is(err, ErrGenerationFailed)
}
