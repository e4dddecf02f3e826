package services

import "errors"

// Sentinel errors shared across the service layer. Deadline exhaustion is
// represented by context.DeadlineExceeded so callers can race work against
// a timer with standard context semantics.
var (
	// ErrNotFound means a referenced fact or task does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation means malformed input was rejected at a component boundary.
	ErrValidation = errors.New("validation failed")

	// ErrCollaboratorUnavailable means an external collaborator (retriever,
	// LLM, persistence) could not be reached or answered with garbage.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)
