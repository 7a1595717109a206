package chat

import "errors"

// Operation errors detected before any upstream call. Handlers map these to
// response statuses; everything else surfaces as an internal error.
var (
	// ErrNotFound: the conversation or turn does not exist, or the caller
	// does not own the conversation it was addressed through.
	ErrNotFound = errors.New("not found")

	// ErrInvalidOperation: the operation is not allowed for the target,
	// e.g. editing an assistant turn.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrForbidden: the turn exists but its conversation belongs to
	// someone else.
	ErrForbidden = errors.New("forbidden")
)
