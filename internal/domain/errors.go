package domain

import "errors"

// Sentinel errors used throughout the application.
// Callers classify failures with errors.Is against these.
var (
	// ErrConnection is fatal: the LISTEN connection is gone and the process
	// should exit (restart is an operational concern, not an internal retry).
	ErrConnection = errors.New("notification connection lost")

	// ErrMalformedPayload and ErrUnknownChannel are per-notification errors;
	// the listener logs and skips, the loop keeps running.
	ErrMalformedPayload = errors.New("malformed notification payload")
	ErrUnknownChannel   = errors.New("no event registered for channel")

	// ErrQueueFull means the executor rejected a submission; the module
	// stays in processing until a reconciliation scan picks it up again.
	ErrQueueFull = errors.New("task queue is at capacity")

	ErrTaskNotFound = errors.New("task not found")
	ErrNotFound     = errors.New("not found")

	// ErrNoRecipes: neither a primary nor a fallback recipe exists for the
	// module, so a bake has nothing to attempt.
	ErrNoRecipes = errors.New("no bake recipes available for module")
)
