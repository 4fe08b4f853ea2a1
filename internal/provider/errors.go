package provider

import "errors"

// Sentinel errors classifying attempt failures. The attempt-level errors
// are recovered locally by the orchestrator (advance to the next candidate)
// and are never surfaced to the caller individually.
var (
	// ErrTimeout marks an attempt that exceeded its per-attempt deadline.
	ErrTimeout = errors.New("provider timeout")

	// ErrRejected marks an auth or quota rejection by the backend.
	ErrRejected = errors.New("provider rejected request")

	// ErrRateLimited marks a backend 429; distinct from ErrRejected so
	// callers can tell throttling from bad credentials.
	ErrRateLimited = errors.New("provider rate limited request")

	// ErrMalformed marks a response that could not be parsed or was empty.
	ErrMalformed = errors.New("provider returned malformed response")

	// ErrUnknownProvider is returned by the registry for names it does not hold.
	ErrUnknownProvider = errors.New("unknown provider")
)
