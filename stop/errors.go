package stop

import "errors"

// Error taxonomy for the progression engine. Handlers map these onto HTTP
// statuses; everything else that bubbles up from the store is wrapped in
// ErrStoreUnavailable so callers know a retry with backoff is appropriate.
var (
	// ErrNotFound means the referenced delivery or stop does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition means the request would violate the stop ordering
	// or terminal-state rules (completing a completed stop, arriving out of
	// order, rewinding a terminal field).
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrConflictRetryable means a concurrent cursor update won the race.
	// The engine retries these internally a bounded number of times.
	ErrConflictRetryable = errors.New("concurrent update conflict")

	// ErrStoreUnavailable means a transient store failure, including conflict
	// retries being exhausted. The caller may re-drive the whole operation.
	ErrStoreUnavailable = errors.New("store unavailable")
)
