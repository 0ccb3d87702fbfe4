package stophistory

import "errors"

// Error taxonomy surfaced by Read and Append. Callers classify with
// errors.Is; "no data yet" is never reported through an error, it is an
// empty history with a nil error.
var (
	// ErrInvalidInput marks an empty stop id, zero timestamp, or malformed
	// event, rejected before any store call.
	ErrInvalidInput = errors.New("stophistory: invalid input")

	// ErrStoreUnreachable marks a connection or timeout failure talking to
	// the external store.
	ErrStoreUnreachable = errors.New("stophistory: store unreachable")

	// ErrSerialization marks stored bytes that cannot be decoded into a day
	// history. Distinct from absence so operators can detect corrupt or
	// version-mismatched entries.
	ErrSerialization = errors.New("stophistory: cannot decode stored history")

	// ErrConflict is returned when an append lost the optimistic-write race
	// more times than the retry budget allows.
	ErrConflict = errors.New("stophistory: append conflict persisted past retry budget")
)
