package types

import "github.com/m-mizutani/goerr/v2"

// Error taxonomy of the memory subsystem. Callers branch on these with
// errors.Is; everything else wraps one of them via goerr.
var (
	// ErrInvalidArgument covers malformed input: empty required fields,
	// non-positive limits, embedding dimensionality mismatch. Never retried.
	ErrInvalidArgument = goerr.New("invalid argument")

	// ErrStorageUnavailable means the durable store could not be reached.
	// Call sites retry a small bounded number of times with backoff.
	ErrStorageUnavailable = goerr.New("storage unavailable")

	// ErrEmbeddingFailure means the embedding collaborator failed or timed
	// out. The turn proceeds in degraded mode with empty retrieval context.
	ErrEmbeddingFailure = goerr.New("embedding failure")
)
