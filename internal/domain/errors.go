package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrValidation signals rejected input; never retried.
	ErrValidation = errors.New("validation failed")
	// ErrEmptyBatch signals an upsert or embed call with zero items.
	ErrEmptyBatch = errors.New("empty batch")
	// ErrInvalidChunkID signals a malformed chunk identifier.
	ErrInvalidChunkID = errors.New("invalid chunk id")
	// ErrNonFiniteVector signals a vector containing NaN or Inf.
	ErrNonFiniteVector = errors.New("vector contains non-finite values")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")

	// ErrRateLimited signals a rate limit hit; retryable.
	ErrRateLimited = errors.New("rate limited")
	// ErrBackendUnavailable signals an unreachable index backend; retryable.
	ErrBackendUnavailable = errors.New("index backend unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrLockTimeout signals failure to acquire a per-unit lock in time; retryable.
	ErrLockTimeout = errors.New("lock acquisition timed out")
)

// Retryable reports whether err belongs to the transient failure class.
// Timeouts are classified by the caller via context errors.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrBackendUnavailable) ||
		errors.Is(err, ErrLockTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

// EmbedBatchError identifies the inputs of a failed embedding sub-batch
// after retries were exhausted. Positions index into the original batch.
type EmbedBatchError struct {
	Positions []int
	Err       error
}

func (e *EmbedBatchError) Error() string {
	return fmt.Sprintf("embedding failed for %d inputs (positions %s): %v",
		len(e.Positions), formatPositions(e.Positions), e.Err)
}

func (e *EmbedBatchError) Unwrap() error { return e.Err }

func formatPositions(positions []int) string {
	if len(positions) == 0 {
		return "none"
	}
	if len(positions) > 8 {
		return fmt.Sprintf("%d..%d", positions[0], positions[len(positions)-1])
	}
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return strings.Join(parts, ",")
}
