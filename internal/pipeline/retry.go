package pipeline

import (
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/dgallion1/ragdoc/internal/llm"
)

// IsRetryable checks if an error is worth retrying: rate limits, server
// errors and transport failures while fetching, or a transient oracle
// failure.
func IsRetryable(err error) bool {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.transport ||
			fetchErr.StatusCode == http.StatusTooManyRequests ||
			fetchErr.StatusCode >= 500
	}
	var retryErr *llm.RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

const MaxRetries = 3
