package gemini

import (
	"fmt"
	"time"
)

// QuotaError reports an upstream 429 or a call attempted while the shared
// cool-down clock is still armed. RetryAfter is never negative.
type QuotaError struct {
	RetryAfter time.Duration
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exhausted, retry after %s", e.RetryAfter)
}

// UnavailableError reports an upstream 503 that survived the fallback-model
// retry. RetryAfter carries the computed backoff.
type UnavailableError struct {
	RetryAfter time.Duration
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("model unavailable, retry after %s", e.RetryAfter)
}
