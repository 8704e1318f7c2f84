package job

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/vietddude/harvester/internal/core/backend"
)

// DefaultMaxRetries is the number of attempts a job gets when none is set.
const DefaultMaxRetries = 3

// FailureCategory tells the executor whether a failed run may be retried.
type FailureCategory int

const (
	CategoryTransient FailureCategory = iota
	CategoryPermanent
)

// Classifier maps a run error to a failure category.
type Classifier func(err error) FailureCategory

// DefaultClassifier treats argument-binding failures and context
// cancellation as permanent and everything else as transient.
func DefaultClassifier(err error) FailureCategory {
	switch {
	case errors.Is(err, backend.ErrInvalidArguments),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryPermanent
	default:
		return CategoryTransient
	}
}

// RetryPolicy decides how long to wait before resuming a failed job.
type RetryPolicy interface {
	// Delay returns the wait before the next attempt, given the number of
	// failures so far (1 after the first failure).
	Delay(failures int) time.Duration
}

// NoDelay resumes immediately.
type NoDelay struct{}

func (NoDelay) Delay(int) time.Duration { return 0 }

// ExponentialBackoff waits InitialDelay * 2^(failures-1), capped at MaxDelay.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Delay calculates the backoff for the given failure count.
func (b ExponentialBackoff) Delay(failures int) time.Duration {
	if failures < 1 || b.InitialDelay <= 0 {
		return 0
	}
	delay := float64(b.InitialDelay) * math.Pow(2, float64(failures-1))
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		return b.MaxDelay
	}
	return time.Duration(delay)
}
