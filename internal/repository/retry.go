package repository

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"syscall"
	"time"
)

const (
	// DefaultMaxAttempts is the total number of attempts (not re-tries)
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the backoff delay before the first retry
	DefaultBaseDelay = time.Second
	// DefaultBackoffFactor multiplies the delay after each failed attempt
	DefaultBackoffFactor = 2
)

// Retryer wraps persistence operations with bounded exponential-backoff
// retry for transient connectivity failures. Any non-transient error
// propagates immediately on the first attempt.
//
// The retryer does not make the wrapped operation idempotent. Callers must
// pass operations that are safe to re-invoke: single-statement inserts keyed
// by a fixed id, or work wrapped in a transaction.
type Retryer struct {
	maxAttempts int
	baseDelay   time.Duration
	factor      int
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewRetryer creates a Retryer with the default policy
func NewRetryer() *Retryer {
	return NewRetryerWithPolicy(DefaultMaxAttempts, DefaultBaseDelay, DefaultBackoffFactor)
}

// NewRetryerWithPolicy creates a Retryer with an explicit policy
func NewRetryerWithPolicy(maxAttempts int, baseDelay time.Duration, factor int) *Retryer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if factor <= 0 {
		factor = DefaultBackoffFactor
	}
	return &Retryer{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		factor:      factor,
		sleep:       sleepCtx,
	}
}

// WithSleep overrides the delay function (for testing)
func (r *Retryer) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Retryer {
	r.sleep = sleep
	return r
}

// Do runs the operation, retrying transient failures up to the attempt
// budget. The name is only used for logging.
func (r *Retryer) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	delay := r.baseDelay

	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}

		if !IsTransient(err) || attempt == r.maxAttempts {
			return err
		}

		log.Printf("retry: %s attempt %d/%d failed (%v), retrying in %v", name, attempt, r.maxAttempts, err, delay)
		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		delay *= time.Duration(r.factor)
	}

	return err
}

// IsTransient classifies an error as a transient connectivity failure worth
// retrying: refused/reset connections, DNS failures, network timeouts and
// abruptly dropped connections.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
