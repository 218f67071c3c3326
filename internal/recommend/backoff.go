package recommend

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// BackoffType selects the delay growth between retries.
type BackoffType string

const (
	BackoffNone        BackoffType = "none"
	BackoffLinear      BackoffType = "linear"
	BackoffExponential BackoffType = "exponential"
)

// RetryPolicy bounds retries of a remote call. Retries never outlive the
// context of the call that triggered them.
type RetryPolicy struct {
	Strategy     BackoffType
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// CalculateBackoff computes the delay for the next retry attempt.
func CalculateBackoff(strategy BackoffType, attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	switch strategy {
	case BackoffNone:
		return initialDelay
	case BackoffLinear:
		delay := time.Duration(attempt) * initialDelay
		if maxDelay > 0 && delay > maxDelay {
			return maxDelay
		}
		return delay
	case BackoffExponential:
		if attempt > 62 {
			return maxDelay
		}
		delay := time.Duration(1<<attempt) * initialDelay
		if maxDelay > 0 && (delay > maxDelay || delay < 0) {
			return maxDelay
		}
		return delay
	default:
		return initialDelay
	}
}

// retry runs fn until it succeeds, fails permanently, exhausts the policy or
// the context ends.
func retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var (
		out T
		err error
	)
	for attempt := 1; ; attempt++ {
		out, err = fn(ctx)
		if err == nil || attempt >= attempts || !isTransientError(err) {
			return out, err
		}
		timer := time.NewTimer(CalculateBackoff(p.Strategy, attempt, p.InitialDelay, p.MaxDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return out, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

// isTransientError checks if an error is likely to be temporary.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsTemporary {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}
