package retry

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// RetryPolicy defines how to retry an operation
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// OnRetry is called before each retry with the attempt number that failed
	OnRetry func(attempt int, err error)
}

// DefaultPolicy is a sensible default retry policy
var DefaultPolicy = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// IsTransientFunc defines if an error is transient and should be retried
type IsTransientFunc func(error) bool

// Always treats every error as transient
func Always(error) bool { return true }

// Do executes fn with jittered exponential backoff until it succeeds, returns a
// non-transient error, the attempts run out or ctx is done.
func Do(ctx context.Context, policy RetryPolicy, isTransient IsTransientFunc, fn func() error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = DefaultPolicy.InitialBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	if isTransient == nil {
		isTransient = Always
	}

	builder := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return err != nil && isTransient(err)
		}).
		WithBackoff(policy.InitialBackoff, policy.MaxBackoff).
		WithJitterFactor(0.25).
		WithMaxRetries(policy.MaxAttempts - 1).
		ReturnLastFailure()

	if policy.OnRetry != nil {
		builder = builder.OnRetry(func(e failsafe.ExecutionEvent[any]) {
			policy.OnRetry(e.Attempts(), e.LastError())
		})
	}

	return failsafe.With[any](builder.Build()).WithContext(ctx).Run(fn)
}
