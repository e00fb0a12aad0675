package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyStopsOnSuccess(t *testing.T) {
	p := NewRetryPolicy(3, time.Millisecond)
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryPolicyHonorsRetryable(t *testing.T) {
	p := NewRetryPolicy(5, time.Millisecond)
	p.Retryable = isThrottled
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("bad request")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected single non-retryable attempt, got calls=%d err=%v", calls, err)
	}
}

func TestRetryPolicyStopsOnContextDone(t *testing.T) {
	p := NewRetryPolicy(5, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected to stop after cancel, got calls=%d err=%v", calls, err)
	}
}

var errThrottled = errors.New("429 too many requests")

func isThrottled(err error) bool { return errors.Is(err, errThrottled) }

func TestCircuitBreakerOpensAndCoolsDown(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(2, time.Minute, isThrottled)
	cb.now = func() time.Time { return now }

	cb.OnError(errors.New("ignored"))
	cb.OnError(errThrottled)
	if !cb.Allow() {
		t.Fatalf("expected breaker closed after one counted failure")
	}
	cb.OnError(errThrottled)
	if cb.Allow() || cb.State() != BreakerOpen {
		t.Fatalf("expected breaker open after threshold, state %s", cb.State())
	}
	now = now.Add(2 * time.Minute)
	if !cb.Allow() || cb.State() != BreakerHalfOpen {
		t.Fatalf("expected a probe after cooldown, state %s", cb.State())
	}
	if cb.Allow() {
		t.Fatalf("expected only one probe while half open")
	}
	cb.OnSuccess()
	if !cb.Allow() || cb.State() != BreakerClosed {
		t.Fatalf("expected breaker closed after successful probe")
	}
}

func TestCircuitBreakerProbeFailureReopens(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(1, time.Minute, nil)
	cb.now = func() time.Time { return now }
	cb.OnError(errThrottled)
	now = now.Add(time.Minute)
	if !cb.Allow() {
		t.Fatalf("expected probe after cooldown")
	}
	cb.OnError(errThrottled)
	if cb.Allow() || cb.State() != BreakerOpen {
		t.Fatalf("expected failed probe to reopen the breaker")
	}
}
