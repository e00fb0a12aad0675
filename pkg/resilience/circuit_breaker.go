package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by callers that consult Allow and get refused.
var ErrCircuitOpen = errors.New("circuit open")

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker refuses calls for cooldown after threshold consecutive
// counted failures, then admits a single probe. A successful probe closes it;
// a counted probe failure opens it again.
type CircuitBreaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	probing   bool
	counts    func(error) bool
	now       func() time.Time
}

// NewCircuitBreaker builds a closed breaker. counts selects which errors trip
// it; nil counts every error.
func NewCircuitBreaker(threshold int, cooldown time.Duration, counts func(error) bool) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, counts: counts, now: time.Now}
}

// Allow reports whether a call may proceed. Every admitted call must be
// followed by OnSuccess or OnError.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if c.now().Sub(c.openedAt) < c.cooldown {
			return false
		}
		c.state = BreakerHalfOpen
		c.probing = true
		return true
	default:
		if c.probing {
			return false
		}
		c.probing = true
		return true
	}
}

func (c *CircuitBreaker) OnSuccess() {
	c.mu.Lock()
	c.state = BreakerClosed
	c.failures = 0
	c.probing = false
	c.mu.Unlock()
}

func (c *CircuitBreaker) OnError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts != nil && !c.counts(err) {
		// The remote answered; let the next call probe again.
		c.probing = false
		return
	}
	if c.state == BreakerHalfOpen {
		c.trip()
		return
	}
	c.failures++
	if c.failures >= c.threshold {
		c.trip()
	}
}

func (c *CircuitBreaker) State() BreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *CircuitBreaker) trip() {
	c.state = BreakerOpen
	c.openedAt = c.now()
	c.failures = 0
	c.probing = false
}
