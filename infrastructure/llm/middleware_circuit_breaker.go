package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-tribunal/internal/ports"
)

// ErrCircuitOpen is returned without calling the provider while the breaker
// is open. It matches ports.ErrServiceUnavailable.
var ErrCircuitOpen = fmt.Errorf("circuit breaker is open: %w", ports.ErrServiceUnavailable)

// BreakerState is the state of a CircuitBreaker.
type BreakerState int

// Breaker states.
const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker opens after maxFailures consecutive failures and lets a
// single probe through once cooldown has elapsed. A successful probe closes
// it; a failed probe reopens it.
//
// Context cancellation by the caller is not counted as a provider failure.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool
	now         func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{maxFailures: max(1, maxFailures), cooldown: cooldown, now: time.Now}
}

// State returns the current state, reporting half-open once the cooldown has
// elapsed.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == BreakerOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		return BreakerHalfOpen
	}
	return cb.state
}

// allow reports whether a request may proceed.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.state = BreakerHalfOpen
		cb.probing = true
		return true
	case BreakerHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	}
	return true
}

// record updates the breaker with the outcome of an allowed request.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false

	switch {
	case err == nil:
		cb.failures = 0
		cb.state = BreakerClosed
		return
	case errors.Is(err, context.Canceled):
		// An abandoned probe leaves the cooldown elapsed; the next call probes.
		if cb.state == BreakerHalfOpen {
			cb.state = BreakerOpen
		}
		return
	}

	cb.failures++
	if cb.state == BreakerHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = BreakerOpen
		cb.openedAt = cb.now()
	}
}

type breakerLLM struct {
	next CoreLLM
	cb   *CircuitBreaker
}

// CircuitBreakerMiddleware guards the provider with a new CircuitBreaker.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return WithCircuitBreaker(NewCircuitBreaker(maxFailures, cooldown))
}

// WithCircuitBreaker guards the provider with cb, which may be shared.
func WithCircuitBreaker(cb *CircuitBreaker) Middleware {
	return func(next CoreLLM) CoreLLM { return &breakerLLM{next: next, cb: cb} }
}

func (b *breakerLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if !b.cb.allow() {
		return "", 0, 0, ErrCircuitOpen
	}
	resp, in, out, err := b.next.DoRequest(ctx, prompt, opts)
	b.cb.record(err)
	return resp, in, out, err
}

func (b *breakerLLM) GetModel() string  { return b.next.GetModel() }
func (b *breakerLLM) SetModel(m string) { b.next.SetModel(m) }
