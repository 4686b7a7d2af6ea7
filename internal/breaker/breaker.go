// Package breaker implements the three-state circuit breaker (closed, open,
// half_open) that guards Matcher and ChatRouter calls into the Store.
// There is no equivalent in the teacher repo — chatgogo calls storage
// directly and lets failures propagate — so this is built from spec.md
// §4.5's explicit state machine using only sync/time: a breaker is a small,
// self-contained state machine and the ecosystem options (sony/gobreaker,
// afex/hystrix-go) add a configuration surface this component doesn't need
// beyond the three counters and one timer spec.md already specifies.
package breaker

import (
	"sync"
	"time"
)

type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Config holds the per-component thresholds spec.md §4.5 assigns
// differently to Matcher and ChatRouter.
type Config struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxAttempts int
}

// MatcherDefaults returns the Matcher's breaker configuration.
func MatcherDefaults() Config {
	return Config{FailureThreshold: 3, ResetTimeout: 60 * time.Second, HalfOpenMaxAttempts: 2}
}

// ChatRouterDefaults returns the ChatRouter's breaker configuration.
func ChatRouterDefaults() Config {
	return Config{FailureThreshold: 5, ResetTimeout: 30 * time.Second, HalfOpenMaxAttempts: 3}
}

// CircuitBreaker wraps calls that may fail against an unreliable downstream
// (the Store) and trips open after too many consecutive failures.
type CircuitBreaker struct {
	cfg Config

	mu               sync.Mutex
	state            State
	consecutiveFails int
	halfOpenSuccess  int
	openedAt         time.Time
}

func New(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: Closed}
}

func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpen()
	return b.state
}

// maybeTransitionToHalfOpen moves open -> half_open once resetTimeout has
// elapsed since the breaker tripped. Caller must hold b.mu.
func (b *CircuitBreaker) maybeTransitionToHalfOpen() {
	if b.state == Open && time.Since(b.openedAt) >= b.cfg.ResetTimeout {
		b.state = HalfOpen
		b.halfOpenSuccess = 0
	}
}

// Allow reports whether a call should be attempted right now. Callers in
// the open state should run their fallback instead of calling Store.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpen()
	return b.state != Open
}

// RecordSuccess reports a successful downstream call.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.cfg.HalfOpenMaxAttempts {
			b.state = Closed
			b.consecutiveFails = 0
		}
	case Closed:
		b.consecutiveFails = 0
	}
}

// RecordFailure reports a failed downstream call. Only errors for which
// apperr.CountsAgainstBreaker is true should reach here.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.consecutiveFails++
		if b.consecutiveFails >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

func (b *CircuitBreaker) trip() {
	b.state = Open
	b.openedAt = time.Now()
	b.consecutiveFails = 0
	b.halfOpenSuccess = 0
}

// Do runs fn if the breaker allows it, recording the outcome. If the
// breaker is open, it runs fallback instead and returns its error.
func (b *CircuitBreaker) Do(fn func() error, countsAgainstBreaker func(error) bool, fallback func() error) error {
	if !b.Allow() {
		if fallback != nil {
			return fallback()
		}
		return ErrOpen
	}
	err := fn()
	if err == nil {
		b.RecordSuccess()
		return nil
	}
	if countsAgainstBreaker == nil || countsAgainstBreaker(err) {
		b.RecordFailure()
	}
	return err
}

// ErrOpen is returned by Do when the breaker is open and no fallback was
// supplied.
var ErrOpen = openError{}

type openError struct{}

func (openError) Error() string { return "circuit breaker open" }
