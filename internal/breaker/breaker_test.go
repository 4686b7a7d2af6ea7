package breaker_test

import (
	"errors"
	"testing"
	"time"

	"anonchat/internal/breaker"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	b := breaker.New(breaker.Config{FailureThreshold: 3, ResetTimeout: time.Minute, HalfOpenMaxAttempts: 2})

	for i := 0; i < 2; i++ {
		err := b.Do(func() error { return errors.New("boom") }, nil, nil)
		assert.Error(t, err)
		assert.Equal(t, breaker.Closed, b.State())
	}

	err := b.Do(func() error { return errors.New("boom") }, nil, nil)
	assert.Error(t, err)
	assert.Equal(t, breaker.Open, b.State())
}

func TestCircuitBreaker_OpenRunsFallback(t *testing.T) {
	b := breaker.New(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Hour, HalfOpenMaxAttempts: 1})
	_ = b.Do(func() error { return errors.New("boom") }, nil, nil)
	assert.Equal(t, breaker.Open, b.State())

	called := false
	err := b.Do(func() error {
		called = true
		return nil
	}, nil, func() error { return errors.New("fallback") })

	assert.False(t, called, "fn should not run while breaker is open")
	assert.EqualError(t, err, "fallback")
}

func TestCircuitBreaker_HalfOpenClosesAfterSuccesses(t *testing.T) {
	b := breaker.New(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Millisecond, HalfOpenMaxAttempts: 2})
	_ = b.Do(func() error { return errors.New("boom") }, nil, nil)
	assert.Equal(t, breaker.Open, b.State())

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, breaker.HalfOpen, b.State())

	_ = b.Do(func() error { return nil }, nil, nil)
	assert.Equal(t, breaker.HalfOpen, b.State())
	_ = b.Do(func() error { return nil }, nil, nil)
	assert.Equal(t, breaker.Closed, b.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := breaker.New(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Millisecond, HalfOpenMaxAttempts: 2})
	_ = b.Do(func() error { return errors.New("boom") }, nil, nil)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, breaker.HalfOpen, b.State())

	_ = b.Do(func() error { return errors.New("still broken") }, nil, nil)
	assert.Equal(t, breaker.Open, b.State())
}

func TestCircuitBreaker_CountsAgainstBreakerFilter(t *testing.T) {
	b := breaker.New(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Minute, HalfOpenMaxAttempts: 1})
	countsFn := func(error) bool { return false }

	err := b.Do(func() error { return errors.New("validation only, not a store outage") }, countsFn, nil)
	assert.Error(t, err)
	assert.Equal(t, breaker.Closed, b.State(), "errors excluded by the filter must not trip the breaker")
}
