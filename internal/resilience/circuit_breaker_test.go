// SPDX-License-Identifier: MIT

package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time { return m.now }

func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 3, 30*time.Second, WithClock(clock))

	assert.Equal(t, StateClosed, cb.State())

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State(), "non-consecutive failures must not trip")
}

func TestCircuitBreaker_CooldownAdmitsSingleProbe(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 30*time.Second, WithClock(clock))

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	// Cooldown not yet elapsed
	clock.now = clock.now.Add(29 * time.Second)
	assert.False(t, cb.Allow())

	// Cooldown elapsed: exactly one probe goes through
	clock.now = clock.now.Add(2 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.False(t, cb.Allow(), "second caller must wait for the probe to settle")
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 10*time.Second, WithClock(clock))

	cb.RecordFailure()
	clock.now = clock.now.Add(11 * time.Second)
	assert.True(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 10*time.Second, WithClock(clock))

	cb.RecordFailure()
	opened := clock.now
	clock.now = opened.Add(11 * time.Second)
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	// openedAt was reset: the old cooldown baseline no longer applies
	clock.now = opened.Add(12 * time.Second)
	assert.False(t, cb.Allow())

	clock.now = clock.now.Add(10 * time.Second)
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_DefaultsApplied(t *testing.T) {
	cb := NewCircuitBreaker("test", 0, 0)
	assert.Equal(t, 3, cb.threshold)
	assert.Equal(t, 30*time.Second, cb.cooldown)
}

func TestQuadraticBackoff(t *testing.T) {
	b := QuadraticBackoff(500 * time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, b.DelayFor(1))
	assert.Equal(t, 2*time.Second, b.DelayFor(2))
	assert.Equal(t, 4500*time.Millisecond, b.DelayFor(3))
	assert.Equal(t, 500*time.Millisecond, b.DelayFor(0), "attempts below 1 clamp to 1")
}

func TestQuadraticBackoff_DefaultBase(t *testing.T) {
	b := QuadraticBackoff(0)
	assert.Equal(t, 500*time.Millisecond, b.DelayFor(1))
}
