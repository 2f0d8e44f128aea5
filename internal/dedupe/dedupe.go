// SPDX-License-Identifier: MIT

// Package dedupe coordinates idempotent request execution. At most one
// attempt is ever in flight per idempotency key; concurrent callers share the
// owner's outcome, and replays of a completed key are rejected until the
// dedupe window expires.
package dedupe

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrDuplicateRequest rejects a key that completed within its dedupe window.
var ErrDuplicateRequest = errors.New("Duplicate OmniLink request")

// clock abstracts time operations for testability.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type slotState int

const (
	statePending slotState = iota
	stateCompleted
)

// slot is one dedup entry. Fields other than done are written once by the
// owning caller before done is closed; waiters read them only after done.
type slot[T any] struct {
	done      chan struct{}
	state     slotState
	result    T
	err       error
	expiresAt time.Time
}

// Coordinator linearizes acquisition per idempotency key. All map access is
// guarded by a single mutex so late duplicates observe a fully-formed entry,
// never a half-written one; bookkeeping is constant-time per request.
type Coordinator[T any] struct {
	mu         sync.Mutex
	slots      map[string]*slot[T]
	defaultTTL time.Duration
	clock      clock

	// Decision is an optional hook reporting the coordinator's decision per
	// acquisition: "owner", "shared", "duplicate", or "expired".
	Decision func(decision string)
}

// Option configuration pattern
type Option[T any] func(*Coordinator[T])

func WithClock[T any](c clock) Option[T] {
	return func(co *Coordinator[T]) { co.clock = c }
}

// NewCoordinator creates a coordinator with the given default dedupe TTL.
func NewCoordinator[T any](defaultTTL time.Duration, opts ...Option[T]) *Coordinator[T] {
	if defaultTTL <= 0 {
		defaultTTL = 60 * time.Second
	}
	co := &Coordinator[T]{
		slots:      make(map[string]*slot[T]),
		defaultTTL: defaultTTL,
		clock:      realClock{},
	}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

// Do executes fn under the slot identified by key.
//
// An empty key applies no deduplication. Otherwise exactly one caller becomes
// the owner and runs fn; callers arriving while the slot is pending wait for
// and share the owner's outcome verbatim. A key that completed within the
// dedupe window fails with ErrDuplicateRequest; an expired entry is evicted
// and the key treated as fresh. ttl overrides the default window when
// positive. ctx bounds only this caller's wait, never the owner's attempt.
func (c *Coordinator[T]) Do(ctx context.Context, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	if key == "" {
		return fn()
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	if s, ok := c.slots[key]; ok {
		switch s.state {
		case statePending:
			c.mu.Unlock()
			c.decide("shared")
			return c.wait(ctx, s)
		case stateCompleted:
			if c.clock.Now().Before(s.expiresAt) {
				c.mu.Unlock()
				c.decide("duplicate")
				var zero T
				return zero, ErrDuplicateRequest
			}
			// Window elapsed: the key is reusable.
			delete(c.slots, key)
			c.decide("expired")
		}
	}

	s := &slot[T]{done: make(chan struct{}), state: statePending}
	c.slots[key] = s
	c.mu.Unlock()
	c.decide("owner")

	result, err := fn()

	c.mu.Lock()
	s.result = result
	s.err = err
	s.state = stateCompleted
	s.expiresAt = c.clock.Now().Add(ttl)
	c.mu.Unlock()
	close(s.done)

	return result, err
}

// wait blocks until the owner settles the slot or ctx is done. A waiter
// abandoning its wait does not disturb the owner or other waiters.
func (c *Coordinator[T]) wait(ctx context.Context, s *slot[T]) (T, error) {
	select {
	case <-s.done:
		return s.result, s.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Len reports the number of live slots, counting expired entries not yet
// lazily evicted.
func (c *Coordinator[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

func (c *Coordinator[T]) decide(decision string) {
	if c.Decision != nil {
		c.Decision(decision)
	}
}
