package cachemanager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wikifeed/feedengine/pkg/models"
)

// CoalescerConfig bounds the shared call and each caller's wait on it.
type CoalescerConfig struct {
	// CallTimeout bounds the shared computation; 0 means unbounded.
	CallTimeout time.Duration
	// MaxWait bounds how long any single caller waits; 0 means only the
	// caller's context bounds it.
	MaxWait time.Duration
}

// Coalescer collapses concurrent computations for the same key into one.
//
// The shared computation runs on a context detached from every caller, so
// a caller that cancels or times out leaves with ErrWaitTimeout while the
// computation continues for the remaining waiters. Errors are delivered to
// the callers waiting at the time and are not remembered: the next call for
// the key starts a new computation.
type Coalescer[V any] struct {
	group  singleflight.Group
	config CoalescerConfig

	mu      sync.Mutex
	waiters map[string]int

	inFlight atomic.Int64
}

// NewCoalescer creates a coalescer.
func NewCoalescer[V any](cfg CoalescerConfig) *Coalescer[V] {
	return &Coalescer[V]{
		config:  cfg,
		waiters: make(map[string]int),
	}
}

// Do runs fn once per key among concurrent callers and returns its result.
// shared reports whether the result was delivered to more than one caller.
func (c *Coalescer[V]) Do(ctx context.Context, key string, fn func(context.Context) (V, error)) (value V, shared bool, err error) {
	c.addWaiter(key, 1)
	defer c.addWaiter(key, -1)

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		c.inFlight.Add(1)
		defer c.inFlight.Add(-1)

		callCtx := detached
		if c.config.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(detached, c.config.CallTimeout)
			defer cancel()
		}
		return c.call(callCtx, fn)
	})

	var maxWait <-chan time.Time
	if c.config.MaxWait > 0 {
		timer := time.NewTimer(c.config.MaxWait)
		defer timer.Stop()
		maxWait = timer.C
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return value, res.Shared, res.Err
		}
		v, _ := res.Val.(V)
		return v, res.Shared, nil
	case <-ctx.Done():
		return value, false, models.NewError(models.KindWaitTimeout, "coalesce "+key, ctx.Err())
	case <-maxWait:
		return value, false, models.Errorf(models.KindWaitTimeout, "coalesce "+key, "waited %v", c.config.MaxWait)
	}
}

func (c *Coalescer[V]) call(ctx context.Context, fn func(context.Context) (V, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("coalesced call panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (c *Coalescer[V]) addWaiter(key string, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiters[key] += delta
	if c.waiters[key] <= 0 {
		delete(c.waiters, key)
	}
}

// Waiters returns the number of callers currently inside Do for key.
func (c *Coalescer[V]) Waiters(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiters[key]
}

// InFlight returns the number of computations currently running.
func (c *Coalescer[V]) InFlight() int {
	return int(c.inFlight.Load())
}
