// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"sync"
)

// refreshCall is the handle of one in-flight refresh. err is written before
// done is closed and is read only after.
type refreshCall struct {
	done  chan struct{}
	err   error
	queue pendingQueue
	// lost fires at most once per cycle, however many of its calls fail.
	lost sync.Once
}

// lose runs fn the first time the cycle's session is found lost.
func (call *refreshCall) lose(fn func()) {
	call.lost.Do(fn)
}

// settleFunc runs once per refresh, after the handle is cleared and before
// holders are released. entries is the detached queue of that cycle and
// call.err holds the refresh outcome.
type settleFunc func(ctx context.Context, call *refreshCall, entries []*pendingEntry)

// Coordinator collapses concurrent refresh attempts into one call and owns
// the queue of calls parked behind it.
type Coordinator struct {
	mu      sync.Mutex
	current *refreshCall

	refresh func(ctx context.Context) error
	settle  settleFunc
}

// NewCoordinator returns a coordinator issuing refresh. settle may be nil.
func NewCoordinator(refresh func(ctx context.Context) error, settle settleFunc) *Coordinator {
	return &Coordinator{refresh: refresh, settle: settle}
}

// join registers a caller on the current cycle. With a refresh in flight a
// descriptor is queued and its completion channel returned; a nil descriptor
// just gets the handle. With nothing in flight a new handle is created and the
// caller is the initiator.
func (c *Coordinator) join(ctx context.Context, d *Descriptor) (call *refreshCall, wait <-chan completion, initiator bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		if d != nil {
			return nil, c.current.queue.enqueue(ctx, *d), false
		}
		return c.current, nil, false
	}
	c.current = &refreshCall{done: make(chan struct{})}
	return c.current, nil, true
}

// run executes the refresh for the handle the caller initiated. The refresh
// is not cancelled with ctx: followers depend on it settling.
func (c *Coordinator) run(ctx context.Context, call *refreshCall) error {
	err := c.refresh(context.WithoutCancel(ctx))

	c.mu.Lock()
	if c.current == call {
		c.current = nil
	}
	entries := call.queue.detach()
	c.mu.Unlock()

	call.err = err
	if c.settle != nil {
		c.settle(ctx, call, entries)
	}
	close(call.done)
	return err
}

// EnsureRefreshed starts a refresh, or waits for the one in flight, and
// returns its outcome.
func (c *Coordinator) EnsureRefreshed(ctx context.Context) error {
	call, _, initiator := c.join(ctx, nil)
	if initiator {
		return c.run(ctx, call)
	}
	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight reports whether a refresh is outstanding.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// pending returns the number of calls queued on the current cycle.
func (c *Coordinator) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0
	}
	return c.current.queue.len()
}
