// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import "context"

// completion is the single event delivered to a queued call.
type completion struct {
	// replayed is true when the call was re-issued; result and err are then the
	// replay's own outcome. When false the call was rejected with err and never
	// re-sent.
	replayed bool
	result   *Result
	err      error
}

func replayedWith(res *Result, err error) completion {
	return completion{replayed: true, result: res, err: err}
}

func rejectedWith(err error) completion {
	return completion{err: err}
}

type pendingEntry struct {
	ctx  context.Context
	desc Descriptor
	done chan completion
}

// deliver never blocks: done is buffered and receives exactly one value.
func (e *pendingEntry) deliver(c completion) {
	e.done <- c
}

// pendingQueue holds the calls parked behind one refresh cycle. It is guarded
// by the Coordinator's mutex.
type pendingQueue struct {
	entries []*pendingEntry
}

func (q *pendingQueue) enqueue(ctx context.Context, d Descriptor) <-chan completion {
	e := &pendingEntry{
		ctx:  context.WithoutCancel(ctx),
		desc: d,
		done: make(chan completion, 1),
	}
	q.entries = append(q.entries, e)
	return e.done
}

// detach empties the queue and hands its entries to the caller.
func (q *pendingQueue) detach() []*pendingEntry {
	entries := q.entries
	q.entries = nil
	return entries
}

func (q *pendingQueue) len() int { return len(q.entries) }

type replayFunc func(ctx context.Context, d Descriptor) (*Result, error)

// drainOnSuccess re-issues every entry and resolves each with its own outcome.
// Replays run concurrently and do not hold up the refresh initiator.
func drainOnSuccess(entries []*pendingEntry, replay replayFunc) {
	for _, e := range entries {
		go func(e *pendingEntry) {
			e.deliver(replayedWith(replay(e.ctx, e.desc)))
		}(e)
	}
}

// drainOnFailure rejects every entry with the refresh failure.
func drainOnFailure(entries []*pendingEntry, cause error) {
	for _, e := range entries {
		e.deliver(rejectedWith(refreshFailed(e.desc.Method, e.desc.Target, cause)))
	}
}

// await blocks until the entry completes or ctx ends.
func await(ctx context.Context, done <-chan completion) (*Result, error) {
	select {
	case c := <-done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
