// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package raspberrysensor

import (
	"context"
	"fmt"
	"sync"
)

type request struct {
	ch   Channel
	done func(*Reading, error)
}

// Bus serializes reads of one physical bus. Requests are served by a single
// worker goroutine in the order they were submitted, and each one completes
// before the next one touches the hardware.
type Bus struct {
	boundary Boundary
	ctx      context.Context
	cancel   context.CancelFunc

	mu     sync.Mutex
	queue  []request
	closed bool

	wake    chan struct{}
	stopped chan struct{}
}

// NewBus starts a worker serving reads from b.
func NewBus(b Boundary) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	bus := &Bus{
		boundary: b,
		ctx:      ctx,
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
	go bus.run()
	return bus
}

// Submit queues one read of ch. It never blocks on hardware. done is called
// exactly once, from the worker goroutine, with either a reading or an error.
func (b *Bus) Submit(ch Channel, done func(*Reading, error)) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		go done(nil, ErrBusClosed)
		return
	}
	b.queue = append(b.queue, request{ch: ch, done: done})
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued requests, excluding the one in flight.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Close stops accepting reads and cancels the context passed to the
// boundary. The read in flight completes with whatever the boundary returns,
// every queued read completes with ErrBusClosed, then Close returns. A
// boundary that ignores its context keeps Close waiting until it returns.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	select {
	case b.wake <- struct{}{}:
	default:
	}
	<-b.stopped
}

func (b *Bus) run() {
	defer close(b.stopped)
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			closed := b.closed
			b.mu.Unlock()
			if closed {
				return
			}
			<-b.wake
			continue
		}
		req := b.queue[0]
		b.queue[0] = request{}
		b.queue = b.queue[1:]
		closed := b.closed
		b.mu.Unlock()

		if closed {
			req.done(nil, ErrBusClosed)
			continue
		}
		b.serve(req)
	}
}

func (b *Bus) serve(req request) {
	r, err := b.trigger(req.ch)
	if err != nil {
		req.done(nil, err)
		return
	}
	req.done(&r, nil)
}

func (b *Bus) trigger(ch Channel) (r Reading, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = NewHardwareError(ch, KindUnknown, "trigger read", fmt.Errorf("panic: %v", p))
		}
	}()
	return b.boundary.TriggerRead(b.ctx, ch)
}
