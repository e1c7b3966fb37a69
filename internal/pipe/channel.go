// Package pipe provides the single-producer/single-consumer primitives that
// connect pipeline stages.
//
// Every Channel and StateCell hands out at most one handle of each kind at a
// time. Acquiring a handle takes the only token; Release gives it back.
package pipe

import (
	"context"
	"sync"
	"sync/atomic"
)

// compactThreshold bounds how many consumed slots may sit at the front of the
// queue before the backing array is shifted down.
const compactThreshold = 1024

// Channel is an unbounded FIFO queue between exactly one producer and one
// consumer. Push never blocks; there is no backpressure.
type Channel[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	notify chan struct{}

	producerTaken atomic.Bool
	consumerTaken atomic.Bool
}

// NewChannel creates an empty channel.
func NewChannel[T any]() *Channel[T] {
	return &Channel[T]{notify: make(chan struct{}, 1)}
}

// Producer takes the producer token. It fails with ErrChannelBusy while
// another producer handle is live.
func (c *Channel[T]) Producer() (*Producer[T], error) {
	if !c.producerTaken.CompareAndSwap(false, true) {
		return nil, ErrChannelBusy
	}
	return &Producer[T]{ch: c}, nil
}

// Consumer takes the consumer token. It fails with ErrChannelBusy while
// another consumer handle is live.
func (c *Channel[T]) Consumer() (*Consumer[T], error) {
	if !c.consumerTaken.CompareAndSwap(false, true) {
		return nil, ErrChannelBusy
	}
	return &Consumer[T]{ch: c}, nil
}

// Len returns the number of queued items.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) - c.head
}

func (c *Channel[T]) push(v T) {
	c.mu.Lock()
	c.items = append(c.items, v)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Channel[T]) pop() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if c.head == len(c.items) {
		return zero, ErrChannelEmpty
	}
	v := c.items[c.head]
	c.items[c.head] = zero
	c.head++

	switch {
	case c.head == len(c.items):
		c.items = c.items[:0]
		c.head = 0
	case c.head >= compactThreshold && c.head*2 >= len(c.items):
		n := copy(c.items, c.items[c.head:])
		clear(c.items[n:])
		c.items = c.items[:n]
		c.head = 0
	}
	return v, nil
}

func (c *Channel[T]) empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head == len(c.items)
}

// Producer is the exclusive push handle of a Channel.
type Producer[T any] struct {
	ch *Channel[T]
}

// Push appends v to the queue.
func (p *Producer[T]) Push(v T) {
	if p.ch == nil {
		panic("pipe: push on released producer")
	}
	p.ch.push(v)
}

// Release returns the producer token. The handle must not be used again.
func (p *Producer[T]) Release() {
	if p == nil || p.ch == nil {
		return
	}
	p.ch.producerTaken.Store(false)
	p.ch = nil
}

// Consumer is the exclusive pop handle of a Channel.
type Consumer[T any] struct {
	ch *Channel[T]
}

// Pop removes the oldest item. It returns ErrChannelEmpty if none is queued.
func (c *Consumer[T]) Pop() (T, error) {
	if c.ch == nil {
		panic("pipe: pop on released consumer")
	}
	return c.ch.pop()
}

// Empty reports whether nothing is queued.
func (c *Consumer[T]) Empty() bool {
	if c.ch == nil {
		panic("pipe: empty on released consumer")
	}
	return c.ch.empty()
}

// Wait blocks until an item can be popped or ctx is done.
func (c *Consumer[T]) Wait(ctx context.Context) (T, error) {
	if c.ch == nil {
		panic("pipe: wait on released consumer")
	}
	for {
		v, err := c.ch.pop()
		if err == nil {
			return v, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-c.ch.notify:
		}
	}
}

// Release returns the consumer token. The handle must not be used again.
func (c *Consumer[T]) Release() {
	if c == nil || c.ch == nil {
		return
	}
	c.ch.consumerTaken.Store(false)
	c.ch = nil
}
