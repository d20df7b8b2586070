package command

import (
	"context"
	"errors"
	"time"
)

var ErrQueueFull = errors.New("command queue full")

// Queue is a bounded FIFO shared by any number of producers and one
// consumer.
type Queue struct {
	items chan Item
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{items: make(chan Item, size)}
}

// Push enqueues without blocking.
func (q *Queue) Push(item Item) error {
	select {
	case q.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) Len() int { return len(q.items) }

// Next waits up to wait for the next item. ok is false when the wait
// elapsed or ctx ended first.
func (q *Queue) Next(ctx context.Context, wait time.Duration) (item Item, ok bool) {
	select {
	case item = <-q.items:
		return item, true
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case item = <-q.items:
		return item, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}
