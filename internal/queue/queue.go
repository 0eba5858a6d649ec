// Package queue provides a mutex-guarded ordered queue with FIFO or LIFO
// retrieval.
package queue

import (
	"errors"
	"fmt"
	"sync"
)

// ErrEmptyQueue is returned by Get when no item is pending
var ErrEmptyQueue = errors.New("queue is empty")

// Discipline selects which end Get removes from
type Discipline int

const (
	// FIFO returns the oldest item first
	FIFO Discipline = iota
	// LIFO returns the most recently added item first
	LIFO
)

func (d Discipline) String() string {
	switch d {
	case FIFO:
		return "fifo"
	case LIFO:
		return "lifo"
	default:
		return fmt.Sprintf("discipline(%d)", int(d))
	}
}

// Ordered is an unbounded queue safe for concurrent Add and Get
type Ordered[T any] struct {
	mu         sync.Mutex
	items      []T
	discipline Discipline
}

// New creates an empty queue with the given discipline
func New[T any](d Discipline) *Ordered[T] {
	return &Ordered[T]{
		items:      make([]T, 0, 16),
		discipline: d,
	}
}

// Add appends an item
func (q *Ordered[T]) Add(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// Get removes and returns the next item. It never blocks; an empty queue
// yields ErrEmptyQueue.
func (q *Ordered[T]) Get() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, ErrEmptyQueue
	}

	var item T
	if q.discipline == LIFO {
		last := len(q.items) - 1
		item = q.items[last]
		q.items[last] = zero
		q.items = q.items[:last]
	} else {
		item = q.items[0]
		last := len(q.items) - 1
		copy(q.items, q.items[1:])
		q.items[last] = zero
		q.items = q.items[:last]
	}
	return item, nil
}

// Len returns the number of pending items
func (q *Ordered[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Discipline returns the queue's retrieval order
func (q *Ordered[T]) Discipline() Discipline {
	return q.discipline
}
