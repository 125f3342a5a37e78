// Package queue provides a bounded FIFO used for instrument output and error queues.
package queue

// Queue is a bounded first-in first-out queue. It is not safe for concurrent use.
type Queue[T any] struct {
	items    []T
	capacity int
	dropped  int
}

// New creates a queue holding at most capacity items. A capacity <= 0 means unbounded.
func New[T any](capacity int) *Queue[T] {
	prealloc := capacity
	if prealloc <= 0 || prealloc > 64 {
		prealloc = 8
	}

	return &Queue[T]{items: make([]T, 0, prealloc), capacity: capacity}
}

// Enqueue adds an item to the tail of the queue.
// It returns false and counts the item as dropped when the queue is full.
func (q *Queue[T]) Enqueue(item T) bool {
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.dropped++
		return false
	}
	q.items = append(q.items, item)

	return true
}

// Dequeue removes and returns the item at the head of the queue.
func (q *Queue[T]) Dequeue() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]

	return item, true
}

// Peek returns the item at the head of the queue without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	return q.items[0], true
}

// Reset empties the queue. The dropped counter is kept.
func (q *Queue[T]) Reset() {
	clear(q.items)
	q.items = q.items[:0]
}

// IsEmpty returns true if the queue is empty, false otherwise.
func (q *Queue[T]) IsEmpty() bool {
	return len(q.items) == 0
}

// IsFull returns true if a bounded queue holds capacity items.
func (q *Queue[T]) IsFull() bool {
	return q.capacity > 0 && len(q.items) >= q.capacity
}

// Length returns the number of items in the queue.
func (q *Queue[T]) Length() int {
	return len(q.items)
}

// Dropped returns how many items were rejected because the queue was full.
func (q *Queue[T]) Dropped() int {
	return q.dropped
}
