// Package ringbuf provides a fixed-capacity FIFO that evicts its oldest
// element on overflow.
package ringbuf

import (
	"strconv"

	"github.com/tinytelemetry/piezodash/internal/model"
)

// Buffer is a fixed-capacity ring of T. It is not safe for concurrent use;
// owners guard it themselves.
type Buffer[T any] struct {
	items []T
	head  int // index of the oldest element
	size  int
}

// New creates a buffer holding at most capacity elements.
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity < 1 {
		return nil, &model.ConfigError{
			Field:  "buffer-capacity",
			Reason: "must be at least 1, got " + strconv.Itoa(capacity),
		}
	}
	return &Buffer[T]{items: make([]T, capacity)}, nil
}

// Push appends v, evicting the oldest element when the buffer is full.
func (b *Buffer[T]) Push(v T) {
	if b.size < len(b.items) {
		b.items[(b.head+b.size)%len(b.items)] = v
		b.size++
		return
	}
	b.items[b.head] = v
	b.head = (b.head + 1) % len(b.items)
}

// Values returns a copy of the contents, oldest first.
func (b *Buffer[T]) Values() []T {
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Last returns the newest element.
func (b *Buffer[T]) Last() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.items[(b.head+b.size-1)%len(b.items)], true
}

func (b *Buffer[T]) Len() int { return b.size }
func (b *Buffer[T]) Cap() int { return len(b.items) }
