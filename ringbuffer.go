package telegraph

// RingBuffer is a fixed-capacity FIFO queue.
//
// The number of stored elements is tracked explicitly, so a buffer created
// with capacity N holds exactly N elements; no slot is reserved to tell a
// full buffer from an empty one. The buffer never grows. Push on a full
// buffer fails and leaves the contents untouched.
type RingBuffer[T any] struct {
	items []T
	head  int // index of the oldest element
	size  int
}

// NewRingBuffer returns an empty buffer able to hold capacity elements.
func NewRingBuffer[T any](capacity int) (*RingBuffer[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &RingBuffer[T]{items: make([]T, capacity)}, nil
}

func mustRingBuffer[T any](capacity int) *RingBuffer[T] {
	r, err := NewRingBuffer[T](capacity)
	must(err, "ring buffer")
	return r
}

// Push appends v after the newest element.
func (r *RingBuffer[T]) Push(v T) error {
	if r.size == len(r.items) {
		return ErrRingFull
	}
	r.items[(r.head+r.size)%len(r.items)] = v
	r.size += 1
	return nil
}

// Pop removes and returns the oldest element.
func (r *RingBuffer[T]) Pop() (T, error) {
	var zero T
	if r.size == 0 {
		return zero, ErrRingEmpty
	}
	v := r.items[r.head]
	r.items[r.head] = zero
	r.head = (r.head + 1) % len(r.items)
	r.size -= 1
	return v, nil
}

// Front returns the oldest element without removing it.
func (r *RingBuffer[T]) Front() (T, error) {
	if r.size == 0 {
		var zero T
		return zero, ErrRingEmpty
	}
	return r.items[r.head], nil
}

// Item returns the i-th oldest element, i must be lower than Size().
func (r *RingBuffer[T]) Item(i int) (T, error) {
	if i < 0 || i >= r.size {
		var zero T
		return zero, ErrRingIndex
	}
	return r.items[(r.head+i)%len(r.items)], nil
}

func (r *RingBuffer[T]) Size() int     { return r.size }
func (r *RingBuffer[T]) Capacity() int { return len(r.items) }
func (r *RingBuffer[T]) IsEmpty() bool { return r.size == 0 }
