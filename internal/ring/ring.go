package ring

// Buffer is a fixed-capacity sliding window. Pushing past capacity evicts the
// oldest value. It is not safe for concurrent use; each owner drives it from
// a single goroutine.
type Buffer[T any] struct {
	data  []T
	head  int
	count int
}

// New returns a buffer holding at most capacity values. Capacity below 1 is
// raised to 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{data: make([]T, capacity)}
}

// Push appends v, evicting the oldest value when full.
func (b *Buffer[T]) Push(v T) {
	if b.count < len(b.data) {
		b.data[(b.head+b.count)%len(b.data)] = v
		b.count++
		return
	}
	b.data[b.head] = v
	b.head = (b.head + 1) % len(b.data)
}

// Len is the number of stored values.
func (b *Buffer[T]) Len() int { return b.count }

// Cap is the window capacity.
func (b *Buffer[T]) Cap() int { return len(b.data) }

// Full reports whether the window has reached capacity.
func (b *Buffer[T]) Full() bool { return b.count == len(b.data) }

// At returns the i-th stored value, oldest first.
func (b *Buffer[T]) At(i int) T {
	return b.data[(b.head+i)%len(b.data)]
}

// Last returns the newest value, or false when empty.
func (b *Buffer[T]) Last() (T, bool) {
	var zero T
	if b.count == 0 {
		return zero, false
	}
	return b.At(b.count - 1), true
}

// Values copies out all stored values, oldest first.
func (b *Buffer[T]) Values() []T {
	out := make([]T, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.At(i)
	}
	return out
}

// Tail copies out the newest n values, oldest first. n past Len returns
// everything.
func (b *Buffer[T]) Tail(n int) []T {
	if n > b.count {
		n = b.count
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = b.At(b.count - n + i)
	}
	return out
}

// Reset drops all values. Capacity is kept, so a reset buffer behaves like a
// newly constructed one.
func (b *Buffer[T]) Reset() {
	var zero T
	for i := range b.data {
		b.data[i] = zero
	}
	b.head = 0
	b.count = 0
}

// Resize changes the capacity, keeping the newest values that fit. It is a
// no-op when the capacity is unchanged.
func (b *Buffer[T]) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	if capacity == len(b.data) {
		return
	}
	kept := b.Tail(capacity)
	b.data = make([]T, capacity)
	b.head = 0
	b.count = copy(b.data, kept)
}
