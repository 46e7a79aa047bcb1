// Package ring provides a fixed-capacity circular buffer.
package ring

// Ring is a bounded FIFO that overwrites its oldest element when full.
// The zero value is unusable; create one with New.
type Ring[T any] struct {
	buf   []T
	start int
	n     int
}

// New creates a ring holding at most capacity elements (minimum 1).
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int { return r.n }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Push appends v. When the ring is full the oldest element is overwritten
// and returned with ok=true.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return evicted, false
	}
	evicted = r.buf[r.start]
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	return evicted, true
}

// Items returns a copy of the contents, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Last returns a copy of the newest k elements, oldest first.
func (r *Ring[T]) Last(k int) []T {
	if k > r.n {
		k = r.n
	}
	if k <= 0 {
		return nil
	}
	out := make([]T, k)
	off := r.n - k
	for i := 0; i < k; i++ {
		out[i] = r.buf[(r.start+off+i)%len(r.buf)]
	}
	return out
}

// RemoveFunc drops every element for which fn returns true, preserving the
// order of the rest. It returns the number removed.
func (r *Ring[T]) RemoveFunc(fn func(T) bool) int {
	kept := make([]T, 0, r.n)
	for i := 0; i < r.n; i++ {
		v := r.buf[(r.start+i)%len(r.buf)]
		if !fn(v) {
			kept = append(kept, v)
		}
	}
	removed := r.n - len(kept)
	if removed == 0 {
		return 0
	}
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	copy(r.buf, kept)
	r.start = 0
	r.n = len(kept)
	return removed
}

// Clear empties the ring.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.start, r.n = 0, 0
}
