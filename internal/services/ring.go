package services

// ring is a fixed-capacity buffer that overwrites its oldest element.
// Callers provide locking.
type ring[T any] struct {
	buf  []T
	next int
	full bool
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring[T]) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// newest returns up to n elements, newest first. n <= 0 returns all.
func (r *ring[T]) newest(n int) []T {
	size := r.len()
	if n <= 0 || n > size {
		n = size
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(r.next-1-i+len(r.buf))%len(r.buf)])
	}
	return out
}
