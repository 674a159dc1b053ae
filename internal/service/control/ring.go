package control

// ring is a fixed-capacity FIFO that evicts its oldest entry when full.
// Not safe for concurrent use.
type ring[T any] struct {
	buf   []T
	start int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	if len(r.buf) == 0 {
		return
	}
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// last returns copies of the newest n entries, oldest first.
func (r *ring[T]) last(n int) []T {
	if n <= 0 {
		return []T{}
	}
	if n > r.size {
		n = r.size
	}
	out := make([]T, n)
	offset := r.size - n
	for i := range out {
		out[i] = r.buf[(r.start+offset+i)%len(r.buf)]
	}
	return out
}

func (r *ring[T]) len() int {
	return r.size
}
