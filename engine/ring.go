package engine

import "sync/atomic"

// Ring is a single-producer single-consumer lock-free ring buffer of
// float32 samples. The capture thread pushes, the audio or writer thread
// pops; when full, pushes drop the overflow rather than block.
type Ring struct {
	buf   []float32
	mask  int64
	read  atomic.Int64
	write atomic.Int64
}

// NewRing returns a ring holding at least capacity samples, rounded up to a
// power of two.
func NewRing(capacity int) *Ring {
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Ring{buf: make([]float32, size), mask: int64(size - 1)}
}

// Push copies as much of src into the ring as fits and returns the number of
// samples written.
func (r *Ring) Push(src []float32) int {
	read := r.read.Load()
	write := r.write.Load()
	free := int64(len(r.buf)) - (write - read)
	n := int64(len(src))
	if n > free {
		n = free
	}
	for i := int64(0); i < n; i++ {
		r.buf[(write+i)&r.mask] = src[i]
	}
	r.write.Store(write + n)
	return int(n)
}

// Pop copies up to len(dst) samples out of the ring and returns the number
// read.
func (r *Ring) Pop(dst []float32) int {
	read := r.read.Load()
	write := r.write.Load()
	n := write - read
	if n > int64(len(dst)) {
		n = int64(len(dst))
	}
	for i := int64(0); i < n; i++ {
		dst[i] = r.buf[(read+i)&r.mask]
	}
	r.read.Store(read + n)
	return int(n)
}

// Len returns the number of samples currently buffered.
func (r *Ring) Len() int {
	return int(r.write.Load() - r.read.Load())
}
