// Package scratch provides reusable per-connection buffers for request keys
// and values, so that serving a request of a typical size never touches the
// allocator. Small payloads share one fixed buffer; anything larger lands in
// a growable cache that persists for the life of the connection.
package scratch

// SmallMax is the size in bytes below which Grab hands out a slice of the
// fixed buffer. Payloads of SmallMax and above take the cache path. The
// original server used a 512 KiB threshold backed by generous thread stacks;
// 64 KiB keeps the per-connection footprint reasonable here.
const SmallMax = 64 << 10

// Scratch hands out byte slices for one key or value at a time. A slice
// returned by Grab is only valid until the next Grab on the same Scratch.
// Not safe for concurrent use; each connection owns its own.
type Scratch struct {
	small []byte
	cache []byte
}

// New returns a Scratch with the fixed small-payload buffer preallocated.
func New() *Scratch {
	return &Scratch{
		small: make([]byte, SmallMax),
	}
}

// Grab returns an n-byte slice. Slices under SmallMax alias the fixed
// buffer; larger ones alias the cache, which grows to the largest size seen
// and never shrinks.
func (s *Scratch) Grab(n int) []byte {
	if n < SmallMax {
		return s.small[:n]
	}
	if n > cap(s.cache) {
		s.cache = make([]byte, n)
	}
	return s.cache[:n]
}

// CacheCap returns the current capacity of the large-payload cache.
func (s *Scratch) CacheCap() int {
	return cap(s.cache)
}
