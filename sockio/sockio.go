// Package sockio wraps a stream socket with exact-count reads and writes.
// Inbound bytes are staged through a ring buffer so that short reads from
// the peer never surface to callers; outbound writes go straight to the
// socket, optionally as a gathered write over several segments.
//
// Every blocking operation takes a per-call timeout and observes a shared
// shutdown flag, failing fast with ErrShutdown once it is set.
package sockio

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yash101/scramjet/ringbuf"
)

// Error kinds callers dispatch on with errors.Is. Anything else returned
// from this package is a fatal socket error.
var (
	// ErrPeerClosed means the peer closed the connection before all
	// expected bytes arrived.
	ErrPeerClosed = errors.New("peer closed the connection")
	// ErrTimeout means a read or write made no progress within its timeout.
	ErrTimeout = errors.New("socket operation timed out")
	// ErrShutdown means the process-wide shutdown flag was observed.
	ErrShutdown = errors.New("server is shutting down")
)

// inboundBufSize is the initial capacity of the inbound ring buffer.
const inboundBufSize = 16 << 10

// Conn owns a stream socket and its inbound buffer. One goroutine owns each
// Conn; none of its methods are safe for concurrent use except Close.
type Conn struct {
	c        net.Conn
	in       *ringbuf.Buffer
	stage    []byte
	one      [1]byte
	shutdown *atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// New wraps c. The shutdown flag is shared across all connections and may
// be nil when no cooperative shutdown is needed (tests).
func New(c net.Conn, shutdown *atomic.Bool) *Conn {
	return &Conn{
		c:        c,
		in:       ringbuf.New(inboundBufSize),
		shutdown: shutdown,
	}
}

// RemoteAddr returns the peer address for logging.
func (s *Conn) RemoteAddr() string {
	return s.c.RemoteAddr().String()
}

// Close closes the socket exactly once. Safe to call from any goroutine,
// including to interrupt a blocked read during shutdown.
func (s *Conn) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.c.Close()
	})
	return s.closeErr
}

func (s *Conn) shuttingDown() bool {
	return s.shutdown != nil && s.shutdown.Load()
}

// classify maps a socket error onto the package's error kinds. The shutdown
// flag wins: once it is set, a connection torn down under us is an orderly
// shutdown, not a socket failure.
func (s *Conn) classify(err error) error {
	if s.shuttingDown() {
		return fmt.Errorf("%w: %v", ErrShutdown, err)
	}
	if errors.Is(err, io.EOF) {
		return ErrPeerClosed
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("socket failure: %w", err)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// fill performs one socket read into the ring buffer, sized by however much
// the ring can take without growing.
func (s *Conn) fill(timeout time.Duration) error {
	if s.shuttingDown() {
		return ErrShutdown
	}

	chunk := s.in.Free()
	if chunk == 0 {
		chunk = inboundBufSize
	}
	if cap(s.stage) < chunk {
		s.stage = make([]byte, chunk)
	}

	if err := s.c.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return s.classify(err)
	}
	n, err := s.c.Read(s.stage[:chunk])
	if n > 0 {
		s.in.PushN(s.stage[:n])
	}
	if err != nil && n == 0 {
		return s.classify(err)
	}
	return nil
}

// ReadFull blocks until len(dst) bytes have been delivered into dst, or
// fails without reporting partial delivery. The timeout budget resets
// whenever bytes arrive, so it bounds stalls rather than total transfer
// time.
func (s *Conn) ReadFull(dst []byte, timeout time.Duration) error {
	off := 0
	for off < len(dst) {
		if n := s.in.PopN(dst[off:]); n > 0 {
			off += n
			continue
		}
		if err := s.fill(timeout); err != nil {
			return err
		}
	}
	return nil
}

// ReadByte delivers a single byte, from the ring buffer when one is
// already staged.
func (s *Conn) ReadByte(timeout time.Duration) (byte, error) {
	if b, ok := s.in.Pop(); ok {
		return b, nil
	}
	if err := s.ReadFull(s.one[:], timeout); err != nil {
		return 0, err
	}
	return s.one[0], nil
}

// WriteFull blocks until all of src has been written to the socket. Like
// ReadFull, the timeout bounds progress stalls, not the whole transfer.
func (s *Conn) WriteFull(src []byte, timeout time.Duration) error {
	off := 0
	for off < len(src) {
		if s.shuttingDown() {
			return ErrShutdown
		}
		if err := s.c.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return s.classify(err)
		}
		n, err := s.c.Write(src[off:])
		off += n
		if err != nil {
			if isTimeout(err) && n > 0 {
				continue
			}
			return s.classify(err)
		}
	}
	return nil
}

// WriteGather writes the segments in order as one logical write, using a
// vectored write when the platform supports it. Short writes advance
// through the segment list rather than restarting it. Equivalent to
// concatenating the segments and calling WriteFull.
func (s *Conn) WriteGather(segments [][]byte, timeout time.Duration) error {
	bufs := net.Buffers(segments)
	for {
		remaining := 0
		for _, b := range bufs {
			remaining += len(b)
		}
		if remaining == 0 {
			return nil
		}

		if s.shuttingDown() {
			return ErrShutdown
		}
		if err := s.c.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return s.classify(err)
		}
		n, err := bufs.WriteTo(s.c)
		if err != nil {
			if isTimeout(err) && n > 0 {
				continue
			}
			return s.classify(err)
		}
	}
}
