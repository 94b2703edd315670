package sockio

import (
	"bytes"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

// pipe returns a wrapped in-process connection plus the raw peer end.
func pipe(t *testing.T, shutdown *atomic.Bool) (*Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return New(a, shutdown), b
}

func TestReadFullAcrossShortWrites(t *testing.T) {
	c, peer := pipe(t, nil)

	// The peer dribbles out 10 bytes in three writes
	go func() {
		for _, chunk := range [][]byte{[]byte("abc"), []byte("defg"), []byte("hij")} {
			peer.Write(chunk)
			time.Sleep(5 * time.Millisecond)
		}
	}()

	dst := make([]byte, 10)
	if err := c.ReadFull(dst, time.Second); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dst, []byte("abcdefghij")) {
		t.Fatalf("read %q", dst)
	}
}

func TestReadFullBuffersExcess(t *testing.T) {
	c, peer := pipe(t, nil)

	go peer.Write([]byte("abcdef"))

	first := make([]byte, 2)
	if err := c.ReadFull(first, time.Second); err != nil {
		t.Fatal(err)
	}

	// The rest must come from the ring buffer without touching the socket
	rest := make([]byte, 4)
	if err := c.ReadFull(rest, time.Second); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(append(first, rest...), []byte("abcdef")) {
		t.Fatalf("read %q then %q", first, rest)
	}
}

func TestReadFullPeerClose(t *testing.T) {
	c, peer := pipe(t, nil)

	go func() {
		peer.Write([]byte("ab"))
		peer.Close()
	}()

	dst := make([]byte, 5)
	err := c.ReadFull(dst, time.Second)
	if !errors.Is(err, ErrPeerClosed) {
		t.Fatalf("err = %v, want ErrPeerClosed", err)
	}
}

func TestReadFullTimeout(t *testing.T) {
	c, _ := pipe(t, nil)

	dst := make([]byte, 1)
	err := c.ReadFull(dst, 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestShutdownObservedBeforeRead(t *testing.T) {
	var flag atomic.Bool
	c, _ := pipe(t, &flag)

	flag.Store(true)
	err := c.ReadFull(make([]byte, 1), time.Second)
	if !errors.Is(err, ErrShutdown) {
		t.Fatalf("err = %v, want ErrShutdown", err)
	}
}

func TestShutdownWinsOverSocketError(t *testing.T) {
	var flag atomic.Bool
	c, _ := pipe(t, &flag)

	// A blocked read woken by Close during shutdown must classify as
	// shutdown, not as a socket failure.
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.ReadFull(make([]byte, 1), time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	flag.Store(true)
	c.Close()

	if err := <-errCh; !errors.Is(err, ErrShutdown) {
		t.Fatalf("err = %v, want ErrShutdown", err)
	}
}

func TestWriteFull(t *testing.T) {
	c, peer := pipe(t, nil)

	payload := bytes.Repeat([]byte("0123456789"), 100)
	got := make([]byte, 0, len(payload))
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 64)
		for len(got) < len(payload) {
			n, err := peer.Read(buf)
			got = append(got, buf[:n]...)
			if err != nil {
				return
			}
		}
	}()

	if err := c.WriteFull(payload, time.Second); err != nil {
		t.Fatal(err)
	}
	<-done
	if !bytes.Equal(got, payload) {
		t.Fatal("peer received different bytes than were written")
	}
}

func TestWriteGatherMatchesConcatenation(t *testing.T) {
	c, peer := pipe(t, nil)

	segs := [][]byte{[]byte("he"), {}, []byte("llo "), []byte("world")}
	want := []byte("hello world")

	got := make([]byte, 0, len(want))
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4)
		for len(got) < len(want) {
			n, err := peer.Read(buf)
			got = append(got, buf[:n]...)
			if err != nil {
				return
			}
		}
	}()

	if err := c.WriteGather(segs, time.Second); err != nil {
		t.Fatal(err)
	}
	<-done
	if !bytes.Equal(got, want) {
		t.Fatalf("peer received %q", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c, _ := pipe(t, nil)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}
