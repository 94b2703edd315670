package ringbuf

import (
	"bytes"
	"testing"
)

// TestPushPopOrder checks that bytes come out in the order they went in
// across a mix of bulk pushes and pops, including a push that forces the
// buffer to grow while it still holds bytes.
func TestPushPopOrder(t *testing.T) {
	b := New(8)

	var pushed, popped bytes.Buffer
	chunks := [][]byte{
		[]byte("abc"),
		[]byte("defgh"),
		[]byte("ijklmnopq"), // forces growth
		[]byte("r"),
	}

	out := make([]byte, 4)
	for _, c := range chunks {
		b.PushN(c)
		pushed.Write(c)

		n := b.PopN(out)
		popped.Write(out[:n])
	}

	// Drain whatever is left
	for b.Len() > 0 {
		n := b.PopN(out)
		popped.Write(out[:n])
	}

	if !bytes.Equal(pushed.Bytes(), popped.Bytes()) {
		t.Fatalf("popped %q, want %q", popped.Bytes(), pushed.Bytes())
	}
}

func TestWrapAround(t *testing.T) {
	b := New(4)
	b.PushN([]byte("abcd"))

	out := make([]byte, 2)
	if n := b.PopN(out); n != 2 || !bytes.Equal(out, []byte("ab")) {
		t.Fatalf("got %d bytes %q", n, out[:n])
	}

	// The write position now wraps past the end of the backing array
	b.PushN([]byte("ef"))
	if b.Len() != 4 {
		t.Fatalf("len = %d, want 4", b.Len())
	}

	rest := make([]byte, 4)
	if n := b.PopN(rest); n != 4 || !bytes.Equal(rest, []byte("cdef")) {
		t.Fatalf("got %d bytes %q", n, rest[:n])
	}
}

func TestGrowthDoubles(t *testing.T) {
	b := New(4)
	b.PushN([]byte("abcdefghi")) // 9 bytes into a 4-byte buffer

	if b.Cap() != 16 {
		t.Fatalf("cap = %d, want 16", b.Cap())
	}

	out := make([]byte, 9)
	if n := b.PopN(out); n != 9 || !bytes.Equal(out, []byte("abcdefghi")) {
		t.Fatalf("got %d bytes %q", n, out[:n])
	}
}

func TestPopNShort(t *testing.T) {
	b := New(8)
	b.PushN([]byte("ab"))

	out := make([]byte, 5)
	if n := b.PopN(out); n != 2 {
		t.Fatalf("PopN returned %d, want 2", n)
	}
	if n := b.PopN(out); n != 0 {
		t.Fatalf("PopN on empty buffer returned %d, want 0", n)
	}
}

func TestSingleBytePushPopPeek(t *testing.T) {
	b := New(2)

	if _, ok := b.Pop(); ok {
		t.Fatal("Pop on an empty buffer reported a value")
	}
	if _, ok := b.Peek(); ok {
		t.Fatal("Peek on an empty buffer reported a value")
	}

	b.Push('x')
	b.Push('y')
	b.Push('z') // grows

	if v, ok := b.Peek(); !ok || v != 'x' {
		t.Fatalf("Peek = %q, %v", v, ok)
	}
	for _, want := range []byte("xyz") {
		v, ok := b.Pop()
		if !ok || v != want {
			t.Fatalf("Pop = %q, %v; want %q", v, ok, want)
		}
	}
}

func TestShrink(t *testing.T) {
	b := New(4)
	b.PushN([]byte("abcdefgh"))

	out := make([]byte, 6)
	b.PopN(out)

	if err := b.Shrink(); err != nil {
		t.Fatal(err)
	}
	if b.Cap() != 2 {
		t.Fatalf("cap after shrink = %d, want 2", b.Cap())
	}

	rest := make([]byte, 2)
	if n := b.PopN(rest); n != 2 || !bytes.Equal(rest, []byte("gh")) {
		t.Fatalf("got %d bytes %q after shrink", n, rest[:n])
	}
}

func TestShrinkBelowSizeFails(t *testing.T) {
	b := New(4)
	b.PushN([]byte("abc"))

	if err := b.resize(2); err != ErrShrinkTooSmall {
		t.Fatalf("resize(2) = %v, want ErrShrinkTooSmall", err)
	}
}

func TestClearKeepsCapacity(t *testing.T) {
	b := New(4)
	b.PushN([]byte("abcd"))
	b.Clear()

	if b.Len() != 0 || b.Cap() != 4 || b.Free() != 4 {
		t.Fatalf("len=%d cap=%d free=%d after Clear", b.Len(), b.Cap(), b.Free())
	}
}
