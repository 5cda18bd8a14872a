package kernel

import (
	"testing"
	"time"
)

func TestPipeWriteThenRead(t *testing.T) {
	p := NewPipe()

	n, err := p.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("write failed: n=%d err=%v", n, err)
	}

	buf := make([]byte, 16)
	n, closed := p.Read(buf)
	if closed {
		t.Fatalf("unexpected closed read")
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", buf[:n])
	}
}

func TestPipeReadAfterCloseDrainsBufferedBytes(t *testing.T) {
	p := NewPipe()
	p.Write([]byte("abc"))
	p.CloseWriter()

	buf := make([]byte, 16)
	n, closed := p.Read(buf)
	if closed {
		t.Fatalf("expected buffered bytes to be delivered before closure")
	}
	if string(buf[:n]) != "abc" {
		t.Fatalf("expected abc, got %q", buf[:n])
	}

	n, closed = p.Read(buf)
	if n != 0 || !closed {
		t.Fatalf("expected (0, true) once drained, got (%d, %v)", n, closed)
	}
}

func TestPipeReadBlocksUntilWrite(t *testing.T) {
	p := NewPipe()
	done := make(chan struct{})

	var n int
	var closed bool
	go func() {
		buf := make([]byte, 16)
		n, closed = p.Read(buf)
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("read returned before any write")
	case <-time.After(50 * time.Millisecond):
	}

	p.Write([]byte("x"))

	select {
	case <-done:
		if closed || n != 1 {
			t.Fatalf("expected (1, false), got (%d, %v)", n, closed)
		}
	case <-time.After(time.Second):
		t.Fatalf("read never unblocked after write")
	}
}

func TestPipeCloseReaderBreaksWriter(t *testing.T) {
	p := NewPipe()
	p.CloseReader()

	_, err := p.Write([]byte("x"))
	if Translate(err) != StdoutWriteFailed {
		t.Fatalf("expected StdoutWriteFailed, got %v", err)
	}
}

func TestPipeReadAllDrainsEverything(t *testing.T) {
	p := NewPipe()
	done := make(chan []byte)

	go func() {
		done <- p.ReadAll()
	}()

	p.Write([]byte("one-"))
	p.Write([]byte("two"))
	p.CloseWriter()

	select {
	case got := <-done:
		if string(got) != "one-two" {
			t.Fatalf("expected %q, got %q", "one-two", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("ReadAll never returned after writer closed")
	}
}

func TestPipeLenReflectsBufferedBytes(t *testing.T) {
	p := NewPipe()
	if p.Len() != 0 {
		t.Fatalf("expected empty pipe to report 0, got %d", p.Len())
	}
	p.Write([]byte("abcd"))
	if p.Len() != 4 {
		t.Fatalf("expected 4 buffered bytes, got %d", p.Len())
	}
}
