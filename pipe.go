package kernel

import (
	"bytes"
	"sync"
)

// pipeState is a Pipe's lifecycle state, per spec.md §3: "Single-producer-
// single-consumer bounded byte FIFO. States: open, closed-by-writer."
type pipeState int

const (
	pipeOpen pipeState = iota
	pipeClosedByWriter
)

// defaultPipeCapacity bounds how many bytes a Pipe buffers before Write
// blocks, matching virtualpipe.go's buffered design but with an explicit
// ceiling rather than an unbounded bytes.Buffer.
const defaultPipeCapacity = 64 * 1024

// Pipe is the bounded SPSC byte FIFO joining one process's stdout_pipe to
// another's stdin_pipe (spec.md §3, §4.4). Unlike virtualpipe.go's
// VirtualPipe (built for process substitution and torn down after a single
// producer finishes), a Pipe supports many Write/Read calls across the
// lifetime of both owning processes and tracks reader liveness so a writer
// observes broken-pipe once its reader has gone away.
type Pipe struct {
	mu         sync.Mutex
	notEmpty   *sync.Cond
	notFull    *sync.Cond
	buf        bytes.Buffer
	capacity   int
	state      pipeState
	readerGone bool

	// sched/readerPID let Write/CloseWriter wake a reader the scheduler has
	// suspended in pipeRead/InputAll (spec.md §5); set by AttachReader once
	// the reading process is known. Nil/zero until then, in which case
	// Write/CloseWriter are no-ops on the scheduler.
	sched     *Scheduler
	readerPID int
}

// NewPipe allocates an open Pipe with the default capacity.
func NewPipe() *Pipe {
	p := &Pipe{capacity: defaultPipeCapacity}
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)
	return p
}

// AttachReader records which process reads this pipe and the scheduler that
// suspended it, so Write/CloseWriter can call Scheduler.Wake once bytes or
// closure become observable. Called once the reading end is wired: at
// process creation for a self-owned stdin_pipe, and by process.pipe for a
// cross-process connection.
func (pi *Pipe) AttachReader(sched *Scheduler, readerPID int) {
	pi.mu.Lock()
	pi.sched = sched
	pi.readerPID = readerPID
	pi.mu.Unlock()
}

// Write enqueues bytes for the reader. Blocks while the buffer is full and
// the pipe remains open with a live reader. Per spec.md §7, "partial writes
// to pipes are retained — re-issuing output continues after the last
// committed byte", so Write commits as much as fits before reporting
// broken-pipe; callers must re-issue to finish a write that returns n <
// len(p).
func (pi *Pipe) Write(p []byte) (n int, err error) {
	pi.mu.Lock()

	for len(p) > 0 {
		if pi.readerGone {
			pi.mu.Unlock()
			return n, CodeErr(StdoutWriteFailed)
		}
		free := pi.capacity - pi.buf.Len()
		if free <= 0 {
			pi.notFull.Wait()
			continue
		}
		chunk := p
		if len(chunk) > free {
			chunk = chunk[:free]
		}
		written, _ := pi.buf.Write(chunk)
		n += written
		p = p[written:]
		pi.notEmpty.Signal()
	}
	sched, readerPID := pi.sched, pi.readerPID
	pi.mu.Unlock()

	if sched != nil && n > 0 {
		sched.Wake(readerPID)
	}
	return n, nil
}

// Read dequeues up to len(p) bytes. Blocks while the buffer is empty and the
// pipe remains open (spec.md §5: "any call that reads from an empty open
// pipe" is a suspension point). Returns (0, nil) — not io.EOF — once the
// buffer is empty and the writer has closed, matching the VFS/process error
// taxonomy's preference for explicit end-of-stream signalling over a
// language-level EOF sentinel; callers test n == 0 && state == closed.
func (pi *Pipe) Read(p []byte) (n int, closed bool) {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	for pi.buf.Len() == 0 {
		if pi.state == pipeClosedByWriter {
			return 0, true
		}
		pi.notEmpty.Wait()
	}
	n, _ = pi.buf.Read(p)
	pi.notFull.Signal()
	return n, false
}

// ReadAll drains until closure, per spec.md §4.4's input_all semantics.
func (pi *Pipe) ReadAll() []byte {
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, closed := pi.Read(buf)
		out = append(out, buf[:n]...)
		if closed && n == 0 {
			return out
		}
		if n == 0 {
			return out
		}
	}
}

// CloseWriter marks the pipe closed-by-writer. Buffered bytes remain
// readable; once drained, readers observe end-of-stream.
func (pi *Pipe) CloseWriter() {
	pi.mu.Lock()
	pi.state = pipeClosedByWriter
	pi.notEmpty.Broadcast()
	sched, readerPID := pi.sched, pi.readerPID
	pi.mu.Unlock()

	if sched != nil {
		sched.Wake(readerPID)
	}
}

// CloseReader marks the reader gone: any Write in progress or future
// observes broken-pipe, per spec.md §4.3's exit semantics ("its stdin_pipe
// is dropped; any writer observing this on next output receives
// broken-pipe").
func (pi *Pipe) CloseReader() {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.readerGone = true
	pi.notFull.Broadcast()
}

// Len reports buffered (unread) byte count, used by fdstat-style
// introspection.
func (pi *Pipe) Len() int {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	return pi.buf.Len()
}
