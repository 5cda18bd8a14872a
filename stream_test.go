package kernel

import (
	"bufio"
	"bytes"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newTestKernelVFS(t *testing.T) *VFS {
	t.Helper()
	dir, err := os.MkdirTemp("", "stream-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	backend, err := NewLocalBackend(dir)
	if err != nil {
		t.Fatalf("failed to create local backend: %v", err)
	}
	fs, err := NewCopyOnWriteFs(backend, CopyOnWriteConfig{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("failed to create overlay: %v", err)
	}
	return NewVFS(fs, "/persistent", zap.NewNop())
}

func newBufferTerminal(input string) (*Terminal, *bytes.Buffer) {
	var out bytes.Buffer
	in := strings.NewReader(input)
	term := &Terminal{
		in:     in,
		out:    &out,
		reader: bufio.NewReader(in),
		log:    zap.NewNop(),
	}
	return term, &out
}

func TestStreamRouterOutputRedirectTakesPrecedence(t *testing.T) {
	vfs := newTestKernelVFS(t)
	table := NewProcessTable()
	sched := NewScheduler(table, nil)
	term, out := newBufferTerminal("")
	router := NewStreamRouter(vfs, sched, term)

	root := vfs.Root()
	proc := NewProcess(1, root+"/prog", nil, root, ProcessOptions{
		RedirectOut: root + "/out.txt",
		PipeOut:     true, // redirect wins, so no stdout pipe is provisioned
	})

	n, err := router.Output(proc, []byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("output failed: n=%d err=%v", n, err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected terminal untouched, got %q", out.String())
	}
	if proc.StdoutPipe != nil {
		t.Fatalf("expected no stdout pipe when redirect wins, got one with %d buffered bytes", proc.StdoutPipe.Len())
	}

	stat, err := vfs.Stat("/out.txt", root)
	if err != nil {
		t.Fatalf("stat of redirected file failed: %v", err)
	}
	if stat.Size != 5 {
		t.Fatalf("expected 5 bytes written to redirect target, got %d", stat.Size)
	}
}

func TestStreamRouterOutputPipeBeforeTerminal(t *testing.T) {
	vfs := newTestKernelVFS(t)
	table := NewProcessTable()
	sched := NewScheduler(table, nil)
	term, out := newBufferTerminal("")
	router := NewStreamRouter(vfs, sched, term)

	root := vfs.Root()
	proc := NewProcess(1, root+"/prog", nil, root, ProcessOptions{PipeOut: true})

	n, err := router.Output(proc, []byte("abc"))
	if err != nil || n != 3 {
		t.Fatalf("output failed: n=%d err=%v", n, err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected terminal untouched when pipe is provisioned, got %q", out.String())
	}

	buf := make([]byte, 8)
	read, closed := proc.StdoutPipe.Read(buf)
	if closed || string(buf[:read]) != "abc" {
		t.Fatalf("expected pipe to carry written bytes, got %q closed=%v", buf[:read], closed)
	}
}

func TestStreamRouterOutputFallsBackToTerminal(t *testing.T) {
	vfs := newTestKernelVFS(t)
	table := NewProcessTable()
	sched := NewScheduler(table, nil)
	term, out := newBufferTerminal("")
	router := NewStreamRouter(vfs, sched, term)

	root := vfs.Root()
	proc := NewProcess(1, root+"/prog", nil, root, ProcessOptions{})

	if _, err := router.Output(proc, []byte("hi")); err != nil {
		t.Fatalf("output failed: %v", err)
	}
	if out.String() != "hi" {
		t.Fatalf("expected terminal to receive %q, got %q", "hi", out.String())
	}
}

func TestStreamRouterInputRedirectReadsFile(t *testing.T) {
	vfs := newTestKernelVFS(t)
	table := NewProcessTable()
	sched := NewScheduler(table, nil)
	term, _ := newBufferTerminal("")
	router := NewStreamRouter(vfs, sched, term)

	root := vfs.Root()
	file, _, err := vfs.Open("/in.txt", root, OpenFlags{Write: true, Create: true})
	if err != nil {
		t.Fatalf("failed to seed input file: %v", err)
	}
	file.Write([]byte("seeded"))
	file.Close()

	proc := NewProcess(1, root+"/prog", nil, root, ProcessOptions{RedirectIn: root + "/in.txt"})

	got, err := router.InputAll(proc)
	if err != nil {
		t.Fatalf("input_all failed: %v", err)
	}
	if string(got) != "seeded" {
		t.Fatalf("expected %q, got %q", "seeded", got)
	}
}

func TestStreamRouterCloseOutputClosesPipeWriter(t *testing.T) {
	vfs := newTestKernelVFS(t)
	table := NewProcessTable()
	sched := NewScheduler(table, nil)
	term, _ := newBufferTerminal("")
	router := NewStreamRouter(vfs, sched, term)

	root := vfs.Root()
	proc := NewProcess(1, root+"/prog", nil, root, ProcessOptions{PipeOut: true})
	router.Output(proc, []byte("x"))
	router.CloseOutput(proc)

	buf := make([]byte, 8)
	read, closed := proc.StdoutPipe.Read(buf)
	if closed || string(buf[:read]) != "x" {
		t.Fatalf("expected buffered byte before closure, got %q closed=%v", buf[:read], closed)
	}
	read, closed = proc.StdoutPipe.Read(buf)
	if read != 0 || !closed {
		t.Fatalf("expected drained+closed pipe, got read=%d closed=%v", read, closed)
	}
}

func TestStreamRouterInputAllPipeAlreadyClosed(t *testing.T) {
	vfs := newTestKernelVFS(t)
	table := NewProcessTable()
	sched := NewScheduler(table, nil)
	term, _ := newBufferTerminal("")
	router := NewStreamRouter(vfs, sched, term)

	root := vfs.Root()
	proc := NewProcess(1, root+"/prog", nil, root, ProcessOptions{PipeIn: true})
	proc.StdinPipe.Write([]byte("piped"))
	proc.StdinPipe.CloseWriter()

	got, err := router.InputAll(proc)
	if err != nil {
		t.Fatalf("input_all failed: %v", err)
	}
	if string(got) != "piped" {
		t.Fatalf("expected %q, got %q", "piped", got)
	}
}
