package kernel

import (
	"bufio"
	"bytes"
	"os"

	"github.com/spf13/afero"
)

// StreamRouter implements spec.md §4.4's fixed short-circuit precedence for
// every program-visible I/O call: redirect(path) → pipe → terminal.
type StreamRouter struct {
	vfs      *VFS
	sched    *Scheduler
	term     *Terminal
	term4out *bufio.Writer // buffered terminal writer, shared across stdout calls
}

// NewStreamRouter wires a router to the VFS (for redirect opens), scheduler
// (for pipe-read suspension), and terminal bindings.
func NewStreamRouter(vfs *VFS, sched *Scheduler, term *Terminal) *StreamRouter {
	return &StreamRouter{vfs: vfs, sched: sched, term: term}
}

func (r *StreamRouter) openRedirectIn(p *Process) error {
	if p.redirectIn != nil {
		return nil
	}
	real := p.StdinMode.RedirectPath
	f, err := p.fsOpenReal(r.vfs, real, OpenFlags{Read: true})
	if err != nil {
		return err
	}
	p.redirectIn = &fileDescriptor{file: f, path: real, mode: AccessRead}
	return nil
}

func (r *StreamRouter) openRedirectOut(p *Process) error {
	if p.redirectOut != nil {
		return nil
	}
	real := p.StdoutMode.RedirectPath
	f, err := p.fsOpenReal(r.vfs, real, OpenFlags{Write: true, Create: true})
	if err != nil {
		return err
	}
	p.redirectOut = &fileDescriptor{file: f, path: real, mode: AccessWrite}
	return nil
}

// fsOpenReal opens an already-resolved real path directly against the
// overlay, bypassing guest-path re-resolution (redirect paths were already
// normalised at process-creation time, per spec.md §4.3).
func (p *Process) fsOpenReal(v *VFS, real string, flags OpenFlags) (afero.File, error) {
	var osFlags int
	switch {
	case flags.Write && flags.Create:
		osFlags = os.O_WRONLY | os.O_CREATE
	case flags.Write:
		osFlags = os.O_WRONLY
	default:
		osFlags = os.O_RDONLY
	}
	return v.fs.OpenFile(real, osFlags, 0644)
}

// Output routes process.output(bytes): redirect file, else pipe (failing
// broken-pipe if the reader has vanished), else terminal.
func (r *StreamRouter) Output(p *Process, data []byte) (int, error) {
	switch p.StdoutMode.Kind {
	case StreamRedirect:
		if err := r.openRedirectOut(p); err != nil {
			return 0, err
		}
		n, err := p.redirectOut.file.Write(data)
		if err != nil {
			return n, CodeErr(StdoutWriteFailed)
		}
		return n, nil
	case StreamPipe:
		if p.StdoutPipe == nil {
			return 0, CodeErr(StdoutNotPiped)
		}
		n, err := p.StdoutPipe.Write(data)
		return n, err
	default:
		n, err := r.term.Write(data)
		if err != nil {
			return n, CodeErr(StdoutWriteFailed)
		}
		return n, nil
	}
}

// CloseOutput drops the process's writer end early, per spec.md §4.4:
// "Closing output is explicit: close_output() drops the process's writer
// end early."
func (r *StreamRouter) CloseOutput(p *Process) {
	if p.StdoutMode.Kind == StreamPipe && p.StdoutPipe != nil {
		p.StdoutPipe.CloseWriter()
	}
	if p.redirectOut != nil {
		p.redirectOut.file.Close()
	}
}

// Input routes process.input(n): up to n bytes from the effective source.
// A pipe read on an empty, open pipe suspends the caller via the scheduler
// (spec.md §5).
func (r *StreamRouter) Input(p *Process, n int) ([]byte, error) {
	switch p.StdinMode.Kind {
	case StreamRedirect:
		if err := r.openRedirectIn(p); err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		read, err := p.redirectIn.file.Read(buf)
		if err != nil && read == 0 {
			return []byte{}, nil
		}
		return buf[:read], nil
	case StreamPipe:
		if p.StdinPipe == nil {
			return nil, CodeErr(StdinNotPiped)
		}
		return r.pipeRead(p, n)
	default:
		buf := make([]byte, n)
		read, err := r.term.Read(buf)
		if err != nil && read == 0 {
			return []byte{}, nil
		}
		return buf[:read], nil
	}
}

// pipeRead performs one read, suspending on the scheduler if the pipe is
// currently empty and open.
func (r *StreamRouter) pipeRead(p *Process, n int) ([]byte, error) {
	buf := make([]byte, n)
	for {
		if p.StdinPipe.Len() > 0 || p.StdinPipe.state == pipeClosedByWriter {
			read, closed := p.StdinPipe.Read(buf)
			if read == 0 && closed {
				return []byte{}, nil
			}
			return buf[:read], nil
		}
		r.sched.Suspend(p.PID)
	}
}

// InputAll drains until closure (pipe) or end-of-file (terminal), per
// spec.md §4.4.
func (r *StreamRouter) InputAll(p *Process) ([]byte, error) {
	switch p.StdinMode.Kind {
	case StreamRedirect:
		if err := r.openRedirectIn(p); err != nil {
			return nil, err
		}
		var out bytes.Buffer
		buf := make([]byte, 4096)
		for {
			n, err := p.redirectIn.file.Read(buf)
			out.Write(buf[:n])
			if err != nil || n == 0 {
				break
			}
		}
		return out.Bytes(), nil
	case StreamPipe:
		if p.StdinPipe == nil {
			return nil, CodeErr(StdinNotPiped)
		}
		var out bytes.Buffer
		buf := make([]byte, 4096)
		for {
			if p.StdinPipe.Len() == 0 && p.StdinPipe.state != pipeClosedByWriter {
				r.sched.Suspend(p.PID)
				continue
			}
			n, closed := p.StdinPipe.Read(buf)
			out.Write(buf[:n])
			if closed && n == 0 {
				break
			}
			if n == 0 {
				break
			}
		}
		return out.Bytes(), nil
	default:
		data, err := r.term.ReadAll()
		if err != nil {
			return nil, CodeErr(StdinReadFailed)
		}
		return data, nil
	}
}

// InputLine returns one newline-terminated line (pipe: buffered scan;
// terminal: deferred to the line-edit facility).
func (r *StreamRouter) InputLine(p *Process) (string, error) {
	switch p.StdinMode.Kind {
	case StreamTerminal:
		line, err := r.term.ReadLine()
		if err != nil {
			return "", CodeErr(StdinReadFailed)
		}
		return line, nil
	default:
		var line bytes.Buffer
		for {
			chunk, err := r.Input(p, 1)
			if err != nil {
				return "", err
			}
			if len(chunk) == 0 {
				break
			}
			line.WriteByte(chunk[0])
			if chunk[0] == '\n' {
				break
			}
		}
		return line.String(), nil
	}
}
