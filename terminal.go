package kernel

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// terminalHistoryCap bounds the line-edit history, per spec.md §6:
// "History is capped (e.g. 10 entries)."
const terminalHistoryCap = 10

// Terminal is the kernel-to-host terminal binding of spec.md §6: line
// editing with history, screen clear, and rows/columns query — grounded on
// the Ebash reference example's use of chzyer/readline for history-backed
// line editing and golang.org/x/term for raw terminal control.
type Terminal struct {
	in       io.Reader
	out      io.Writer
	reader   *bufio.Reader
	rl       *readline.Instance
	isTTY    bool
	log      *zap.Logger
	fallback []string // recent lines, used when readline isn't attached to a real tty
}

// NewTerminal wraps the host's stdio streams. When stdin is a real tty, a
// chzyer/readline instance backs ReadLine with bounded history; otherwise
// ReadLine falls back to buffered newline scanning (e.g. when the kernel's
// own stdin is itself piped from a parent shell, or in tests).
func NewTerminal(in *os.File, out *os.File, log *zap.Logger) (*Terminal, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("terminal")

	t := &Terminal{in: in, out: out, reader: bufio.NewReader(in), log: log}
	t.isTTY = isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd())

	if t.isTTY {
		rl, err := readline.NewEx(&readline.Config{
			Stdin:           in,
			Stdout:          out,
			HistoryLimit:    terminalHistoryCap,
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return nil, err
		}
		t.rl = rl
	}

	return t, nil
}

// newNullTerminal backs a kernel booted with no attached host terminal
// (e.g. a headless JSON-RPC session where every process pipes or redirects
// instead of reaching the terminal namespace): writes are discarded, reads
// report immediate EOF, and every terminal-* builtin fails NeedsPTY.
func newNullTerminal() *Terminal {
	empty := strings.NewReader("")
	return &Terminal{
		in:     empty,
		out:    io.Discard,
		reader: bufio.NewReader(empty),
		log:    zap.NewNop(),
	}
}

// Write implements raw terminal output.
func (t *Terminal) Write(p []byte) (int, error) { return t.out.Write(p) }

// Read reads up to len(p) raw bytes from the terminal.
func (t *Terminal) Read(p []byte) (int, error) { return t.reader.Read(p) }

// ReadAll drains input until end-of-file, per spec.md §4.4's input_all.
func (t *Terminal) ReadAll() ([]byte, error) { return io.ReadAll(t.reader) }

// ReadLine returns one line with editing/history when attached to a real
// tty; otherwise a plain buffered line read.
func (t *Terminal) ReadLine() (string, error) {
	if t.rl != nil {
		line, err := t.rl.Readline()
		if err != nil {
			return "", err
		}
		return line + "\n", nil
	}
	line, err := t.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}

// Clear clears the screen, failing NeedsPTY when the host terminal's input
// is not a tty (the caller's own stdout mode is checked in binding.go).
func (t *Terminal) Clear() error {
	if !t.isTTY {
		return CodeErr(NeedsPTY)
	}
	_, err := t.out.Write([]byte("\x1b[H\x1b[2J"))
	return err
}

// Size reports current rows/columns, failing NeedsPTY when not a tty.
func (t *Terminal) Size() (rows, cols int, err error) {
	if !t.isTTY {
		return 0, 0, CodeErr(NeedsPTY)
	}
	f, ok := t.in.(*os.File)
	if !ok {
		return 0, 0, CodeErr(NeedsPTY)
	}
	w, h, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0, 0, CodeErr(NeedsPTY)
	}
	return h, w, nil
}

// IsTTY reports whether the terminal is attached to a real tty.
func (t *Terminal) IsTTY() bool { return t.isTTY }

// Close releases the readline instance, if any.
func (t *Terminal) Close() error {
	if t.rl != nil {
		return t.rl.Close()
	}
	return nil
}
