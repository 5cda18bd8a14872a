package kernel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// exitStatus adapts mvdan.cc/sh's interp.NewExitStatus to the kernel's own
// name, since builtin handlers never need any other part of the interp
// package directly.
func exitStatus(code uint8) error { return interp.NewExitStatus(code) }

// ProcessRunner is one process's owned guest-script interpreter instance
// (spec.md §3: "interpreter (owned guest-script instance)"), generalizing
// the teacher's Shell (shell.go) from "one shell over one afero.Fs" to "one
// interpreter per kernel process, routed through that process's fd table,
// cwd, and stream router." The interpreter's own builtins (echo, cd, test,
// and the like) run natively; every other command word goes to dispatch
// (binding.go), and a word dispatch does not know fails "command not found".
type ProcessRunner struct {
	k      *Kernel
	proc   *Process
	runner *interp.Runner
	yc     *yieldCounter
	out    *bytes.Buffer // accumulates this turn's top-level stdout until flushed to the stream router

	// activeOut is the builtin-visible stdout for whichever command
	// execHandler is currently dispatching: out at the top level, or a
	// command substitution's/redirection's own capture buffer when one is
	// active, per stdio's interp.HandlerCtx lookup (shell.go's pattern).
	// Builtins must never write to out directly, or $(builtin) would
	// always capture empty — see stdio.
	activeOut io.Writer
}

// newProcessRunner constructs an interpreter bound to proc, wired with the
// same CallHandler/ExecHandlers/OpenHandler/StatHandler/ReadDirHandler
// pattern shell.go establishes, generalized to route through proc's VFS
// view instead of a bare afero.Fs.
func newProcessRunner(k *Kernel, proc *Process) (*ProcessRunner, error) {
	r := &ProcessRunner{k: k, proc: proc, yc: newYieldCounter(), out: &bytes.Buffer{}}

	env := NewEnvironMap([]string{
		"STDIN=0", "STDOUT=1", "FILE=0", "DIRECTORY=1",
	})

	runner, err := interp.New(
		interp.StdIO(new(nullReader), r.out, r.out),
		interp.Env(env),
		interp.Dir(proc.Cwd),
		interp.Params(proc.Argv...),
		interp.CallHandler(r.callHandler),
		interp.ExecHandlers(r.execHandler),
		interp.OpenHandler(r.openHandler),
		interp.StatHandler(r.statHandler),
		interp.ReadDirHandler(r.readDirHandler),
	)
	if err != nil {
		return nil, fmt.Errorf("process %d: failed to create runner: %w", proc.PID, err)
	}
	r.runner = runner
	proc.Runner = r
	return r, nil
}

// nullReader always reports EOF: guest programs read stdin exclusively
// through input()/input_all()/input_line(), never through the interpreter's
// native stdin.
type nullReader struct{}

func (nullReader) Read(p []byte) (int, error) { return 0, io.EOF }

// run parses and executes the process's program text to completion (exit,
// uncaught error, or script end), then flushing accumulated stdout to the
// stream router (execHandler also flushes at each scheduler yield) so
// output() semantics (pipe/redirect/terminal routing) apply even though the
// guest writes through the interpreter's own stdout plumbing for native
// builtins such as echo and for the pure-computation builtins in
// pureutils.go.
func (r *ProcessRunner) run(ctx context.Context, program string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	prog, err := parser.Parse(strings.NewReader(program), r.proc.Path)
	if err != nil {
		return fmt.Errorf("process %d: parse error: %w", r.proc.PID, err)
	}
	err = r.runner.Run(ctx, prog)
	r.flush()
	return err
}

// flush drains any bytes the interpreter's native stdout plumbing
// accumulated (output from textutils.go-style pure-computation builtins)
// into the stream router, so it still obeys redirect/pipe/terminal
// short-circuit precedence. Truncates out in place rather than replacing
// it, since interp.StdIO wired this exact buffer into the runner once at
// construction — swapping in a new *bytes.Buffer here would leave the
// interpreter's own top-level Stdout field (and stdio's ctx-based lookup
// of it) pointing at the now-abandoned old one.
func (r *ProcessRunner) flush() {
	if r.out.Len() == 0 {
		return
	}
	data := make([]byte, r.out.Len())
	copy(data, r.out.Bytes())
	r.out.Reset()
	r.k.streams.Output(r.proc, data)
}

// stdio resolves the builtin-visible stdout for the command currently
// dispatching, honoring a command substitution's or redirection's own
// capture buffer via interp.HandlerCtx — the same lookup shell.go uses,
// since the interpreter scopes Stdout per nested subshell/substitution
// rather than mutating the top-level Runner's Stdout field in place.
// Without this, a builtin writing straight to the top-level buffer would
// never be visible to "$(builtin ...)" command substitution.
func (r *ProcessRunner) stdio(ctx context.Context) io.Writer {
	if hc := interp.HandlerCtx(ctx); hc != nil {
		if hc.Stdout != nil {
			return hc.Stdout
		}
	}
	return r.out
}

func (r *ProcessRunner) stdoutWriter() io.Writer {
	if r.activeOut != nil {
		return r.activeOut
	}
	return r.out
}

// syncInterpDir pushes the process's current cwd into the live interpreter
// state after file-chdir.
func (r *ProcessRunner) syncInterpDir() {
	interp.Dir(r.proc.Cwd)(r.runner)
}

// callHandler passes every command through unchanged; it keeps the
// handler shape shell.go established. It does not redirect interpreter-
// native builtins to dispatch, so those still run natively.
func (r *ProcessRunner) callHandler(ctx context.Context, args []string) ([]string, error) {
	return args, nil
}

// execHandler receives every command word the interpreter does not handle
// as a native builtin and checks it against dispatch's file-*/process-*/
// errors-*/terminal-*/pure-builtin table; anything else fails with
// "command not found".
func (r *ProcessRunner) execHandler(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		if len(args) == 0 {
			return nil
		}

		if r.yc.tick() {
			r.flush()
			r.k.scheduler.Yield(r.proc.PID)
		}

		r.activeOut = r.stdio(ctx)
		handled, err := r.dispatch(args)
		if handled {
			return err
		}

		return fmt.Errorf("%s: command not found", args[0])
	}
}

// openHandler/statHandler/readDirHandler back the interpreter's native
// redirection operators (`>`, `<`, `>>`) and native test/cd/pwd builtins —
// the pieces of a shell program the exec handler never sees, because
// mvdan.cc/sh implements them itself rather than routing through Exec. They
// still must honor the VFS's confinement and protected-bit rules, so guest
// programs can't bypass file-open/file-write's permission checks by writing
// `echo x > /bin/hello` instead of calling file-write directly.
func (r *ProcessRunner) openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	real := r.k.vfs.Resolve(path, r.proc.Cwd)
	write := flag&(os.O_WRONLY|os.O_RDWR) != 0
	if write {
		if m, ok := r.k.vfs.meta.get(real); ok && m.protected {
			return nil, Error{Code: SystemFileReadonly}
		}
	}
	file, err := r.k.vfs.fs.OpenFile(real, flag, perm)
	if err != nil {
		return nil, Error{Code: Translate(err)}
	}
	if flag&os.O_CREATE != 0 {
		r.k.vfs.meta.getOrCreate(real, false)
	}
	return file.(io.ReadWriteCloser), nil
}

func (r *ProcessRunner) statHandler(ctx context.Context, name string, followSymlinks bool) (os.FileInfo, error) {
	real := r.k.vfs.Resolve(name, r.proc.Cwd)
	info, err := r.k.vfs.fs.Stat(real)
	if err != nil {
		return nil, Error{Code: Translate(err)}
	}
	return info, nil
}

func (r *ProcessRunner) readDirHandler(ctx context.Context, path string) ([]os.FileInfo, error) {
	real := r.k.vfs.Resolve(path, r.proc.Cwd)
	return afero.ReadDir(r.k.vfs.fs, real)
}
