package kernel

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"mvdan.cc/sh/v3/interp"
)

// Kernel is the top-level facade binding.go's builtins call through: the
// process table, scheduler, VFS, stream router and terminal bindings that
// together implement a guest process's view of the system. One Kernel is
// one booted instance — the moral equivalent of the teacher's single Shell,
// generalized from "one afero.Fs, one interpreter" to "one VFS, many
// cooperatively-scheduled processes."
type Kernel struct {
	vfs       *VFS
	table     *ProcessTable
	scheduler *Scheduler
	streams   *StreamRouter
	terminal  *Terminal
	log       *zap.Logger

	initPID int
}

// KernelConfig configures a booted Kernel.
type KernelConfig struct {
	Backend    StorageBackend
	Root       string
	CowConfig  CopyOnWriteConfig
	Bundle     map[string][]byte // system bundle installed to /bin on boot
	Terminal   *Terminal
	Log        *zap.Logger
}

// NewKernel constructs the overlay filesystem, VFS, process table,
// scheduler and stream router, bootstraps the protected /bin directory from
// the supplied bundle, and pulls any prior persisted state. It does not
// start an init process; callers do that with Boot.
func NewKernel(cfg KernelConfig) (*Kernel, error) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	cowCfg := cfg.CowConfig
	cowCfg.Logger = log
	fs, err := NewCopyOnWriteFs(cfg.Backend, cowCfg)
	if err != nil {
		return nil, fmt.Errorf("kernel: failed to create overlay: %w", err)
	}

	root := cfg.Root
	if root == "" {
		root = "/"
	}
	vfs := NewVFS(fs, root, log)

	bundle := cfg.Bundle
	if bundle == nil {
		var berr error
		bundle, berr = SystemBundle()
		if berr != nil {
			return nil, fmt.Errorf("kernel: load system bundle: %w", berr)
		}
	}
	if err := vfs.Bootstrap(bundle); err != nil {
		return nil, fmt.Errorf("kernel: bootstrap failed: %w", err)
	}

	table := NewProcessTable()
	sched := NewScheduler(table, log)

	term := cfg.Terminal
	if term == nil {
		term = newNullTerminal()
	}
	streams := NewStreamRouter(vfs, sched, term)

	k := &Kernel{
		vfs:       vfs,
		table:     table,
		scheduler: sched,
		streams:   streams,
		terminal:  term,
		log:       log.Named("kernel"),
	}

	vfs.Persistence().Pull()

	return k, nil
}

// VFS exposes the kernel's virtual filesystem to host-side callers.
func (k *Kernel) VFS() *VFS { return k.vfs }

// Processes exposes the process table for host-side introspection.
func (k *Kernel) Processes() *ProcessTable { return k.table }

// CreateProcess implements process.create: allocates a PID, loads the named
// program from the VFS, and installs a process record in the starting
// state. The process is not runnable until StartProcess admits it to the
// scheduler.
func (k *Kernel) CreateProcess(path string, opts ProcessOptions) (int, error) {
	cwd := opts.Cwd
	if cwd == "" {
		cwd = k.vfs.Root()
	}

	program, real, err := k.vfs.LoadProgram(path, cwd)
	if err != nil {
		return 0, err
	}

	pid, err := k.table.Allocate()
	if err != nil {
		return 0, err
	}

	argv := opts.Argv
	if len(argv) == 0 {
		argv = []string{real}
	}

	proc := NewProcess(pid, real, argv, cwd, opts)
	k.table.Insert(proc)

	if proc.StdinPipe != nil {
		proc.StdinPipe.AttachReader(k.scheduler, proc.PID)
	}

	runner, err := newProcessRunner(k, proc)
	if err != nil {
		k.table.Free(pid)
		return 0, CodeErr(InternalError)
	}
	proc.Runner = runner
	proc.program = program

	return pid, nil
}

// StartProcess implements process.start: admits a starting process to the
// scheduler and launches its interpreter on a dedicated goroutine. The
// goroutine runs until the program exits, is killed, or errors; either way
// it ends in ExitProcess. The process record stays in the table until a
// WaitProcess call reaps it.
func (k *Kernel) StartProcess(pid int) error {
	proc, ok := k.table.Get(pid)
	if !ok {
		return CodeErr(NoSuchProcess)
	}
	if proc.State() != StateStarting {
		return CodeErr(AlreadyStarted)
	}

	go k.runProcess(proc)
	k.scheduler.Admit(pid)
	return nil
}

// runProcess drives one process's interpreter to completion on its own
// goroutine, translating an uncaught interpreter error into a non-zero exit
// code and releasing every resource the process held.
func (k *Kernel) runProcess(proc *Process) {
	proc.WaitTurn()

	ctx := context.Background()
	err := proc.Runner.run(ctx, proc.program)

	code := 0
	if err != nil {
		if status, ok := interpExitStatus(err); ok {
			code = status
		} else {
			code = 1
		}
	}

	k.ExitProcess(proc, code)
}

// ExitProcess implements process.exit: records the exit code, closes the
// process's stdout_pipe writer end and marks its stdin_pipe reader gone
// (spec.md §4.3: "its stdin_pipe is dropped; any writer observing this on
// next output receives broken-pipe"), releases its descriptors and
// directory handles, and wakes every waiter. It does not free the PID:
// WaitProcess reaps it after reading the code.
func (k *Kernel) ExitProcess(proc *Process, code int) {
	proc.mu.Lock()
	if proc.state == StateTerminating {
		proc.mu.Unlock()
		return
	}
	proc.ExitCode = code
	proc.state = StateTerminating
	proc.mu.Unlock()

	k.streams.CloseOutput(proc)
	if proc.StdinPipe != nil {
		proc.StdinPipe.CloseReader()
	}
	proc.Fds.closeAll()
	proc.Dirs.closeAll()

	k.scheduler.Terminate(proc.PID)

	for _, waiterPID := range proc.takeWaiters() {
		k.scheduler.Wake(waiterPID)
	}

	k.log.Info("process exited", zap.Int("pid", proc.PID), zap.Int("code", code))
}

// WaitProcess implements process.wait: blocks the caller until the named
// process terminates, then returns its exit code. Returns WaiteeGone if the
// target has already been reaped.
func (k *Kernel) WaitProcess(caller *Process, pid int) (int, error) {
	target, ok := k.table.Get(pid)
	if !ok {
		return 0, CodeErr(WaiteeGone)
	}
	for target.Alive() {
		target.addWaiter(caller.PID)
		k.scheduler.Suspend(caller.PID)
	}
	code := target.ExitCode
	k.table.Free(pid)
	return code, nil
}

// KillProcess implements process.kill: forces a live process straight to
// terminating with a conventional exit code, as if it had called exit(137)
// (the POSIX SIGKILL convention).
func (k *Kernel) KillProcess(pid int) error {
	proc, ok := k.table.Get(pid)
	if !ok {
		return CodeErr(NoSuchProcess)
	}
	if !proc.Alive() {
		return CodeErr(NoSuchProcess)
	}
	k.ExitProcess(proc, 137)
	return nil
}

// PipeProcesses implements process.pipe: connects writer's stdout pipe
// directly to reader's stdin pipe, so output written by one becomes input
// read by the other without passing through the kernel's own buffers.
// spec.md §9's Open Question resolves that pipe wiring precedes starting:
// both ends must still be StateStarting, or the call fails NoSuchState —
// wiring a pipe into a process that's already running could race its own
// reads/writes against the rewire.
func (k *Kernel) PipeProcesses(writerPID, readerPID int) error {
	writer, ok := k.table.Get(writerPID)
	if !ok {
		return CodeErr(NoSuchProcess)
	}
	reader, ok := k.table.Get(readerPID)
	if !ok {
		return CodeErr(NoSuchProcess)
	}
	if writer.State() != StateStarting || reader.State() != StateStarting {
		return CodeErr(NoSuchState)
	}
	if writer.StdoutPipe == nil || reader.StdinPipe == nil {
		return CodeErr(StdoutNotPiped)
	}
	reader.StdinPipe = writer.StdoutPipe
	reader.StdinMode = StreamMode{Kind: StreamPipe}
	reader.StdinPipe.AttachReader(k.scheduler, reader.PID)
	return nil
}

// Boot creates and starts PID 1, the init process, loading its program from
// the given path (conventionally /bin/init). Per process-table convention,
// PID 1 is reserved for init and is the only process with no parent waiting
// on it.
func (k *Kernel) Boot(initPath string) error {
	pid, err := k.CreateProcess(initPath, ProcessOptions{Cwd: k.vfs.Root()})
	if err != nil {
		return fmt.Errorf("kernel: boot: %w", err)
	}
	k.initPID = pid
	return k.StartProcess(pid)
}

// Shutdown flushes the overlay synchronously so no pending writes are lost,
// per spec's asynchronous push_to_persist being insufficient for a clean
// exit path.
func (k *Kernel) Shutdown() error {
	return k.vfs.Persistence().PushSync()
}

// interpExitStatus extracts the numeric status from an interpreter exit
// error, if that's what the interpreter returned.
func interpExitStatus(err error) (int, bool) {
	if status, ok := err.(interp.ExitStatus); ok {
		return int(status), true
	}
	return 0, false
}
