package kernel

import (
	"context"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newTestKernel(t *testing.T, bundle map[string][]byte) *Kernel {
	t.Helper()
	dir, err := os.MkdirTemp("", "kernel-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	backend, err := NewLocalBackend(dir)
	if err != nil {
		t.Fatalf("failed to create local backend: %v", err)
	}

	k, err := NewKernel(KernelConfig{
		Backend: backend,
		Bundle:  bundle,
		Log:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct kernel: %v", err)
	}
	return k
}

func TestKernelCreateProcessMissingProgramFails(t *testing.T) {
	k := newTestKernel(t, map[string][]byte{})

	if _, err := k.CreateProcess("/bin/nope", ProcessOptions{}); Translate(err) != NoSuchProgram {
		t.Fatalf("expected NoSuchProgram, got %v", err)
	}
}

func TestKernelEndToEndLifecycle(t *testing.T) {
	k := newTestKernel(t, map[string][]byte{
		"child": []byte("output \"done\"\nprocess-exit 7\n"),
	})

	childPID, err := k.CreateProcess("/bin/child", ProcessOptions{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := k.StartProcess(childPID); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	caller := NewProcess(999, k.vfs.Root()+"/caller", nil, k.vfs.Root(), ProcessOptions{})
	k.table.Insert(caller)

	code, err := k.WaitProcess(caller, childPID)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if code != 7 {
		t.Fatalf("expected exit code 7, got %d", code)
	}

	if _, ok := k.table.Get(childPID); ok {
		t.Fatalf("expected child to be reaped once its waiter observed the exit code")
	}
}

func TestKernelWaitOnAlreadyReapedProcessFailsWaiteeGone(t *testing.T) {
	k := newTestKernel(t, map[string][]byte{})

	caller := NewProcess(999, k.vfs.Root()+"/caller", nil, k.vfs.Root(), ProcessOptions{})
	k.table.Insert(caller)

	if _, err := k.WaitProcess(caller, 12345); Translate(err) != WaiteeGone {
		t.Fatalf("expected WaiteeGone, got %v", err)
	}
}

func TestKernelKillProcessForcesExitCode(t *testing.T) {
	k := newTestKernel(t, map[string][]byte{"sleepy": []byte("terminal-read-line\n")})

	pid, err := k.CreateProcess("/bin/sleepy", ProcessOptions{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := k.KillProcess(pid); err != nil {
		t.Fatalf("kill failed: %v", err)
	}

	proc, ok := k.table.Get(pid)
	if !ok {
		t.Fatalf("expected process record to remain until a waiter reaps it")
	}
	if proc.Alive() {
		t.Fatalf("expected killed process to be terminating")
	}
	if proc.ExitCode != 137 {
		t.Fatalf("expected conventional SIGKILL exit code 137, got %d", proc.ExitCode)
	}

	// Killing an already-dead process is a no-op error, not a panic.
	if err := k.KillProcess(pid); Translate(err) != NoSuchProcess {
		t.Fatalf("expected NoSuchProcess on double-kill, got %v", err)
	}
}

func TestKernelExitProcessIsIdempotent(t *testing.T) {
	k := newTestKernel(t, map[string][]byte{"child": []byte("process-exit 3\n")})

	pid, err := k.CreateProcess("/bin/child", ProcessOptions{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	proc, _ := k.table.Get(pid)

	k.ExitProcess(proc, 3)
	k.ExitProcess(proc, 99) // must not overwrite the first exit code

	if proc.ExitCode != 3 {
		t.Fatalf("expected first exit code to stick, got %d", proc.ExitCode)
	}
}

// TestSystemBundleEchoToolStripsWireSuffix exercises the real embedded
// bootstrap bundle (not a test-authored stand-in) end to end, guarding
// against emit()'s "<value>\t<code>\n" wire form leaking into a bundled
// script's own output when it captures a builtin via "$(...)".
func TestSystemBundleEchoToolStripsWireSuffix(t *testing.T) {
	k := newTestKernel(t, nil)

	pid, err := k.CreateProcess("/bin/echo-tool", ProcessOptions{
		PipeOut: true,
		Argv:    []string{"/bin/echo-tool", "hello", "world"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	proc, _ := k.table.Get(pid)

	if err := proc.Runner.run(context.Background(), proc.program); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got := string(proc.StdoutPipe.ReadAll())
	want := "/bin/echo-tool\x1fhello\x1fworld"
	if got != want {
		t.Fatalf("expected echo-tool output %q, got %q", want, got)
	}
	if strings.Contains(got, "\t") {
		t.Fatalf("expected wire status suffix to be stripped, got %q", got)
	}
}

// TestSystemBundleInitEchoesThenExits boots the real embedded /bin/init
// against a scripted terminal, guarding against the same wire-stripping
// class of bug as TestSystemBundleEchoToolStripsWireSuffix: init must
// recognize "exit" despite terminal-read-line's value retaining its
// line's trailing newline, and must echo ordinary lines back unchanged.
func TestSystemBundleInitEchoesThenExits(t *testing.T) {
	dir, err := os.MkdirTemp("", "kernel-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	backend, err := NewLocalBackend(dir)
	if err != nil {
		t.Fatalf("failed to create local backend: %v", err)
	}

	term, out := newBufferTerminal("hello\nexit\n")
	k, err := NewKernel(KernelConfig{Backend: backend, Terminal: term, Log: zap.NewNop()})
	if err != nil {
		t.Fatalf("failed to construct kernel: %v", err)
	}

	if err := k.Boot("/bin/init"); err != nil {
		t.Fatalf("boot failed: %v", err)
	}

	caller := NewProcess(999, k.vfs.Root()+"/caller", nil, k.vfs.Root(), ProcessOptions{})
	k.table.Insert(caller)

	code, err := k.WaitProcess(caller, k.initPID)
	if err != nil {
		t.Fatalf("wait on init failed: %v", err)
	}
	if code != 0 {
		t.Fatalf("expected init to exit 0, got %d", code)
	}

	if got := out.String(); got != "hello\n" {
		t.Fatalf("expected init to echo %q, got %q", "hello\n", got)
	}
}

func TestKernelBootStartsInitAsPID1(t *testing.T) {
	k := newTestKernel(t, map[string][]byte{
		"init": []byte("process-exit 0\n"),
	})

	if err := k.Boot("/bin/init"); err != nil {
		t.Fatalf("boot failed: %v", err)
	}
	if k.initPID != 1 {
		t.Fatalf("expected init to be assigned PID 1, got %d", k.initPID)
	}
}
