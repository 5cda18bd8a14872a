package kernel

import (
	"strings"
	"testing"
)

// drainOut reads and clears a ProcessRunner's accumulated native-stdout
// buffer (the plumbing emit() writes the "<value>\t<code>" wire form into),
// letting a test call dispatch methods directly without driving them
// through the interpreter.
func drainOut(r *ProcessRunner) string {
	s := r.out.String()
	r.out.Reset()
	return s
}

// parseEmitValue splits one emit()-style wire line into its value and
// verifies the trailing code is OK, failing the test otherwise.
func parseEmitValue(t *testing.T, wire string) string {
	t.Helper()
	wire = strings.TrimSuffix(wire, "\n")
	idx := strings.LastIndex(wire, "\t")
	if idx < 0 {
		t.Fatalf("malformed emit wire line: %q", wire)
	}
	value, code := wire[:idx], wire[idx+1:]
	if code != "0" {
		t.Fatalf("expected OK code, got %q (value=%q)", code, value)
	}
	return value
}

// parseEmitError splits one emit()-style wire line and returns its code
// without requiring it to be OK.
func parseEmitError(t *testing.T, wire string) string {
	t.Helper()
	wire = strings.TrimSuffix(wire, "\n")
	idx := strings.LastIndex(wire, "\t")
	if idx < 0 {
		t.Fatalf("malformed emit wire line: %q", wire)
	}
	return wire[idx+1:]
}

func TestBindingFileWriteThenReadAllRoundTrips(t *testing.T) {
	k := newTestKernel(t, map[string][]byte{"child": []byte("")})
	proc := newTestProcess(t, k, "child", ProcessOptions{})
	r := proc.Runner

	if err := r.fileOpen([]string{"file-open", "/data.txt", "rwc"}); err != nil {
		t.Fatalf("file-open failed: %v", err)
	}
	fd := parseEmitValue(t, drainOut(r))

	if err := r.fileWrite([]string{"file-write", fd, "hello"}); err != nil {
		t.Fatalf("file-write failed: %v", err)
	}
	if n := parseEmitValue(t, drainOut(r)); n != "5" {
		t.Fatalf("expected 5 bytes written, got %q", n)
	}

	if err := r.fileClose([]string{"file-close", fd}); err != nil {
		t.Fatalf("file-close failed: %v", err)
	}
	drainOut(r)

	if err := r.fileOpen([]string{"file-open", "/data.txt", "r"}); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	fd2 := parseEmitValue(t, drainOut(r))

	if err := r.fileReadAll([]string{"file-read-all", fd2}); err != nil {
		t.Fatalf("file-read-all failed: %v", err)
	}
	if content := parseEmitValue(t, drainOut(r)); content != "hello" {
		t.Fatalf("expected %q, got %q", "hello", content)
	}
}

func TestBindingFileOpenRejectsMissingFile(t *testing.T) {
	k := newTestKernel(t, map[string][]byte{"child": []byte("")})
	proc := newTestProcess(t, k, "child", ProcessOptions{})
	r := proc.Runner

	if err := r.fileOpen([]string{"file-open", "/missing.txt", "r"}); err == nil {
		t.Fatalf("expected an error for a missing file without the create flag")
	}
	if code := parseEmitError(t, drainOut(r)); code != "2" { // NoSuchFile
		t.Fatalf("expected NoSuchFile code, got %s", code)
	}
}

func TestBindingFileCloseIsolatesDescriptorsPerProcess(t *testing.T) {
	k := newTestKernel(t, map[string][]byte{"a": []byte(""), "b": []byte("")})
	a := newTestProcess(t, k, "a", ProcessOptions{})
	b := newTestProcess(t, k, "b", ProcessOptions{})

	if err := a.Runner.fileOpen([]string{"file-open", "/shared.txt", "rwc"}); err != nil {
		t.Fatalf("file-open failed: %v", err)
	}
	fd := parseEmitValue(t, drainOut(a.Runner))

	if err := b.Runner.fileClose([]string{"file-close", fd}); err == nil {
		t.Fatalf("expected process b closing process a's descriptor to fail")
	}
	if code := parseEmitError(t, drainOut(b.Runner)); code != "4" { // BadDescriptor
		t.Fatalf("expected BadDescriptor, got %s", code)
	}
}

func TestBindingMkdirThenRmdir(t *testing.T) {
	k := newTestKernel(t, map[string][]byte{"child": []byte("")})
	proc := newTestProcess(t, k, "child", ProcessOptions{})
	r := proc.Runner

	if err := r.fileMkdir([]string{"file-mkdir", "/sub"}); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	drainOut(r)

	if err := r.fileRmdir([]string{"file-rmdir", "/sub"}); err != nil {
		t.Fatalf("rmdir failed: %v", err)
	}
	drainOut(r)

	if err := r.fileStat([]string{"file-stat", "/sub"}); err == nil {
		t.Fatalf("expected stat on a removed directory to fail")
	}
}

func TestBindingProcessArgvRoundTrips(t *testing.T) {
	k := newTestKernel(t, map[string][]byte{"child": []byte("")})
	proc := newTestProcess(t, k, "child", ProcessOptions{Argv: []string{"/bin/child", "a", "b"}})
	r := proc.Runner

	if err := r.processArgv([]string{"process-argv"}); err != nil {
		t.Fatalf("process-argv failed: %v", err)
	}
	got := parseEmitValue(t, drainOut(r))
	want := strings.Join([]string{"/bin/child", "a", "b"}, "\x1f")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestBindingErrorsAsString(t *testing.T) {
	k := newTestKernel(t, map[string][]byte{"child": []byte("")})
	proc := newTestProcess(t, k, "child", ProcessOptions{})
	r := proc.Runner

	if err := r.errorsAsString([]string{"errors-as-string", "2"}); err != nil {
		t.Fatalf("errors-as-string failed: %v", err)
	}
	if got := parseEmitValue(t, drainOut(r)); got != AsString(NoSuchFile) {
		t.Fatalf("expected %q, got %q", AsString(NoSuchFile), got)
	}
}
