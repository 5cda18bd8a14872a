package kernel

import (
	"fmt"
	"strconv"
	"strings"
)

// emit writes the two-value discipline's wire form to w: "<value>\t<errcode>\n".
// Every file-*/process-*/errors-* builtin funnels its result through this,
// the concrete rendering (per SPEC_FULL.md §C) of the guest's (value, error)
// tuple convention on an interpreter that communicates through stdout and
// exit status rather than multiple return values.
func emit(r *ProcessRunner, value string, code Code) error {
	fmt.Fprintf(r.stdoutWriter(), "%s\t%d\n", value, int(code))
	if code != OK {
		return clampedExit(code)
	}
	return nil
}

// clampedExit maps a non-zero Code to a non-zero shell exit status — sh
// exit statuses are a single byte, so codes are folded into [1,255] as
// (|code| mod 255) + 1, never 0 (0 is reserved for success and would
// otherwise mask a real failure when |code| happens to be a multiple of
// 256).
func clampedExit(code Code) error {
	n := int(code)
	if n < 0 {
		n = -n
	}
	status := (n % 255) + 1
	return exitStatus(uint8(status))
}

// dispatch is the exec handler's builtin table, keyed by the command word.
// args[0] is the command name; args[1:] are its arguments exactly as a
// shell word-split would produce.
func (r *ProcessRunner) dispatch(args []string) (bool, error) {
	if len(args) == 0 {
		return false, nil
	}
	switch args[0] {
	// file.*
	case "file-open":
		return true, r.fileOpen(args)
	case "file-close":
		return true, r.fileClose(args)
	case "file-read":
		return true, r.fileRead(args)
	case "file-read-all":
		return true, r.fileReadAll(args)
	case "file-read-line":
		return true, r.fileReadLine(args)
	case "file-write":
		return true, r.fileWrite(args)
	case "file-seek":
		return true, r.fileSeek(args)
	case "file-shift":
		return true, r.fileShift(args)
	case "file-truncate":
		return true, r.fileTruncate(args)
	case "file-stat":
		return true, r.fileStat(args)
	case "file-fdstat":
		return true, r.fileFdstat(args)
	case "file-remove":
		return true, r.fileRemove(args)
	case "file-rename":
		return true, r.fileRename(args)
	case "file-mkdir":
		return true, r.fileMkdir(args)
	case "file-rmdir":
		return true, r.fileRmdir(args)
	case "file-opendir":
		return true, r.fileOpendir(args)
	case "file-readdir":
		return true, r.fileReaddir(args)
	case "file-closedir":
		return true, r.fileClosedir(args)
	case "file-permit":
		return true, r.filePermit(args)
	case "file-chdir":
		return true, r.fileChdir(args)

	// process.*
	case "process-create":
		return true, r.processCreate(args)
	case "process-start":
		return true, r.processStart(args)
	case "process-wait":
		return true, r.processWait(args)
	case "process-pipe":
		return true, r.processPipe(args)
	case "process-exit":
		return true, r.processExit(args)
	case "process-kill":
		return true, r.processKill(args)
	case "process-argv":
		return true, r.processArgv(args)
	case "process-cwd":
		return true, r.processCwdBuiltin(args)
	case "process-list":
		return true, r.processList(args)

	// prelude aliases into the global namespace (§4.5).
	case "output":
		return true, r.output(args)
	case "input":
		return true, r.input(args)
	case "input-all":
		return true, r.inputAll(args)
	case "input-line":
		return true, r.inputLine(args)
	case "close-output":
		return true, r.closeOutput(args)

	// errors.*
	case "errors-as-string":
		return true, r.errorsAsString(args)
	case "errors-ok":
		return true, r.errorsOk(args)

	// terminal bindings (§6), reachable when stdout is the host terminal.
	case "terminal-read-line":
		return true, r.terminalReadLine(args)
	case "terminal-clear":
		return true, r.terminalClear(args)
	case "terminal-size":
		return true, r.terminalSize(args)

	// jq query over stat/fdstat JSON views (jq.go, kept from the teacher's
	// gojq-based cmdJq, re-scoped to kernel introspection output).
	case "jq":
		return true, r.cmdJq(args)

	// pure-computation builtins (pureutils.go, adapted from textutils.go to
	// read through the VFS/stream router instead of a bare afero.Fs).
	case "grep":
		return true, r.cmdGrep(args)
	case "head":
		return true, r.cmdHead(args)
	case "tail":
		return true, r.cmdTail(args)
	case "wc":
		return true, r.cmdWc(args)
	case "sort":
		return true, r.cmdSort(args)
	case "uniq":
		return true, r.cmdUniq(args)
	case "find":
		return true, r.cmdFind(args)

	default:
		return false, nil
	}
}

func argOr(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// --- file.* ---

func (r *ProcessRunner) fileOpen(args []string) error {
	if len(args) < 3 {
		return emit(r, "", InvalidArgument)
	}
	flags := ParseOpenFlags(args[2])
	file, real, err := r.k.vfs.Open(args[1], r.proc.Cwd, flags)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	fd := r.proc.Fds.install(file, real, flags.accessMode())
	return emit(r, strconv.Itoa(fd), OK)
}

func (r *ProcessRunner) fileClose(args []string) error {
	fd := atoiOr(argOr(args, 1, ""), -1)
	d, err := r.proc.Fds.get(fd)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	_ = d
	if err := r.proc.Fds.release(fd); err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, "", OK)
}

func (r *ProcessRunner) fileRead(args []string) error {
	fd := atoiOr(argOr(args, 1, ""), -1)
	n := atoiOr(argOr(args, 2, "4096"), 4096)
	d, err := r.proc.Fds.get(fd)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	buf := make([]byte, n)
	read, rerr := d.file.Read(buf)
	if rerr != nil && read == 0 {
		return emit(r, "", OK)
	}
	d.offset += int64(read)
	return emit(r, string(buf[:read]), OK)
}

func (r *ProcessRunner) fileReadAll(args []string) error {
	fd := atoiOr(argOr(args, 1, ""), -1)
	d, err := r.proc.Fds.get(fd)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, rerr := d.file.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if rerr != nil || n == 0 {
			break
		}
	}
	return emit(r, string(buf), OK)
}

func (r *ProcessRunner) fileReadLine(args []string) error {
	fd := atoiOr(argOr(args, 1, ""), -1)
	d, err := r.proc.Fds.get(fd)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	var line []byte
	buf := make([]byte, 1)
	for {
		n, rerr := d.file.Read(buf)
		if n == 0 || rerr != nil {
			break
		}
		line = append(line, buf[0])
		if buf[0] == '\n' {
			break
		}
	}
	return emit(r, string(line), OK)
}

func (r *ProcessRunner) fileWrite(args []string) error {
	fd := atoiOr(argOr(args, 1, ""), -1)
	data := argOr(args, 2, "")
	d, err := r.proc.Fds.get(fd)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	n, werr := d.file.Write([]byte(data))
	if werr != nil {
		return emit(r, "", Translate(werr))
	}
	d.offset += int64(n)
	return emit(r, strconv.Itoa(n), OK)
}

func (r *ProcessRunner) fileSeek(args []string) error {
	fd := atoiOr(argOr(args, 1, ""), -1)
	pos := int64(atoiOr(argOr(args, 2, "0"), 0))
	d, err := r.proc.Fds.get(fd)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	seeker, ok := d.file.(interface {
		Seek(offset int64, whence int) (int64, error)
	})
	if !ok {
		return emit(r, "", IOError)
	}
	newPos, serr := seeker.Seek(pos, 0)
	if serr != nil {
		return emit(r, "", Translate(serr))
	}
	d.offset = newPos
	return emit(r, strconv.FormatInt(newPos, 10), OK)
}

func (r *ProcessRunner) fileShift(args []string) error {
	fd := atoiOr(argOr(args, 1, ""), -1)
	delta := int64(atoiOr(argOr(args, 2, "0"), 0))
	d, err := r.proc.Fds.get(fd)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	seeker, ok := d.file.(interface {
		Seek(offset int64, whence int) (int64, error)
	})
	if !ok {
		return emit(r, "", IOError)
	}
	newPos, serr := seeker.Seek(delta, 1)
	if serr != nil {
		return emit(r, "", Translate(serr))
	}
	d.offset = newPos
	return emit(r, strconv.FormatInt(newPos, 10), OK)
}

func (r *ProcessRunner) fileTruncate(args []string) error {
	fd := atoiOr(argOr(args, 1, ""), -1)
	length := int64(atoiOr(argOr(args, 2, "0"), 0))
	d, err := r.proc.Fds.get(fd)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	truncater, ok := d.file.(interface{ Truncate(size int64) error })
	if !ok {
		return emit(r, "", IOError)
	}
	if err := truncater.Truncate(length); err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, "", OK)
}

func (r *ProcessRunner) fileStat(args []string) error {
	if len(args) < 2 {
		return emit(r, "", InvalidArgument)
	}
	st, err := r.k.vfs.Stat(args[1], r.proc.Cwd)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, statJSON(st), OK)
}

func (r *ProcessRunner) fileFdstat(args []string) error {
	fd := atoiOr(argOr(args, 1, ""), -1)
	d, err := r.proc.Fds.get(fd)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	st, serr := r.k.vfs.FDStat(d.path)
	if serr != nil {
		return emit(r, "", Translate(serr))
	}
	return emit(r, statJSON(st), OK)
}

func (r *ProcessRunner) fileRemove(args []string) error {
	if len(args) < 2 {
		return emit(r, "", InvalidArgument)
	}
	if err := r.k.vfs.Remove(args[1], r.proc.Cwd); err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, "", OK)
}

func (r *ProcessRunner) fileRename(args []string) error {
	if len(args) < 3 {
		return emit(r, "", InvalidArgument)
	}
	if err := r.k.vfs.Rename(args[1], args[2], r.proc.Cwd); err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, "", OK)
}

func (r *ProcessRunner) fileMkdir(args []string) error {
	if len(args) < 2 {
		return emit(r, "", InvalidArgument)
	}
	if err := r.k.vfs.Mkdir(args[1], r.proc.Cwd); err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, "", OK)
}

func (r *ProcessRunner) fileRmdir(args []string) error {
	if len(args) < 2 {
		return emit(r, "", InvalidArgument)
	}
	if err := r.k.vfs.Rmdir(args[1], r.proc.Cwd); err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, "", OK)
}

func (r *ProcessRunner) fileOpendir(args []string) error {
	if len(args) < 2 {
		return emit(r, "", InvalidArgument)
	}
	entries, _, err := r.k.vfs.ReadDir(args[1], r.proc.Cwd)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	slot, serr := r.proc.Dirs.open(args[1], entries)
	if serr != nil {
		return emit(r, "", Translate(serr))
	}
	return emit(r, strconv.Itoa(slot+1), OK) // 1-based outward, per spec.md §3
}

func (r *ProcessRunner) fileReaddir(args []string) error {
	slot := atoiOr(argOr(args, 1, ""), 0) - 1
	name, done, err := r.proc.Dirs.read(slot)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	if done {
		return emit(r, "", EndOfStream)
	}
	return emit(r, name, OK)
}

func (r *ProcessRunner) fileClosedir(args []string) error {
	slot := atoiOr(argOr(args, 1, ""), 0) - 1
	if err := r.proc.Dirs.close(slot); err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, "", OK)
}

func (r *ProcessRunner) filePermit(args []string) error {
	if len(args) < 3 {
		return emit(r, "", InvalidArgument)
	}
	flags := ParseOpenFlags(args[2])
	if err := r.k.vfs.Permit(args[1], r.proc.Cwd, flags); err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, "", OK)
}

func (r *ProcessRunner) fileChdir(args []string) error {
	if len(args) < 2 {
		return emit(r, "", InvalidArgument)
	}
	newCwd, err := r.k.vfs.Chdir(args[1], r.proc.Cwd)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	r.proc.Cwd = newCwd
	r.syncInterpDir()
	return emit(r, r.k.vfs.Strip(newCwd), OK)
}

// statJSON renders a Stat as the flat JSON object guest scripts and
// file-stat/file-fdstat callers parse (and that jq queries against).
func statJSON(st Stat) string {
	typ := "file"
	if st.IsDir {
		typ = "directory"
	}
	return fmt.Sprintf(
		`{"size":%d,"blocks":%d,"block_size":%d,"inode":%d,"perm":%q,"type":%q,"atime":{"sec":%d,"nsec":%d},"mtime":{"sec":%d,"nsec":%d},"ctime":{"sec":%d,"nsec":%d}}`,
		st.Size, st.Blocks, st.BlockSize, st.Inode, st.Perm, typ,
		st.Atime.Sec, st.Atime.Nsec, st.Mtime.Sec, st.Mtime.Nsec, st.Ctime.Sec, st.Ctime.Nsec,
	)
}

// --- process.* ---

func (r *ProcessRunner) processCreate(args []string) error {
	if len(args) < 2 {
		return emit(r, "", BadArgv)
	}
	opts := ProcessOptions{Cwd: r.proc.Cwd}
	argv := []string{}
	for i := 2; i < len(args); i++ {
		switch args[i] {
		case "pipe-in":
			opts.PipeIn = true
		case "pipe-out":
			opts.PipeOut = true
		case "redirect-in":
			i++
			opts.RedirectIn = r.k.vfs.Resolve(argOr(args, i, ""), r.proc.Cwd)
		case "redirect-out":
			i++
			opts.RedirectOut = r.k.vfs.Resolve(argOr(args, i, ""), r.proc.Cwd)
		case "cwd":
			i++
			opts.Cwd = r.k.vfs.Resolve(argOr(args, i, ""), r.proc.Cwd)
		default:
			argv = append(argv, args[i])
		}
	}
	opts.Argv = argv
	pid, err := r.k.CreateProcess(args[1], opts)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, strconv.Itoa(pid), OK)
}

func (r *ProcessRunner) processStart(args []string) error {
	pid := atoiOr(argOr(args, 1, ""), -1)
	if err := r.k.StartProcess(pid); err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, "", OK)
}

func (r *ProcessRunner) processWait(args []string) error {
	pid := atoiOr(argOr(args, 1, ""), -1)
	code, err := r.k.WaitProcess(r.proc, pid)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, strconv.Itoa(code), OK)
}

func (r *ProcessRunner) processPipe(args []string) error {
	writerPID := atoiOr(argOr(args, 1, ""), -1)
	readerPID := atoiOr(argOr(args, 2, ""), -1)
	if err := r.k.PipeProcesses(writerPID, readerPID); err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, "", OK)
}

func (r *ProcessRunner) processExit(args []string) error {
	code := atoiOr(argOr(args, 1, "0"), 0)
	r.k.ExitProcess(r.proc, code)
	return exitStatus(uint8(code & 0xff))
}

func (r *ProcessRunner) processKill(args []string) error {
	pid := atoiOr(argOr(args, 1, ""), -1)
	if err := r.k.KillProcess(pid); err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, "", OK)
}

func (r *ProcessRunner) processArgv(args []string) error {
	return emit(r, strings.Join(r.proc.Argv, "\x1f"), OK)
}

func (r *ProcessRunner) processCwdBuiltin(args []string) error {
	return emit(r, r.k.vfs.Strip(r.proc.Cwd), OK)
}

func (r *ProcessRunner) processList(args []string) error {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, p := range r.k.table.Enumerate() {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, `{"pid":%d,"state":%q,"path":%q,"argv":%q}`,
			p.PID, p.State().String(), p.Path, strings.Join(p.Argv, " "))
	}
	sb.WriteByte(']')
	return emit(r, sb.String(), OK)
}

// --- prelude aliases ---

func (r *ProcessRunner) output(args []string) error {
	data := argOr(args, 1, "")
	n, err := r.k.streams.Output(r.proc, []byte(data))
	if err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, strconv.Itoa(n), OK)
}

func (r *ProcessRunner) input(args []string) error {
	n := atoiOr(argOr(args, 1, "4096"), 4096)
	data, err := r.k.streams.Input(r.proc, n)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, string(data), OK)
}

func (r *ProcessRunner) inputAll(args []string) error {
	data, err := r.k.streams.InputAll(r.proc)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, string(data), OK)
}

func (r *ProcessRunner) inputLine(args []string) error {
	line, err := r.k.streams.InputLine(r.proc)
	if err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, line, OK)
}

func (r *ProcessRunner) closeOutput(args []string) error {
	r.k.streams.CloseOutput(r.proc)
	return emit(r, "", OK)
}

// --- errors.* ---

func (r *ProcessRunner) errorsAsString(args []string) error {
	code := atoiOr(argOr(args, 1, "0"), 0)
	return emit(r, AsString(Code(code)), OK)
}

// errorsOk is the fail-fast assertion helper of spec.md §4.5: a non-nil
// error writes "<msg>: <description>" to stdout and exits 1.
func (r *ProcessRunner) errorsOk(args []string) error {
	code := atoiOr(argOr(args, 1, "0"), 0)
	msg := argOr(args, 2, "")
	if code == 0 {
		return emit(r, "", OK)
	}
	fmt.Fprintf(r.stdoutWriter(), "%s: %s\n", msg, AsString(Code(code)))
	return exitStatus(1)
}

// --- terminal.* ---

func (r *ProcessRunner) terminalReadLine(args []string) error {
	if r.proc.StdoutMode.Kind != StreamTerminal {
		return emit(r, "", NeedsPTY)
	}
	line, err := r.k.terminal.ReadLine()
	if err != nil {
		return emit(r, "", StdinReadFailed)
	}
	return emit(r, line, OK)
}

func (r *ProcessRunner) terminalClear(args []string) error {
	if r.proc.StdoutMode.Kind != StreamTerminal {
		return emit(r, "", NeedsPTY)
	}
	if err := r.k.terminal.Clear(); err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, "", OK)
}

func (r *ProcessRunner) terminalSize(args []string) error {
	if r.proc.StdoutMode.Kind != StreamTerminal {
		return emit(r, "", NeedsPTY)
	}
	rows, cols, err := r.k.terminal.Size()
	if err != nil {
		return emit(r, "", Translate(err))
	}
	return emit(r, fmt.Sprintf("%d %d", rows, cols), OK)
}
