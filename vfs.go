package kernel

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// OpenFlags is the guest's capability letter-set {r,w,x,c}, composed into a
// low-level mode per spec.md §4.2: "r+w ⇒ read-write, else r ⇒ read, w ⇒
// write; c ⇒ create."
type OpenFlags struct {
	Read    bool
	Write   bool
	Execute bool
	Create  bool
}

// ParseOpenFlags decodes a guest flag string such as "rwc" into OpenFlags,
// ignoring unrecognised letters (the binding layer validates the string
// before this is reached).
func ParseOpenFlags(s string) OpenFlags {
	var f OpenFlags
	for _, ch := range s {
		switch ch {
		case 'r':
			f.Read = true
		case 'w':
			f.Write = true
		case 'x':
			f.Execute = true
		case 'c':
			f.Create = true
		}
	}
	return f
}

func (f OpenFlags) accessMode() AccessMode {
	switch {
	case f.Read && f.Write:
		return AccessReadWrite
	case f.Write:
		return AccessWrite
	default:
		return AccessRead
	}
}

// VFS is the permissioned virtual filesystem of spec.md §4.2: path
// normalisation into a confined root, protected-bit enforcement, directory
// iteration, and persistence. It wraps the teacher's CopyOnWriteFs overlay
// (cowfs.go) with the out-of-band metadata table (node.go) the spec's
// protected bit and timestamp triple require.
type VFS struct {
	fs    *CopyOnWriteFs
	norm  *Normalizer
	meta  *metaTable
	log   *zap.Logger
	persi *Persistence
}

// NewVFS constructs a VFS over an already-configured CopyOnWriteFs.
func NewVFS(fs *CopyOnWriteFs, root string, log *zap.Logger) *VFS {
	if log == nil {
		log = zap.NewNop()
	}
	v := &VFS{
		fs:   fs,
		norm: NewNormalizer(root),
		meta: newMetaTable(),
		log:  log.Named("vfs"),
	}
	v.persi = NewPersistence(fs, log)
	return v
}

// Root returns the confined real root prefix.
func (v *VFS) Root() string { return v.norm.Root() }

// Resolve normalises a guest path relative to cwd into a confined real path.
func (v *VFS) Resolve(guestPath, cwd string) string {
	return v.norm.Resolve(guestPath, cwd)
}

// Strip removes the root prefix, producing the guest-visible view.
func (v *VFS) Strip(realPath string) string { return v.norm.Strip(realPath) }

// Chdir resolves path relative to cwd and confirms it names a directory.
func (v *VFS) Chdir(path, cwd string) (string, error) {
	real := v.norm.Resolve(path, cwd)
	info, err := v.fs.Stat(real)
	if err != nil {
		return "", CodeErr(NoSuchFile)
	}
	if !info.IsDir() {
		return "", CodeErr(NotADirectory)
	}
	return real, nil
}

// Open implements spec.md §4.2's open(path, flags) state machine.
func (v *VFS) Open(path, cwd string, flags OpenFlags) (afero.File, string, error) {
	real := v.norm.Resolve(path, cwd)

	info, statErr := v.fs.Stat(real)
	exists := statErr == nil

	if exists && flags.Create {
		return nil, "", CodeErr(Exists)
	}
	if !exists && !flags.Create {
		return nil, "", CodeErr(NoSuchFile)
	}

	if exists {
		m := v.meta.getOrCreate(real, info.IsDir())
		if flags.Read && !m.perm.Read {
			return nil, "", CodeErr(PermissionDenied)
		}
		if flags.Write && !m.perm.Write {
			return nil, "", CodeErr(PermissionDenied)
		}
		if flags.Write && m.protected {
			return nil, "", CodeErr(SystemFileReadonly)
		}
	}

	var osFlags int
	switch {
	case flags.Read && flags.Write:
		osFlags = os.O_RDWR
	case flags.Write:
		osFlags = os.O_WRONLY
	default:
		osFlags = os.O_RDONLY
	}
	if flags.Create {
		osFlags |= os.O_CREATE
	}

	file, err := v.fs.OpenFile(real, osFlags, 0644)
	if err != nil {
		return nil, "", Error{Code: Translate(err)}
	}

	if !exists {
		v.meta.create(real, false)
	}
	v.meta.touchAccess(real)

	return file, real, nil
}

// Remove implements remove(path), rejecting protected targets.
func (v *VFS) Remove(path, cwd string) error {
	real := v.norm.Resolve(path, cwd)
	if m, ok := v.meta.get(real); ok && m.protected {
		return CodeErr(SystemFileReadonly)
	}
	if err := v.fs.Remove(real); err != nil {
		return Error{Code: Translate(err)}
	}
	v.meta.remove(real)
	return nil
}

// Rename implements rename(old, new), rejecting a protected source or
// destination.
func (v *VFS) Rename(oldPath, newPath, cwd string) error {
	oldReal := v.norm.Resolve(oldPath, cwd)
	newReal := v.norm.Resolve(newPath, cwd)
	if m, ok := v.meta.get(oldReal); ok && m.protected {
		return CodeErr(SystemFileReadonly)
	}
	if m, ok := v.meta.get(newReal); ok && m.protected {
		return CodeErr(SystemFileReadonly)
	}
	if err := v.fs.Rename(oldReal, newReal); err != nil {
		return Error{Code: Translate(err)}
	}
	v.meta.rename(oldReal, newReal)
	return nil
}

// Mkdir implements mkdir(path). Directory permission bits are never
// enforced (spec.md §3).
func (v *VFS) Mkdir(path, cwd string) error {
	real := v.norm.Resolve(path, cwd)
	if err := v.fs.MkdirAll(real, 0755); err != nil {
		return Error{Code: Translate(err)}
	}
	v.meta.getOrCreate(real, true)
	return nil
}

// Rmdir implements rmdir(path): requires the directory be empty.
func (v *VFS) Rmdir(path, cwd string) error {
	real := v.norm.Resolve(path, cwd)
	entries, err := afero.ReadDir(v.fs, real)
	if err != nil {
		return Error{Code: Translate(err)}
	}
	if len(entries) > 0 {
		return CodeErr(DirectoryNotEmpty)
	}
	if err := v.fs.Remove(real); err != nil {
		return Error{Code: Translate(err)}
	}
	v.meta.remove(real)
	return nil
}

// ReadDir implements readdir(path): the raw entry-name list, "." and ".."
// included as produced by the underlying store (spec.md §4.2).
func (v *VFS) ReadDir(path, cwd string) ([]os.FileInfo, string, error) {
	real := v.norm.Resolve(path, cwd)
	entries, err := afero.ReadDir(v.fs, real)
	if err != nil {
		return nil, "", Error{Code: Translate(err)}
	}
	return entries, real, nil
}

// Stat implements stat(path).
func (v *VFS) Stat(path, cwd string) (Stat, error) {
	real := v.norm.Resolve(path, cwd)
	info, err := v.fs.Stat(real)
	if err != nil {
		return Stat{}, Error{Code: Translate(err)}
	}
	m := v.meta.getOrCreate(real, info.IsDir())
	return statFrom(info, m), nil
}

// FDStat implements fdstat(fd) given the descriptor's resolved path.
func (v *VFS) FDStat(realPath string) (Stat, error) {
	info, err := v.fs.Stat(realPath)
	if err != nil {
		return Stat{}, Error{Code: Translate(err)}
	}
	m := v.meta.getOrCreate(realPath, info.IsDir())
	return statFrom(info, m), nil
}

// Permit implements permit(path, flags): chmod-like, refused on directories
// and protected files.
func (v *VFS) Permit(path, cwd string, flags OpenFlags) error {
	real := v.norm.Resolve(path, cwd)
	info, err := v.fs.Stat(real)
	if err != nil {
		return Error{Code: Translate(err)}
	}
	if info.IsDir() {
		return CodeErr(IsADirectory)
	}
	m := v.meta.getOrCreate(real, false)
	if m.protected {
		return CodeErr(SystemFileReadonly)
	}
	m.perm = Perm{Read: flags.Read, Write: flags.Write, Execute: flags.Execute}
	v.meta.touchChange(real)
	return nil
}

// LoadProgram reads program text from the VFS for process.create, failing
// NoSuchProgram if absent (spec.md §4.3).
func (v *VFS) LoadProgram(path, cwd string) (string, string, error) {
	real := v.norm.Resolve(path, cwd)
	f, err := v.fs.Open(real)
	if err != nil {
		return "", "", CodeErr(NoSuchProgram)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", "", CodeErr(NoSuchProgram)
	}
	return string(data), real, nil
}

// Bootstrap populates the protected system directory from an embedded
// bundle, per spec.md §4.2/§6: "A read-only system directory (e.g. /bin) is
// populated on first boot from an immutable source bundle; all entries are
// owner-rwx with the protected bit set." Repeated bootstraps overwrite
// unconditionally so upgrades take effect.
func (v *VFS) Bootstrap(bundle map[string][]byte) error {
	binDir := v.norm.Root() + "/bin"
	if err := v.fs.MkdirAll(binDir, 0755); err != nil {
		return fmt.Errorf("bootstrap: mkdir %s: %w", binDir, err)
	}
	v.meta.getOrCreate(binDir, true)

	for name, contents := range bundle {
		real := binDir + "/" + strings.TrimPrefix(name, "/")
		if dir := filepath.Dir(real); dir != binDir {
			if err := v.fs.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("bootstrap: mkdir %s: %w", dir, err)
			}
		}
		f, err := v.fs.OpenFile(real, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
		if err != nil {
			return fmt.Errorf("bootstrap: create %s: %w", real, err)
		}
		if _, err := f.Write(contents); err != nil {
			f.Close()
			return fmt.Errorf("bootstrap: write %s: %w", real, err)
		}
		f.Close()

		m := v.meta.getOrCreate(real, false)
		m.perm = Perm{Read: true, Write: true, Execute: true}
		m.protected = true
		v.log.Info("bootstrap installed system file", zap.String("path", v.Strip(real)))
	}
	return nil
}

// Persistence exposes the pull/push protocol to the kernel façade.
func (v *VFS) Persistence() *Persistence { return v.persi }
