package kernel

import (
	"os"
	"sync"
	"time"
)

// Timestamp is the POSIX-like {sec, nsec} pair spec.md §3 requires for
// atime/mtime/ctime.
type Timestamp struct {
	Sec  int64
	Nsec int64
}

func timestampOf(t time.Time) Timestamp {
	return Timestamp{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// Perm is the owner rwx permission triple. Directory permission bits
// exist but are never enforced (spec.md §3).
type Perm struct {
	Read    bool
	Write   bool
	Execute bool
}

// String renders the permission triple as an "rwx"-style string, with
// "-" for absent bits, as stat()/fdstat() report it.
func (p Perm) String() string {
	b := [3]byte{'-', '-', '-'}
	if p.Read {
		b[0] = 'r'
	}
	if p.Write {
		b[1] = 'w'
	}
	if p.Execute {
		b[2] = 'x'
	}
	return string(b[:])
}

const defaultBlockSize = 4096

// metadata is the VFS's out-of-band attribute record for one real path.
// It exists because afero's os.FileInfo has no room for a protected bit
// or for atime/ctime distinct from mtime (Design Notes, second Open
// Question: store the protected attribute out-of-band rather than steal
// a POSIX mode bit).
type metadata struct {
	perm      Perm
	protected bool
	isDir     bool
	atime     time.Time
	mtime     time.Time
	ctime     time.Time
	inode     uint64
}

// metaTable tracks per-path metadata across the VFS's confined
// namespace, keyed by real (root-prefixed) path.
type metaTable struct {
	mu      sync.RWMutex
	entries map[string]*metadata
	nextIno uint64
}

func newMetaTable() *metaTable {
	return &metaTable{entries: make(map[string]*metadata), nextIno: 1}
}

// create installs metadata for a newly-created file: owner rwx, protected
// bit cleared, per spec.md §4.2's "New files are created with owner rwx
// by default and the protected bit cleared."
func (t *metaTable) create(path string, isDir bool) *metadata {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	m := &metadata{
		perm:  Perm{Read: true, Write: true, Execute: true},
		isDir: isDir,
		atime: now,
		mtime: now,
		ctime: now,
		inode: t.nextIno,
	}
	t.nextIno++
	t.entries[path] = m
	return m
}

func (t *metaTable) get(path string) (*metadata, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.entries[path]
	return m, ok
}

// getOrCreate returns existing metadata, synthesizing owner-rwx,
// unprotected metadata on first observation (e.g. for bundled/pre-seeded
// files the metadata table hasn't seen yet, or paths restored from a
// persistence backend without a metadata sidecar).
func (t *metaTable) getOrCreate(path string, isDir bool) *metadata {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.entries[path]; ok {
		return m
	}
	now := time.Now()
	m := &metadata{
		perm:  Perm{Read: true, Write: true, Execute: true},
		isDir: isDir,
		atime: now,
		mtime: now,
		ctime: now,
		inode: t.nextIno,
	}
	t.nextIno++
	t.entries[path] = m
	return m
}

func (t *metaTable) remove(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, path)
}

func (t *metaTable) rename(oldPath, newPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.entries[oldPath]; ok {
		delete(t.entries, oldPath)
		t.entries[newPath] = m
	}
}

func (t *metaTable) touchAccess(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.entries[path]; ok {
		m.atime = time.Now()
	}
}

func (t *metaTable) touchModify(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.entries[path]; ok {
		now := time.Now()
		m.mtime = now
		m.ctime = now
	}
}

func (t *metaTable) touchChange(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.entries[path]; ok {
		m.ctime = time.Now()
	}
}

// setProtected marks path's protected bit. Used only by the bootstrap
// loader (spec.md §4.2 Bootstrap) — guest code has no path to this.
func (t *metaTable) setProtected(path string, protected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.entries[path]; ok {
		m.protected = protected
	}
}

// Stat is the result of stat()/fdstat(): size, block accounting, inode,
// permission triple, node type and the atime/mtime/ctime triple.
type Stat struct {
	Size      int64
	Blocks    int64
	BlockSize int64
	Inode     uint64
	Perm      string
	IsDir     bool
	Atime     Timestamp
	Mtime     Timestamp
	Ctime     Timestamp
}

func statFrom(info os.FileInfo, m *metadata) Stat {
	size := info.Size()
	blocks := (size + defaultBlockSize - 1) / defaultBlockSize
	return Stat{
		Size:      size,
		Blocks:    blocks,
		BlockSize: defaultBlockSize,
		Inode:     m.inode,
		Perm:      m.perm.String(),
		IsDir:     info.IsDir(),
		Atime:     timestampOf(m.atime),
		Mtime:     timestampOf(m.mtime),
		Ctime:     timestampOf(m.ctime),
	}
}
