package kernel

import (
	"sync"

	"github.com/spf13/afero"
)

// AccessMode is a file descriptor's access mode, fixed at open() time per
// spec.md §3 ("access mode (read / write / read-write)").
type AccessMode int

const (
	AccessRead AccessMode = iota
	AccessWrite
	AccessReadWrite
)

// fileDescriptor is the VFS's per-process open-file handle: a cursor offset,
// an access mode, and a link back to the real path it was opened against.
// Descriptors never cross process boundaries (spec.md §3: "Descriptors are
// per-process"; §8 property 3: "A descriptor opened by process A cannot be
// used successfully by process B").
type fileDescriptor struct {
	file   afero.File
	path   string
	mode   AccessMode
	offset int64
}

// fdTable is one process's file descriptor table. Small integers are handed
// out starting at 3 (0, 1, 2 are reserved for the stream router's
// stdin/stdout/stderr, mirroring POSIX convention and builtins.go's own
// /dev/fd numbering in virtualpipe.go).
type fdTable struct {
	mu      sync.Mutex
	entries map[int]*fileDescriptor
	next    int
}

func newFDTable() *fdTable {
	return &fdTable{entries: make(map[int]*fileDescriptor), next: 3}
}

// install registers an open file under a fresh descriptor number.
func (t *fdTable) install(file afero.File, path string, mode AccessMode) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := t.next
	t.next++
	t.entries[fd] = &fileDescriptor{file: file, path: path, mode: mode}
	return fd
}

// get retrieves a descriptor, failing with BadDescriptor if absent — this is
// the enforcement point for FD isolation: a descriptor number meaningful in
// one process's table is simply not present in another's.
func (t *fdTable) get(fd int) (*fileDescriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.entries[fd]
	if !ok {
		return nil, CodeErr(BadDescriptor)
	}
	return d, nil
}

// release closes and removes a descriptor.
func (t *fdTable) release(fd int) error {
	t.mu.Lock()
	d, ok := t.entries[fd]
	if !ok {
		t.mu.Unlock()
		return CodeErr(BadDescriptor)
	}
	delete(t.entries, fd)
	t.mu.Unlock()
	return d.file.Close()
}

// closeAll releases every descriptor, called when a process is reaped
// (spec.md §3 invariant: "when that process terminates, all its descriptors
// and directory handles are released").
func (t *fdTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd, d := range t.entries {
		d.file.Close()
		delete(t.entries, fd)
	}
}
