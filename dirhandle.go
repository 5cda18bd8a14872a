package kernel

import (
	"os"
	"sync"
)

// dirHandleCapacity is the fixed capacity of a process's directory-handle
// table, per the Design Notes: "Fixed-capacity registry of open iterators,
// indexed by small integers... exhaustion is a reportable error, not a
// panic."
const dirHandleCapacity = 64

// dirHandle is one open directory iterator: the realised entry list and a
// read cursor. opendir reads the full listing once; readdir walks it.
type dirHandle struct {
	path    string
	entries []os.FileInfo
	pos     int
}

// dirHandleTable is a per-process, fixed-capacity registry of open
// directory handles, slotted at small integers (spec.md §3: "Slot index
// (1-based outward, 0-based inward)" — callers see 1-based slots; the
// internal map is 0-based and the binding layer adds the offset).
type dirHandleTable struct {
	mu      sync.Mutex
	entries map[int]*dirHandle
	next    int
}

func newDirHandleTable() *dirHandleTable {
	return &dirHandleTable{entries: make(map[int]*dirHandle)}
}

// open installs a fresh iterator over entries, failing with
// ResourceUnavailable once dirHandleCapacity handles are outstanding.
func (t *dirHandleTable) open(path string, entries []os.FileInfo) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) >= dirHandleCapacity {
		return 0, CodeErr(ResourceUnavailable)
	}
	slot := t.next
	t.next++
	t.entries[slot] = &dirHandle{path: path, entries: entries}
	return slot, nil
}

// read returns the next entry name, or ("", true, nil) once exhausted — at
// which point read itself frees the handle's slot per spec.md §3:
// "exhausting entries auto-closes."
func (t *dirHandleTable) read(slot int) (name string, done bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.entries[slot]
	if !ok {
		return "", false, CodeErr(BadDescriptor)
	}
	if h.pos >= len(h.entries) {
		delete(t.entries, slot)
		return "", true, nil
	}
	name = h.entries[h.pos].Name()
	h.pos++
	return name, false, nil
}

func (t *dirHandleTable) close(slot int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[slot]; !ok {
		return CodeErr(BadDescriptor)
	}
	delete(t.entries, slot)
	return nil
}

func (t *dirHandleTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for slot := range t.entries {
		delete(t.entries, slot)
	}
}
