package kernel

import "sync"

// defaultProcessCapacity bounds the process table, per spec.md §3: "Fixed
// maximum capacity."
const defaultProcessCapacity = 256

// ProcessTable allocates/recycles PIDs and holds process records. PID 1 is
// reserved for init (spec.md §4.3).
type ProcessTable struct {
	mu       sync.Mutex
	capacity int
	next     int
	procs    map[int]*Process
}

// NewProcessTable constructs an empty table with the default capacity.
func NewProcessTable() *ProcessTable {
	return &ProcessTable{capacity: defaultProcessCapacity, next: 1, procs: make(map[int]*Process)}
}

// Allocate reserves the next PID, failing NoFreePID once capacity is
// exhausted.
func (t *ProcessTable) Allocate() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.procs) >= t.capacity {
		return 0, CodeErr(NoFreePID)
	}
	for {
		pid := t.next
		t.next++
		if t.next > t.capacity*4 {
			// wrap the counter rather than grow it unboundedly across a
			// long-lived kernel's lifetime; the occupancy check above is
			// the real capacity guard.
			t.next = 1
		}
		if _, taken := t.procs[pid]; !taken {
			return pid, nil
		}
	}
}

// Insert records a freshly-created process under its allocated PID.
func (t *ProcessTable) Insert(p *Process) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.procs[p.PID] = p
}

// Get retrieves a process record by PID.
func (t *ProcessTable) Get(pid int) (*Process, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[pid]
	return p, ok
}

// Free reaps a process record, making its PID eligible for reuse. Per
// spec.md §8 property 7 ("PID recycling"), callers must only invoke this
// after all waiters have observed the exit code.
func (t *ProcessTable) Free(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.procs, pid)
}

// Enumerate returns a snapshot of all live process records, ordered by
// ascending PID (the scheduler's round-robin order).
func (t *ProcessTable) Enumerate() []*Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Process, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, p)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].PID > out[j].PID; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
