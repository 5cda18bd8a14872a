package kernel

import "testing"

func TestProcessTableAllocateSequential(t *testing.T) {
	table := NewProcessTable()

	first, err := table.Allocate()
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	second, err := table.Allocate()
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct PIDs, got %d and %d", first, second)
	}
}

func TestProcessTableFreeRecyclesPID(t *testing.T) {
	table := NewProcessTable()

	pid, err := table.Allocate()
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	table.Insert(NewProcess(pid, "/bin/a", []string{"/bin/a"}, "/", ProcessOptions{}))
	table.Free(pid)

	if _, ok := table.Get(pid); ok {
		t.Fatalf("expected Get to miss after Free")
	}
}

func TestProcessTableEnumerateAscending(t *testing.T) {
	table := NewProcessTable()

	var pids []int
	for i := 0; i < 5; i++ {
		pid, err := table.Allocate()
		if err != nil {
			t.Fatalf("allocate failed: %v", err)
		}
		table.Insert(NewProcess(pid, "/bin/a", []string{"/bin/a"}, "/", ProcessOptions{}))
		pids = append(pids, pid)
	}

	procs := table.Enumerate()
	if len(procs) != len(pids) {
		t.Fatalf("expected %d processes, got %d", len(pids), len(procs))
	}
	for i := 1; i < len(procs); i++ {
		if procs[i-1].PID > procs[i].PID {
			t.Fatalf("enumerate not ascending: %d before %d", procs[i-1].PID, procs[i].PID)
		}
	}
}

func TestProcessTableAllocateFailsAtCapacity(t *testing.T) {
	table := NewProcessTable()
	table.capacity = 2

	if _, err := table.Allocate(); err != nil {
		t.Fatalf("first allocate failed: %v", err)
	}
	if _, err := table.Allocate(); err != nil {
		t.Fatalf("second allocate failed: %v", err)
	}
	table.Insert(NewProcess(1, "/bin/a", nil, "/", ProcessOptions{}))
	table.Insert(NewProcess(2, "/bin/b", nil, "/", ProcessOptions{}))

	if _, err := table.Allocate(); Translate(err) != NoFreePID {
		t.Fatalf("expected NoFreePID once capacity is exhausted, got %v", err)
	}
}
