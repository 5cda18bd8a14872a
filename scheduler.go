package kernel

import (
	"sync"

	"go.uber.org/zap"
)

// defaultYieldBudget bounds how many commands a running process executes
// before the scheduler forces a cooperative yield, implementing spec.md
// §5's "explicit cooperative yields inserted by the scheduler on long
// computations (implementation-defined heuristic, e.g. a bytecode-count
// budget)" at command granularity (the grain the embedded interpreter's
// ExecHandler exposes).
const defaultYieldBudget = 256

// Scheduler is the kernel's single-threaded cooperative scheduler: at most
// one process is running at any moment; the scheduler selects the next
// ready process round-robin by ascending PID, wrapping. None of the
// example repos implement a cooperative single-runner process scheduler,
// so this is built directly from the lifecycle state machine using only
// the standard library's sync primitives.
type Scheduler struct {
	mu         sync.Mutex
	table      *ProcessTable
	runningPID int
	lastPID    int
	log        *zap.Logger
}

// NewScheduler constructs a scheduler bound to a process table.
func NewScheduler(table *ProcessTable, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{table: table, log: log.Named("scheduler")}
}

// Admit transitions a starting process to ready (start(pid)) and attempts
// to advance the scheduler if no process currently holds the running slot.
func (s *Scheduler) Admit(pid int) {
	p, ok := s.table.Get(pid)
	if !ok {
		return
	}
	p.setState(StateReady)
	s.advance()
}

// advance picks the next ready process, ascending by PID from the process
// that most recently ran (wrapping), and grants it the running turn. A
// no-op if a process is already running or none are ready.
func (s *Scheduler) advance() {
	s.mu.Lock()
	if s.runningPID != 0 {
		s.mu.Unlock()
		return
	}
	procs := s.table.Enumerate() // ascending by PID
	n := len(procs)
	if n == 0 {
		s.mu.Unlock()
		return
	}

	startIdx := 0
	for i, p := range procs {
		if p.PID > s.lastPID {
			startIdx = i
			break
		}
		startIdx = 0
	}

	var chosen *Process
	for i := 0; i < n; i++ {
		p := procs[(startIdx+i)%n]
		if p.State() == StateReady {
			chosen = p
			break
		}
	}
	if chosen == nil {
		s.mu.Unlock()
		return
	}
	s.runningPID = chosen.PID
	s.lastPID = chosen.PID
	s.mu.Unlock()

	s.log.Debug("scheduler granting turn", zap.Int("pid", chosen.PID))
	chosen.GrantTurn()
}

// Yield voluntarily returns a running process to ready (a budget-exhaustion
// yield, spec.md §5) and blocks the calling goroutine until the scheduler
// grants it another turn.
func (s *Scheduler) Yield(pid int) {
	p, ok := s.table.Get(pid)
	if !ok {
		return
	}
	p.setState(StateReady)
	s.releaseRunning(pid)
	s.advance()
	p.WaitTurn()
}

// Suspend blocks a running process (a pipe-read or wait suspension point,
// spec.md §5) until some other call resumes it via Wake, then reclaims a
// running turn.
func (s *Scheduler) Suspend(pid int) {
	p, ok := s.table.Get(pid)
	if !ok {
		return
	}
	s.releaseRunning(pid)
	s.advance()
	p.Sleep()
	p.WaitTurn()
}

// Wake resumes a sleeping process (bytes became available, its wait target
// terminated) into ready and attempts to advance the scheduler.
func (s *Scheduler) Wake(pid int) {
	p, ok := s.table.Get(pid)
	if !ok {
		return
	}
	p.Wake()
	s.advance()
}

// Terminate moves a process out of the running slot (if it held it) on
// exit/kill and attempts to advance the scheduler to the next ready
// process.
func (s *Scheduler) Terminate(pid int) {
	s.releaseRunning(pid)
	s.advance()
}

func (s *Scheduler) releaseRunning(pid int) {
	s.mu.Lock()
	if s.runningPID == pid {
		s.runningPID = 0
	}
	s.mu.Unlock()
}

// yieldCounter tracks a running process's command budget; runner.go
// allocates one per process and decrements it on every executed command.
type yieldCounter struct {
	remaining int
}

func newYieldCounter() *yieldCounter { return &yieldCounter{remaining: defaultYieldBudget} }

// tick decrements the budget, reporting whether the process should yield
// now. Resets the budget when it fires.
func (c *yieldCounter) tick() bool {
	c.remaining--
	if c.remaining <= 0 {
		c.remaining = defaultYieldBudget
		return true
	}
	return false
}
