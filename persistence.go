package kernel

import (
	"time"

	"go.uber.org/zap"
)

// Persistence implements the two directional operations of spec.md
// §4.2: pull_from_persist (refresh the in-memory view at startup) and
// push_to_persist (checkpoint pending writes). Both are asynchronous:
// the core never blocks the scheduler waiting on them, and completion is
// reported only through the logger.
type Persistence struct {
	fs  *CopyOnWriteFs
	log *zap.Logger
}

// NewPersistence wraps a CopyOnWriteFs with the async push/pull protocol.
func NewPersistence(fs *CopyOnWriteFs, log *zap.Logger) *Persistence {
	if log == nil {
		log = zap.NewNop()
	}
	return &Persistence{fs: fs, log: log.Named("persist")}
}

// Pull requests the store to refresh the in-memory view. Fired once at
// boot per spec.md §4.2; returns immediately, logging completion or
// failure from a background goroutine.
func (p *Persistence) Pull() {
	go func() {
		start := time.Now()
		if err := p.fs.Reset(); err != nil {
			p.log.Error("pull_from_persist failed", zap.Error(err))
			return
		}
		p.log.Info("pull_from_persist complete", zap.Duration("took", time.Since(start)))
	}()
}

// Push requests the store to durabilise pending writes. Returns
// immediately; the actual flush runs on a background goroutine so a slow
// backend never stalls a guest's forward progress.
func (p *Persistence) Push() {
	go func() {
		start := time.Now()
		if err := p.fs.Flush(); err != nil {
			p.log.Error("push_to_persist failed", zap.Error(err))
			return
		}
		p.log.Info("push_to_persist complete", zap.Duration("took", time.Since(start)))
	}()
}

// PushMirrors flushes the overlay to the primary backend and to any
// number of mirror backends from a single dirty-set snapshot
// (CopyOnWriteFs.FlushToMany), so the tracking sets are cleared only once
// all targets have a copy — flushing targets one at a time via
// concurrent Flush/FlushTo calls would let whichever finished first clear
// the shared modified/deleted sets out from under the others. Useful
// when a kernel is configured with a Redis primary and a local on-disk
// mirror for disaster recovery.
func (p *Persistence) PushMirrors(mirrors ...StorageBackend) error {
	targets := make([]StorageBackend, 0, len(mirrors)+1)
	targets = append(targets, p.fs.base)
	targets = append(targets, mirrors...)
	return p.fs.FlushToMany(targets...)
}

// PushSync flushes synchronously and returns the error, for callers (the
// bootstrap loader, tests, graceful shutdown) that must observe the
// outcome rather than fire-and-forget.
func (p *Persistence) PushSync() error {
	return p.fs.Flush()
}
