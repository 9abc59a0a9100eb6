package pipeline

import (
	"sync"
	"time"
)

// FingerprintLocker serializes access to a natural key (source, source_id)
// or content hash across concurrent pipeline runs within one process, so two
// runs racing on the same item can't both pass the Deduplicator and double
// insert. Grounded on the teacher's in-memory map+mutex idiom used by
// infrastructure/cache and internal/app/plugin's Registry, rather than a
// distributed lock: this ingestion daemon runs the pipeline from a single
// process per §4.5 (the Scheduler is a singleton Service), so a
// process-local lock is sufficient.
type FingerprintLocker struct {
	mu    sync.Mutex
	held  map[string]struct{}
	waitc map[string]chan struct{}
}

// NewFingerprintLocker builds an empty locker.
func NewFingerprintLocker() *FingerprintLocker {
	return &FingerprintLocker{
		held:  make(map[string]struct{}),
		waitc: make(map[string]chan struct{}),
	}
}

// Acquire blocks until key is free or timeout elapses, returning a release
// function on success. A zero or negative timeout means "try once, don't
// wait".
func (l *FingerprintLocker) Acquire(key string, timeout time.Duration) (release func(), ok bool) {
	deadline := time.Now().Add(timeout)
	for {
		l.mu.Lock()
		if _, busy := l.held[key]; !busy {
			l.held[key] = struct{}{}
			l.mu.Unlock()
			return func() { l.release(key) }, true
		}
		wait, exists := l.waitc[key]
		if !exists {
			wait = make(chan struct{})
			l.waitc[key] = wait
		}
		l.mu.Unlock()

		if timeout <= 0 {
			return nil, false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		timer := time.NewTimer(remaining)
		select {
		case <-wait:
			timer.Stop()
		case <-timer.C:
			return nil, false
		}
	}
}

func (l *FingerprintLocker) release(key string) {
	l.mu.Lock()
	delete(l.held, key)
	wait, exists := l.waitc[key]
	if exists {
		delete(l.waitc, key)
	}
	l.mu.Unlock()
	if exists {
		close(wait)
	}
}
