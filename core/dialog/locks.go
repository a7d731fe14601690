package dialog

import "sync"

// stripedLocks serializes registry mutations per user without a global
// lock. Two users may land on the same stripe; that only costs a little
// contention, never correctness.
type stripedLocks struct {
	stripes [64]sync.Mutex
}

func (l *stripedLocks) lock(id int64) *sync.Mutex {
	idx := uint64(id) % uint64(len(l.stripes))
	mu := &l.stripes[idx]
	mu.Lock()
	return mu
}
