/*
scope.go - Exclusive, scope-keyed build locks

PURPOSE:
  Two concurrent builds for the same (year, month, pool-or-post) scope
  must never interleave their delete-then-insert, or the month ends up a
  partially mixed slot set. Disjoint scopes proceed in parallel. The lock
  is a try-lock: a losing caller gets ErrScopeLocked and retries later
  rather than queueing silently.
*/
package roster

import (
	"fmt"
	"sync"
	"time"
)

func formatScopeKey(year int, month time.Month, kind string, id int64) string {
	if kind == "post" {
		return fmt.Sprintf("%04d-%02d|post:%d", year, int(month), id)
	}
	return fmt.Sprintf("%04d-%02d|pool", year, int(month))
}

// ScopeLocks is a registry of held build scopes. The zero value is not
// usable; call NewScopeLocks.
type ScopeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewScopeLocks creates an empty lock registry.
func NewScopeLocks() *ScopeLocks {
	return &ScopeLocks{held: make(map[string]bool)}
}

// Acquire takes the lock for key, or returns ErrScopeLocked if another
// build holds it.
func (l *ScopeLocks) Acquire(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return fmt.Errorf("scope %s: %w", key, ErrScopeLocked)
	}
	l.held[key] = true
	return nil
}

// Release frees the lock for key.
func (l *ScopeLocks) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
