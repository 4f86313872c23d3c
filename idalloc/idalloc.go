// Package idalloc hands out monotonically increasing process ids.
package idalloc

import "sync"

// Allocator produces strictly increasing ids. The zero value is ready to
// use and starts at 0.
type Allocator struct {
	mu   sync.Mutex
	next uint64
}

// Restore resets the allocator to resume at saved, the value persisted in
// the dump. It must not be derived from max(id)+1 held by live records —
// ids handed to removed processes are never reissued (invariant I1).
func Restore(saved uint64) *Allocator {
	return &Allocator{next: saved}
}

// Next atomically returns the current counter value and increments it.
func (a *Allocator) Next() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	return id
}

// Peek returns the counter's current value without consuming it. Used when
// serializing the dump.
func (a *Allocator) Peek() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}
