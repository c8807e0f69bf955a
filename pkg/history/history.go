// Package history keeps a bounded undo/redo log of state snapshots.
package history

import "sync"

// DefaultLimit is the number of undo steps kept when no limit is given.
const DefaultLimit = 100

// History stores prior snapshots of a state value. Snapshots are stored as
// given, so T should be immutable or copied by the caller.
type History[T any] struct {
	mu     sync.Mutex
	past   []T
	future []T
	limit  int
}

// New creates a history keeping at most limit undo steps. A limit <= 0
// selects DefaultLimit.
func New[T any](limit int) *History[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &History[T]{limit: limit}
}

// Record pushes the state that existed before a mutation. Any redo entries
// are discarded, and the oldest entry is evicted once the limit is reached.
func (h *History[T]) Record(prev T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.past = append(h.past, prev)
	if over := len(h.past) - h.limit; over > 0 {
		var zero T
		for i := 0; i < over; i++ {
			h.past[i] = zero
		}
		h.past = append([]T(nil), h.past[over:]...)
	}
	h.future = nil
}

// Undo returns the previous state and remembers current for Redo.
func (h *History[T]) Undo(current T) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero T
	if len(h.past) == 0 {
		return zero, false
	}
	prev := h.past[len(h.past)-1]
	h.past[len(h.past)-1] = zero
	h.past = h.past[:len(h.past)-1]
	h.future = append(h.future, current)
	return prev, true
}

// Redo returns the state undone most recently and remembers current for Undo.
func (h *History[T]) Redo(current T) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero T
	if len(h.future) == 0 {
		return zero, false
	}
	next := h.future[len(h.future)-1]
	h.future[len(h.future)-1] = zero
	h.future = h.future[:len(h.future)-1]
	h.past = append(h.past, current)
	return next, true
}

func (h *History[T]) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past) > 0
}

func (h *History[T]) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future) > 0
}

// Len returns the number of undo steps available.
func (h *History[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past)
}

// Limit returns the configured capacity.
func (h *History[T]) Limit() int {
	return h.limit
}

// Clear drops every undo and redo entry.
func (h *History[T]) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.past = nil
	h.future = nil
}
