package lock

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// WaitSet is a compact mutable set of client ids, used by a Client to
// record who it is currently waiting for. It is written only by its
// owning Client, but read by other clients during deadlock detection — the
// detector tolerates staleness (see DeadlockDetector), so the internal
// mutex here exists only to keep the race detector quiet across the
// owner's writes and peers' reads, not to make the protocol itself
// blocking.
type WaitSet struct {
	mu  sync.RWMutex
	set *bitset.BitSet
}

// NewWaitSet creates an empty wait set sized for the given number of live
// clients.
func NewWaitSet(capacity uint) *WaitSet {
	return &WaitSet{set: bitset.New(capacity)}
}

// Reset clears the set and marks self as present, the self-edge used for
// liveness by the deadlock walk (see DeadlockDetector.markAsWaitingFor).
func (w *WaitSet) Reset(self int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.set.ClearAll()
	w.set.Set(uint(self))
}

// Clear empties the set entirely.
func (w *WaitSet) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.set.ClearAll()
}

// Add marks id as present.
func (w *WaitSet) Add(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.set.Set(uint(id))
}

// Contains reports whether id is present.
func (w *WaitSet) Contains(id int) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.set.Test(uint(id))
}

// Size returns the number of ids currently marked.
func (w *WaitSet) Size() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return int(w.set.Count())
}

// UnionInto ORs this set's bits into other. Used by SharedLock to fold a
// holder's wait set into a probing client's view of the graph.
func (w *WaitSet) UnionInto(other *WaitSet) {
	w.mu.RLock()
	snapshot := w.set.Clone()
	w.mu.RUnlock()

	other.mu.Lock()
	defer other.mu.Unlock()
	other.set.InPlaceUnion(snapshot)
}

// CopyTo copies this set's bits into a caller-supplied bitset, mirroring
// Client.CopyWaitListTo from the external contract.
func (w *WaitSet) CopyTo(dst *bitset.BitSet) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	dst.InPlaceUnion(w.set)
}

// Each invokes fn for every id present, skipping self so the deadlock walk
// doesn't follow the liveness self-edge.
func (w *WaitSet) Each(self int, fn func(id int)) {
	w.mu.RLock()
	snapshot := w.set.Clone()
	w.mu.RUnlock()

	for i, ok := snapshot.NextSet(0); ok; i, ok = snapshot.NextSet(i + 1) {
		if int(i) == self {
			continue
		}
		fn(int(i))
	}
}
