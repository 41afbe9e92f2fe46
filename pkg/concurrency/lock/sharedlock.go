package lock

import "sync"

// noUpdateHolder marks SharedLock.updateHolder as unset; client ids are
// non-negative, so -1 is a safe sentinel.
const noUpdateHolder = -1

// SharedLock is the multi-holder lock variant placed into a LockTable slot.
// Holders is non-empty for as long as the instance is resident in the
// table; the last Release call to empty it marks the lock dead and the
// caller is responsible for removing it from the table.
type SharedLock struct {
	mu           sync.Mutex
	holders      map[int]int // clientID -> local hold count on this instance
	updateHolder int         // clientID, or noUpdateHolder
	dead         bool
}

// NewSharedLock creates a SharedLock already held once by owner.
func NewSharedLock(owner int) *SharedLock {
	return &SharedLock{
		holders:      map[int]int{owner: 1},
		updateHolder: noUpdateHolder,
	}
}

// Acquire adds client to the holder set. It fails if the lock has gone dead
// (raced with the final Release) or if a different client holds the update
// reservation — a pending upgrade blocks new shared acquirers.
func (s *SharedLock) Acquire(client int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dead {
		return false
	}
	if s.updateHolder != noUpdateHolder && s.updateHolder != client {
		return false
	}

	s.holders[client]++
	return true
}

// Release decrements client's hold count, removing it from the holder set
// once it reaches zero. Returns true if the holder set is now empty — the
// caller must then remove this instance from the LockTable.
func (s *SharedLock) Release(client int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.holders[client]--
	if s.holders[client] <= 0 {
		delete(s.holders, client)
	}

	if len(s.holders) == 0 {
		s.dead = true
		return true
	}
	return false
}

// TryAcquireUpdateLock reserves the update slot for client, failing if it
// is already held by anyone (including client itself — the caller tracks
// whether it already holds it).
func (s *SharedLock) TryAcquireUpdateLock(client int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateHolder != noUpdateHolder {
		return false
	}
	s.updateHolder = client
	return true
}

// ReleaseUpdateLock clears the update slot unconditionally.
func (s *SharedLock) ReleaseUpdateLock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateHolder = noUpdateHolder
}

// CleanUpdateHolder clears a lingering update reservation. Called from
// Client.ReleaseShared after a lock dies so a dead instance doesn't keep a
// client id referenced.
func (s *SharedLock) CleanUpdateHolder() {
	s.ReleaseUpdateLock()
}

// IsUpdateLock reports whether any client currently holds the update
// reservation.
func (s *SharedLock) IsUpdateLock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateHolder != noUpdateHolder
}

// NumberOfHolders returns the current holder count. The upgrade spin-wait
// itself checks sole-holder status through soleHolderIs.
func (s *SharedLock) NumberOfHolders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.holders)
}

// soleHolderIs reports whether client is the only holder, which is the
// precondition for in-place promotion to Exclusive.
func (s *SharedLock) soleHolderIs(client int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.holders) == 1 && s.holders[client] > 0
}

func (s *SharedLock) holderIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.holders))
	for id := range s.holders {
		ids = append(ids, id)
	}
	return ids
}

// copyHolderWaitSetsInto ORs each current holder's wait set into target.
// Best-effort: a holder that concurrently releases between the snapshot
// here and the caller's deadlock check is tolerated because detectDeadlock
// is re-verified before a DeadlockError is ever raised.
func (s *SharedLock) copyHolderWaitSetsInto(target *WaitSet, lookup clientLookup) {
	for _, id := range s.holderIDs() {
		if c := lookup(id); c != nil {
			c.waitSet.UnionInto(target)
		}
	}
}

// detectDeadlock walks the wait-for graph starting from this lock's current
// holders, looking for a path back to probe.
func (s *SharedLock) detectDeadlock(probe int, lookup clientLookup) (blocker int, found bool) {
	return walkWaitGraph(probe, s.holderIDs(), lookup)
}
