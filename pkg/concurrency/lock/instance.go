package lock

// clientLookup resolves a client id to its live Client, or nil if the id is
// not currently checked out. DeadlockDetector and the lock instances use it
// to walk wait sets without holding a reference to the whole Manager.
type clientLookup func(id int) *Client

// instance is the tagged-union contract shared by SharedLock and
// ExclusiveLock for the operations the deadlock walk needs. Dispatch at the
// LockTable level is a type switch, not an interface method call, for
// everything acquire/release related (see Client), but the two deadlock
// helpers are common enough to share here.
type instance interface {
	copyHolderWaitSetsInto(target *WaitSet, lookup clientLookup)
	detectDeadlock(probe int, lookup clientLookup) (blocker int, found bool)
}

// walkWaitGraph performs the bounded transitive walk described in the
// package's deadlock-detection contract: starting from each id in starts,
// follow wait-set membership (client A's wait set containing client B's id
// means "A is waiting on a lock B holds") until probe is reached or the
// walk exhausts the live client population. The first starting id from
// which probe is reachable is returned as the blocker.
func walkWaitGraph(probe int, starts []int, lookup clientLookup) (blocker int, found bool) {
	visited := make(map[int]bool, len(starts)*2)

	var reaches func(id int) bool
	reaches = func(id int) bool {
		if visited[id] {
			return false
		}
		visited[id] = true

		c := lookup(id)
		if c == nil {
			return false
		}
		if c.waitSet.Contains(probe) {
			return true
		}

		result := false
		c.waitSet.Each(id, func(next int) {
			if !result && reaches(next) {
				result = true
			}
		})
		return result
	}

	for _, start := range starts {
		if reaches(start) {
			return start, true
		}
	}
	return 0, false
}
