package lock

// ExclusiveLock carries only the owning client's id. Every Client owns
// exactly one reusable ExclusiveLock instance (see Client.myExclusive) that
// it CAS-installs into as many LockTable slots as it holds exclusively;
// the instance itself carries no per-resource state, so this removes
// allocation from the exclusive fast path.
type ExclusiveLock struct {
	owner int
}

// NewExclusiveLock creates a reusable exclusive-lock token for owner.
func NewExclusiveLock(owner int) *ExclusiveLock {
	return &ExclusiveLock{owner: owner}
}

// Owner returns the client id holding this lock.
func (e *ExclusiveLock) Owner() int {
	return e.owner
}

func (e *ExclusiveLock) copyHolderWaitSetsInto(target *WaitSet, lookup clientLookup) {
	if c := lookup(e.owner); c != nil {
		c.waitSet.UnionInto(target)
	}
}

func (e *ExclusiveLock) detectDeadlock(probe int, lookup clientLookup) (blocker int, found bool) {
	return walkWaitGraph(probe, []int{e.owner}, lookup)
}
