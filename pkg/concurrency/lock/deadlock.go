package lock

// DeadlockDetector walks the wait-for graph formed by every live client's
// published [WaitSet] to decide whether a client about to block would
// complete a cycle. It holds no state of its own beyond the lookup needed
// to resolve a client id to its live [Client] — the graph itself lives in
// the clients' wait sets, not in the detector.
type DeadlockDetector struct {
	lookup clientLookup
}

func newDeadlockDetector(lookup clientLookup) *DeadlockDetector {
	return &DeadlockDetector{lookup: lookup}
}

// markAsWaitingFor publishes probe's current wait targets: it resets
// probe's wait set to just itself, then folds in the wait sets of every
// client currently holding inst, so that a third client checking its own
// cycle later sees the transitive dependency through probe without having
// to re-walk the graph from scratch.
func (d *DeadlockDetector) markAsWaitingFor(probe int, waitSet *WaitSet, inst instance) {
	waitSet.Reset(probe)
	inst.copyHolderWaitSetsInto(waitSet, d.lookup)
}

// detectCycle reports whether probe can reach itself by following the
// wait-for edges rooted at inst's current holders. The first holder from
// which probe is reachable is returned as the blocker id.
func (d *DeadlockDetector) detectCycle(probe int, inst instance) (blocker int, found bool) {
	return inst.detectDeadlock(probe, d.lookup)
}

// resolve asks strategy whether self should abort in favor of the client
// with id blockerID, defaulting to [AbortYounger] if strategy is nil.
func (d *DeadlockDetector) resolve(strategy ResolutionStrategy, self *Client, blockerID int) bool {
	blocker := d.lookup(blockerID)
	if blocker == nil {
		return false
	}
	if strategy == nil {
		strategy = AbortYounger{}
	}
	return strategy.ShouldAbort(self, blocker)
}
