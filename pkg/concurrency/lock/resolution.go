package lock

// ResolutionStrategy picks the victim when the DeadlockDetector finds a
// cycle. Given the same two clients on both sides of a detected cycle,
// exactly one side's ShouldAbort call must return true — asymmetry is what
// avoids a mutual-abort livelock where both sides retreat and both retry
// into the same cycle again.
type ResolutionStrategy interface {
	ShouldAbort(self, blocker *Client) bool
}

// AbortYounger aborts whichever client has the larger id — the more
// recently checked-out, "younger" transaction — matching the default
// policy of the lock manager this package generalizes. It is inherently
// asymmetric: for a given unordered pair exactly one id is larger.
type AbortYounger struct{}

// ShouldAbort implements ResolutionStrategy.
func (AbortYounger) ShouldAbort(self, blocker *Client) bool {
	return self.id > blocker.id
}

// AlwaysAbortSelf makes every client that detects a cycle abort itself,
// regardless of who it cycles with. It does not pick exactly one side: the
// blocker's own ShouldAbort call against self also returns true, so when
// both sides detect the cycle, both abort. It suits workloads that always
// retry the caller anyway and prefer immediate unwind to picking a winner.
type AlwaysAbortSelf struct{}

// ShouldAbort implements ResolutionStrategy.
func (AlwaysAbortSelf) ShouldAbort(_, _ *Client) bool {
	return true
}

// Random flips a coin derived from both client ids, so both sides of the
// pair compute the same flip and therefore agree on exactly one aborting
// side.
type Random struct{}

// ShouldAbort implements ResolutionStrategy.
func (Random) ShouldAbort(self, blocker *Client) bool {
	lo, hi := self.id, blocker.id
	if lo > hi {
		lo, hi = hi, lo
	}
	// A cheap, deterministic mix of the ordered pair; both clients derive
	// the same bit, and the loser is whichever id is numerically larger on
	// an even mix, smaller on an odd one.
	mix := (lo*31 + hi*17) % 2
	if mix == 0 {
		return self.id == hi
	}
	return self.id == lo
}

// Custom adapts a plain function to ResolutionStrategy, for callers who
// want a bespoke policy (e.g. fewest-held-locks-wins) without declaring a
// named type.
type Custom func(self, blocker *Client) bool

// ShouldAbort implements ResolutionStrategy.
func (f Custom) ShouldAbort(self, blocker *Client) bool {
	return f(self, blocker)
}
