// Package lock implements a client-side, re-entrant lock manager for
// arbitrating logical access to resources identified by a
// (resource-type, resource-id) pair.
//
// # Overview
//
// Callers obtain a [Client] from a [Manager] (one per transaction) and use
// it to acquire shared and exclusive locks. The client tracks reentrancy
// locally so that repeated acquires of the same resource by the same client
// only touch the global lock table once. Deadlocks are detected
// cooperatively: every waiting client publishes who it is waiting for into a
// compact bitset, and the [DeadlockDetector] walks those bitsets
// transitively before the client is allowed to block.
//
// Two lock modes are supported:
//
//   - [SharedLock]    — required to read a resource; compatible with other
//     shared locks.
//   - [ExclusiveLock] — required to write a resource; incompatible with all
//     other locks.
//
// A client holding a shared lock may upgrade it to exclusive (subject to a
// grace period that favors readers at low contention), and a client holding
// both will downgrade exclusive back to shared in place when the exclusive
// reference count reaches zero.
//
// # Components
//
// [Manager] is the construction root: it owns one [LockTable] shard array
// per resource type and vends [Client] instances from a [ClientPool].
//
//   - [LockTable]       — per-type concurrent map from resource id to the
//     lock instance currently resident for that resource.
//   - [SharedLock] / [ExclusiveLock] — the two lock-instance variants placed
//     into the table.
//   - [Client]          — per-transaction agent: reentrancy counters, wait
//     set, lifecycle state machine.
//   - [DeadlockDetector] / [ResolutionStrategy] — wait-for graph walk and
//     victim tie-break policy.
//
// # Acquisition flow
//
// When [Client.AcquireShared] or [Client.AcquireExclusive] is called for a
// resource id:
//
//  1. If the client already holds a sufficient local count, return.
//  2. Otherwise contend on the [LockTable] entry for that resource.
//  3. If it cannot be granted immediately, record the wait (advancing the
//     client's [WaitSet]) and run the deadlock check before blocking.
//  4. Apply the resource type's [WaitStrategy] and retry, until granted,
//     until [Client.Close] / [Client.Stop] observes the client has been
//     stopped, or until the configured acquisition timeout elapses.
//
// # Invariants
//
//   - A resource's table entry is never simultaneously an ExclusiveLock and
//     a SharedLock.
//   - A SharedLock's holder set is non-empty for as long as it is resident
//     in the table; emptying it removes the entry.
//   - At most one update-lock holder per SharedLock at any time.
//   - Locks may be upgraded shared→exclusive and downgraded exclusive→shared
//     in place, without leaving a window where the table entry is absent.
//   - Past a grace period, an exclusive acquirer contending with a resident
//     SharedLock — whether or not it already holds that lock shared —
//     reserves its update slot and promotes in place rather than waiting
//     indefinitely for every reader to leave on its own. The grace period
//     applies uniformly; a reentrant upgrader gets no exemption, so it can't
//     starve other readers just by arriving first.
//   - Two clients racing to upgrade the same SharedLock are caught by the
//     same deadlock detection the rest of the package uses: the losing side
//     of the update-lock reservation keeps publishing its wait-for edges
//     instead of silently backing off, so the cycle surfaces as a
//     [lockerr.DeadlockError] rather than a race.
//   - Re-entrancy counters are overflow-checked; incrementing one past
//     [math.MaxInt] is a fatal programming error, not a recoverable one.
package lock
