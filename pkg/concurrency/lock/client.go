package lock

import (
	"math"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"

	"lockmgr/pkg/lockerr"
	"lockmgr/pkg/logging"
)

// upgradeGracePeriod is how many failed exclusive-acquire attempts against a
// contended resource a client tolerates before it starts trying to upgrade a
// resident SharedLock in place. It applies uniformly to a client that
// already holds the resource shared and to one that doesn't — neither gets
// an exemption, so a reader that happens to want a brief exclusive window
// doesn't starve other readers just by arriving first.
const upgradeGracePeriod = 50

// Client is a single re-entrant lock-acquisition session. A Client is
// checked out from a ClientPool, used for the duration of one logical
// transaction, and returned to the pool once every lock it took has been
// released. Its hold counts are plain maps, so a Client is driven by one
// goroutine at a time; only Stop may be called from another goroutine, and
// a Client stopped while a call is in flight rejects new acquires rather
// than blocking them indefinitely.
type Client struct {
	id           int
	diagnosticID uuid.UUID

	table  *LockTable
	config *Config
	lookup clientLookup

	state clientState

	// sharedCounts[typeID][resourceID] is this client's own re-entrant hold
	// count on that resource's SharedLock. exclusiveCounts is the analogous
	// table for ExclusiveLock. Both are local bookkeeping only — the
	// authoritative holder state lives in the LockTable entry itself.
	sharedCounts    []map[int64]int
	exclusiveCounts []map[int64]int

	// myExclusive is this client's single reusable ExclusiveLock token,
	// installed into as many LockTable slots as it holds exclusively.
	myExclusive *ExclusiveLock

	waitSet  *WaitSet
	detector *DeadlockDetector
}

func newClient(id int, table *LockTable, config *Config, lookup clientLookup) *Client {
	c := &Client{
		id:              id,
		table:           table,
		config:          config,
		lookup:          lookup,
		sharedCounts:    make([]map[int64]int, config.TypeCount),
		exclusiveCounts: make([]map[int64]int, config.TypeCount),
		waitSet:         NewWaitSet(256),
		detector:        newDeadlockDetector(lookup),
	}
	c.myExclusive = NewExclusiveLock(id)
	c.reset()
	return c
}

// reset restores a recycled Client to its just-checked-out state.
func (c *Client) reset() {
	c.diagnosticID = uuid.New()
	c.state.reset()
	c.waitSet.Reset(c.id)
	for i := range c.sharedCounts {
		c.sharedCounts[i] = make(map[int64]int)
		c.exclusiveCounts[i] = make(map[int64]int)
	}
}

// LockSessionID returns the client id this session was checked out under.
func (c *Client) LockSessionID() int {
	return c.id
}

// DiagnosticID returns a fresh identifier minted each time this Client is
// checked out, suited for correlating log lines across a pooled id that
// gets reused across transactions.
func (c *Client) DiagnosticID() uuid.UUID {
	return c.diagnosticID
}

// WaitListSize reports how many client ids this client is currently
// recorded as (transitively) waiting behind. Racy by design: it reflects a
// snapshot that can change the instant after it is read.
func (c *Client) WaitListSize() int {
	return c.waitSet.Size()
}

// IsWaitingFor reports whether other is in this client's wait set.
func (c *Client) IsWaitingFor(other int) bool {
	return c.waitSet.Contains(other)
}

// CopyWaitListTo ORs this client's current wait set into dst, for callers
// that want to inspect the wait-for graph externally (e.g. a diagnostics
// endpoint rendering it) without reaching into package internals.
func (c *Client) CopyWaitListTo(dst *bitset.BitSet) {
	c.waitSet.CopyTo(dst)
}

// ActiveLocks returns a snapshot of every resource currently held by this
// client, shared and exclusive alike.
func (c *Client) ActiveLocks() []ActiveLock {
	var out []ActiveLock
	for typeID, m := range c.sharedCounts {
		for resourceID, n := range m {
			if n > 0 {
				out = append(out, ActiveLock{Type: typeOf(typeID), ResourceID: resourceID, Mode: Shared})
			}
		}
	}
	for typeID, m := range c.exclusiveCounts {
		for resourceID, n := range m {
			if n > 0 {
				out = append(out, ActiveLock{Type: typeOf(typeID), ResourceID: resourceID, Mode: Exclusive})
			}
		}
	}
	return out
}

// typeOf wraps a dense type id back into a minimal ResourceType for
// reporting purposes; callers that need their own ResourceType values back
// should match on ResourceID and the original type they requested with.
type rawType int

func (r rawType) TypeID() int    { return int(r) }
func (r rawType) String() string { return "" }

func typeOf(id int) ResourceType { return rawType(id) }

// AcquireShared blocks until client holds a shared lock on the resource, or
// returns an error on timeout, deadlock, or a stopped client. Re-entrant:
// a client that already holds the resource (shared or exclusive) simply
// bumps its local count.
func (c *Client) AcquireShared(rt ResourceType, resourceID int64) error {
	return c.acquire(rt, resourceID, Shared)
}

// AcquireExclusive blocks until client holds an exclusive lock on the
// resource. If client already holds it shared, this is an in-place
// promotion: once the exclusive-acquire retry loop's grace period elapses,
// it reserves the update slot and waits until it is the sole holder, then
// swaps the table slot to an ExclusiveLock without ever vacating it.
func (c *Client) AcquireExclusive(rt ResourceType, resourceID int64) error {
	return c.acquire(rt, resourceID, Exclusive)
}

// TryShared makes one non-blocking attempt to acquire a shared lock,
// returning false on any contention (including a pending update
// reservation held by another client) rather than waiting.
func (c *Client) TryShared(rt ResourceType, resourceID int64) bool {
	if !c.state.enter() {
		return false
	}
	defer c.state.exit()

	typeID := rt.TypeID()
	if c.heldLocally(typeID, resourceID, Shared) {
		return c.bumpLocal(typeID, resourceID, Shared) == nil
	}
	if c.exclusiveCounts[typeID][resourceID] > 0 {
		return c.incrementShared(typeID, resourceID) == nil
	}

	ok, err := c.tryInstall(rt, resourceID, Shared)
	if err != nil || !ok {
		return false
	}
	return c.bumpLocal(typeID, resourceID, Shared) == nil
}

// TryExclusive makes one non-blocking attempt to acquire an exclusive
// lock, returning false on any contention rather than waiting. If the
// caller already holds the resource shared, this makes a single
// non-blocking promotion attempt: it reserves the update slot (causing a
// concurrent TryShared on the same resource to see it and fail) and
// succeeds only if this client is immediately the sole holder, without
// ever spinning for the grace period AcquireExclusive would.
func (c *Client) TryExclusive(rt ResourceType, resourceID int64) bool {
	if !c.state.enter() {
		return false
	}
	defer c.state.exit()

	typeID := rt.TypeID()
	if c.heldLocally(typeID, resourceID, Exclusive) {
		return c.bumpLocal(typeID, resourceID, Exclusive) == nil
	}
	if c.sharedCounts[typeID][resourceID] > 0 {
		return c.tryPromoteOnce(rt, resourceID)
	}

	ok, err := c.tryInstall(rt, resourceID, Exclusive)
	if err != nil || !ok {
		return false
	}
	return c.bumpLocal(typeID, resourceID, Exclusive) == nil
}

// tryPromoteOnce is the non-blocking counterpart to the upgrade protocol: it
// reserves the update slot and checks sole-holder status exactly once,
// releasing the reservation again immediately on any failure rather than
// spinning.
func (c *Client) tryPromoteOnce(rt ResourceType, resourceID int64) bool {
	typeID := rt.TypeID()
	existing := c.table.Get(typeID, resourceID)
	shared, ok := existing.(*SharedLock)
	if !ok {
		return false
	}
	if !shared.TryAcquireUpdateLock(c.id) {
		return false
	}
	if !shared.soleHolderIs(c.id) {
		shared.ReleaseUpdateLock()
		return false
	}
	c.table.Replace(typeID, resourceID, c.myExclusive)
	shared.ReleaseUpdateLock()
	c.waitSet.Reset(c.id)
	return c.incrementExclusive(typeID, resourceID) == nil
}

func (c *Client) acquire(rt ResourceType, resourceID int64, mode LockMode) error {
	const op = "Client.acquire"
	if !c.state.enter() {
		return lockerr.NewLockClientStoppedError(op, c.id)
	}
	defer c.state.exit()

	typeID := rt.TypeID()
	if c.heldLocally(typeID, resourceID, mode) {
		return c.bumpLocal(typeID, resourceID, mode)
	}
	if mode == Shared && c.exclusiveCounts[typeID][resourceID] > 0 {
		// Already exclusive: shared is implied, no-op beyond bookkeeping so
		// release counts stay balanced against whichever mode is released
		// first.
		return c.incrementShared(typeID, resourceID)
	}

	deadline := c.deadline()
	strategy := c.config.waitStrategyFor(typeID)
	var event WaitEvent

	for tries := 0; ; tries++ {
		ok, err := c.tryInstall(rt, resourceID, mode)
		if err != nil {
			if event != nil {
				event.Close()
			}
			return err
		}
		if ok {
			if event != nil {
				event.Close()
			}
			c.waitSet.Reset(c.id)
			return c.bumpLocal(typeID, resourceID, mode)
		}

		// The grace period applies whether or not this client already
		// holds the resource shared (see upgradeGracePeriod). A false
		// return with no error means the upgrade attempt just didn't land
		// this round — fall through to the normal wait below rather than
		// treating it as fatal, so a client that loses the race keeps
		// publishing its wait-for edges and can still be caught by the
		// deadlock detector.
		if mode == Exclusive && tries >= upgradeGracePeriod {
			if shared, isShared := c.table.Get(typeID, resourceID).(*SharedLock); isShared {
				upgraded, err := c.tryUpgradeSharedToExclusive(rt, resourceID, shared, deadline)
				if err != nil {
					if event != nil {
						event.Close()
					}
					return err
				}
				if upgraded {
					if event != nil {
						event.Close()
					}
					c.waitSet.Reset(c.id)
					return c.incrementExclusive(typeID, resourceID)
				}
			}
		}

		if event == nil {
			event = c.tracer().WaitForLock(c.id, mode == Exclusive, typeID, resourceID)
		}

		if err := c.checkDeadline(op, typeID, resourceID, deadline); err != nil {
			event.Close()
			return err
		}
		if err := c.checkDeadlock(rt, resourceID); err != nil {
			event.Close()
			return err
		}
		if c.state.isStopped() {
			event.Close()
			return lockerr.NewLockClientStoppedError(op, c.id)
		}

		strategy.Apply(tries)
	}
}

// tryInstall makes one attempt to either install a fresh lock instance or
// join an existing compatible one. It does not block.
func (c *Client) tryInstall(rt ResourceType, resourceID int64, mode LockMode) (bool, error) {
	typeID := rt.TypeID()

	for {
		existing := c.table.Get(typeID, resourceID)
		if existing == nil {
			fresh := c.newInstance(mode)
			if prev := c.table.PutIfAbsent(typeID, resourceID, fresh); prev != nil {
				existing = prev
				continue
			}
			return true, nil
		}

		switch inst := existing.(type) {
		case *SharedLock:
			if mode == Shared {
				return inst.Acquire(c.id), nil
			}
			return false, nil
		case *ExclusiveLock:
			return false, nil
		default:
			return false, nil
		}
	}
}

func (c *Client) newInstance(mode LockMode) any {
	if mode == Exclusive {
		return c.myExclusive
	}
	return NewSharedLock(c.id)
}

// tryUpgradeSharedToExclusive is the upgrade protocol invoked once the
// exclusive-acquire retry loop's grace period has elapsed and the resident
// instance is a SharedLock. If this client does not already hold it shared,
// it joins first; if anything after that fails, the freshly-joined hold is
// released again so a failed upgrade attempt never leaves a stray reference
// behind. A client that already held the lock shared keeps it regardless of
// outcome — that hold was always legitimately its own.
func (c *Client) tryUpgradeSharedToExclusive(rt ResourceType, resourceID int64, shared *SharedLock, deadline time.Time) (bool, error) {
	typeID := rt.TypeID()
	holdsSharedLock := c.sharedCounts[typeID][resourceID] > 0
	if !holdsSharedLock {
		if !shared.Acquire(c.id) {
			return false, nil
		}
		if err := c.incrementShared(typeID, resourceID); err != nil {
			shared.Release(c.id)
			return false, err
		}
	}

	ok, err := c.tryUpgradeToExclusiveWithShareLockHeld(rt, resourceID, shared, deadline)
	if holdsSharedLock {
		return ok, err
	}
	if ok && err == nil {
		return true, nil
	}
	if releaseErr := c.ReleaseShared(rt, resourceID); releaseErr != nil && err == nil {
		err = releaseErr
	}
	return false, err
}

// tryUpgradeToExclusiveWithShareLockHeld reserves shared's update slot and
// spins until this client becomes the sole holder, swapping the table slot
// to an ExclusiveLock once it does. The table entry's SharedLock identity is
// what lets other clients see the pending upgrade (via IsUpdateLock) without
// the slot ever going absent. Every iteration re-publishes this client's
// wait-for edges and re-checks for a cycle, which is what lets two clients
// racing to upgrade the same resource surface as a genuine deadlock instead
// of one of them just losing a CAS and spinning forever.
func (c *Client) tryUpgradeToExclusiveWithShareLockHeld(rt ResourceType, resourceID int64, shared *SharedLock, deadline time.Time) (bool, error) {
	const op = "Client.promote"
	typeID := rt.TypeID()

	if !shared.TryAcquireUpdateLock(c.id) {
		return false, nil
	}

	strategy := c.config.waitStrategyFor(typeID)
	var event WaitEvent
	defer func() {
		if event != nil {
			event.Close()
		}
	}()

	for tries := 0; ; tries++ {
		if shared.soleHolderIs(c.id) {
			// The shared hold count is left untouched: it still represents
			// how many ReleaseShared calls this client owes, and will drive
			// an in-place downgrade back to SharedLock once exclusiveCounts
			// returns to zero.
			c.table.Replace(typeID, resourceID, c.myExclusive)
			shared.ReleaseUpdateLock()
			return true, nil
		}

		if err := c.checkDeadline(op, typeID, resourceID, deadline); err != nil {
			shared.ReleaseUpdateLock()
			c.waitSet.Reset(c.id)
			return false, err
		}
		if c.state.isStopped() {
			shared.ReleaseUpdateLock()
			c.waitSet.Reset(c.id)
			return false, lockerr.NewLockClientStoppedError(op, c.id)
		}

		if event == nil {
			event = c.tracer().WaitForLock(c.id, true, typeID, resourceID)
		}
		strategy.Apply(tries)

		if err := c.checkDeadlock(rt, resourceID); err != nil {
			// checkDeadlock already cleared the wait list before raising:
			// only the update slot needs releasing here.
			shared.ReleaseUpdateLock()
			return false, err
		}
	}
}

// ReleaseShared drops one level of local re-entrant hold on a shared lock,
// releasing the resource globally once the local count reaches zero.
func (c *Client) ReleaseShared(rt ResourceType, resourceID int64) error {
	typeID := rt.TypeID()
	if c.sharedCounts[typeID][resourceID] <= 0 {
		return lockerr.NewIllegalStateError("Client.ReleaseShared", "release of a lock not held")
	}
	c.sharedCounts[typeID][resourceID]--
	if c.sharedCounts[typeID][resourceID] > 0 {
		return nil
	}
	delete(c.sharedCounts[typeID], resourceID)

	if c.exclusiveCounts[typeID][resourceID] > 0 {
		// Still held exclusively; nothing to release globally yet.
		return nil
	}

	existing := c.table.Get(typeID, resourceID)
	shared, ok := existing.(*SharedLock)
	if !ok {
		return nil
	}
	if shared.Release(c.id) {
		shared.CleanUpdateHolder()
		c.table.CompareAndRemove(typeID, resourceID, shared)
	}
	return nil
}

// ReleaseExclusive drops one level of local re-entrant hold on an
// exclusive lock, releasing the resource globally once the local count
// reaches zero.
func (c *Client) ReleaseExclusive(rt ResourceType, resourceID int64) error {
	typeID := rt.TypeID()
	if c.exclusiveCounts[typeID][resourceID] <= 0 {
		return lockerr.NewIllegalStateError("Client.ReleaseExclusive", "release of a lock not held")
	}
	c.exclusiveCounts[typeID][resourceID]--
	if c.exclusiveCounts[typeID][resourceID] > 0 {
		return nil
	}
	delete(c.exclusiveCounts[typeID], resourceID)

	if c.sharedCounts[typeID][resourceID] > 0 {
		// Downgrade in place: the slot stays resident as a fresh SharedLock
		// held by this client alone, so waiters never observe a gap.
		downgraded := NewSharedLock(c.id)
		c.table.Replace(typeID, resourceID, downgraded)
		return nil
	}

	c.table.CompareAndRemove(typeID, resourceID, c.myExclusive)
	return nil
}

// Stop marks the client stopped, so new acquire calls fail immediately and
// in-flight ones observe the stop on their next poll, then waits (polling
// every 10ms) until those in-flight calls have exited.
func (c *Client) Stop() {
	c.state.stop()
	for c.state.hasActive() {
		time.Sleep(10 * time.Millisecond)
	}
}

// Close releases every lock this client currently holds; it blocks until
// any acquire calls already in flight have exited. It leaves the lifecycle
// state as it is: a stopped client stays stopped until the pool resets it
// at its next checkout. Callers normally call Stop first if they want to
// prevent new calls from starting during the drain.
func (c *Client) Close() error {
	for c.state.hasActive() {
		time.Sleep(time.Millisecond)
	}

	for typeID, m := range c.exclusiveCounts {
		for resourceID := range m {
			rt := typeOf(typeID)
			for c.exclusiveCounts[typeID][resourceID] > 0 {
				if err := c.ReleaseExclusive(rt, resourceID); err != nil {
					return err
				}
			}
		}
	}
	for typeID, m := range c.sharedCounts {
		for resourceID := range m {
			rt := typeOf(typeID)
			for c.sharedCounts[typeID][resourceID] > 0 {
				if err := c.ReleaseShared(rt, resourceID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// StopAndRelease stops the client, releases everything it held, and logs
// the reason the caller is tearing it down (typically an aborted
// transaction). The original error is returned unchanged so callers can
// keep propagating it.
func (c *Client) StopAndRelease(cause error) error {
	logging.WithClient(c.id).Warn("stopping client and releasing locks", "cause", cause)
	c.Stop()
	if err := c.Close(); err != nil {
		return err
	}
	return cause
}

func (c *Client) heldLocally(typeID int, resourceID int64, mode LockMode) bool {
	if mode == Shared {
		return c.sharedCounts[typeID][resourceID] > 0
	}
	return c.exclusiveCounts[typeID][resourceID] > 0
}

func (c *Client) bumpLocal(typeID int, resourceID int64, mode LockMode) error {
	if mode == Shared {
		return c.incrementShared(typeID, resourceID)
	}
	return c.incrementExclusive(typeID, resourceID)
}

func (c *Client) incrementShared(typeID int, resourceID int64) error {
	return incrementCounter("Client.acquire", c.sharedCounts[typeID], resourceID)
}

func (c *Client) incrementExclusive(typeID int, resourceID int64) error {
	return incrementCounter("Client.acquire", c.exclusiveCounts[typeID], resourceID)
}

// incrementCounter bumps m[key], raising an IllegalStateError rather than
// silently wrapping if the reentrancy count is already at math.MaxInt —
// mirroring Math.incrementExact in the system this package is modeled on,
// where an overflowing counter is treated as a fatal programming error, not
// a recoverable condition.
func incrementCounter(op string, m map[int64]int, key int64) error {
	if m[key] == math.MaxInt {
		return lockerr.NewIllegalStateError(op, "lock hold counter overflow")
	}
	m[key]++
	return nil
}

func (c *Client) deadline() time.Time {
	if c.config.AcquisitionTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.config.AcquisitionTimeout)
}

func (c *Client) checkDeadline(op string, typeID int, resourceID int64, deadline time.Time) error {
	if deadline.IsZero() || time.Now().Before(deadline) {
		return nil
	}
	return lockerr.NewAcquireLockTimeoutError(op, typeID, resourceID, c.config.AcquisitionTimeout)
}

// checkDeadlock publishes this client's current wait targets into its wait
// set and walks the wait-for graph rooted at the lock instance currently
// resident for (typeID, resourceID). If the walk finds a path back to this
// client, the configured ResolutionStrategy decides whether this client
// aborts; if it does not, this call returns nil and the blocker is left to
// reach its own decision when it next checks. Before raising, the walk is re-run to rule out a
// false positive from a holder that released concurrently with the first
// snapshot — the WaitSet and SharedLock mutexes each walk step takes are
// themselves the memory fence that makes the second walk see the release —
// and the wait set is cleared (not just reset to the self-edge) so the
// diagnostic state left behind doesn't claim this client is still waiting
// on anything.
func (c *Client) checkDeadlock(rt ResourceType, resourceID int64) error {
	typeID := rt.TypeID()
	existing := c.table.Get(typeID, resourceID)
	inst, ok := existing.(instance)
	if !ok {
		return nil
	}

	c.detector.markAsWaitingFor(c.id, c.waitSet, inst)
	blockerID, found := c.detector.detectCycle(c.id, inst)
	if !found {
		return nil
	}

	if !c.detector.resolve(c.config.Resolution, c, blockerID) {
		return nil
	}

	c.detector.markAsWaitingFor(c.id, c.waitSet, inst)
	if _, stillFound := c.detector.detectCycle(c.id, inst); !stillFound {
		return nil
	}

	c.waitSet.Clear()
	return lockerr.NewDeadlockError("Client.checkDeadlock", "cycle detected in lock wait-for graph")
}

func (c *Client) tracer() LockTracer {
	if c.config.Tracer == nil {
		return noopTracer{}
	}
	return c.config.Tracer
}
