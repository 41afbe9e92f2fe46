package lock

import (
	"sync"
	"testing"
	"time"
)

func TestDeadlockDetectorWalksTransitiveGraph(t *testing.T) {
	a := &Client{id: 1, waitSet: NewWaitSet(16)}
	b := &Client{id: 2, waitSet: NewWaitSet(16)}
	c := &Client{id: 3, waitSet: NewWaitSet(16)}

	clients := map[int]*Client{1: a, 2: b, 3: c}
	lookup := func(id int) *Client { return clients[id] }

	// 3 waits on 2, 2 waits on 1. Client 1 is about to block on a resource
	// currently held (exclusively) by client 3, which transitively depends
	// on client 1 through 2 — a cycle, even though 3 never waits on 1
	// directly.
	c.waitSet.Reset(3)
	c.waitSet.Add(2)
	b.waitSet.Reset(2)
	b.waitSet.Add(1)

	detector := newDeadlockDetector(lookup)
	held := NewExclusiveLock(3)

	blocker, found := detector.detectCycle(1, held)
	if !found {
		t.Fatalf("expected a cycle: 1 -> 3 -> 2 -> 1")
	}
	if blocker != 3 {
		t.Fatalf("expected the walk to report 3 as the blocker, got %d", blocker)
	}
}

// flakyInstance is an instance fake whose detectDeadlock answer changes
// between calls, used to pin down that Client.checkDeadlock re-runs the
// walk before raising rather than acting on a single stale snapshot.
type flakyInstance struct {
	blockerID int
	calls     int
}

func (f *flakyInstance) copyHolderWaitSetsInto(*WaitSet, clientLookup) {}

func (f *flakyInstance) detectDeadlock(probe int, lookup clientLookup) (int, bool) {
	f.calls++
	if f.calls == 1 {
		return f.blockerID, true
	}
	return 0, false
}

func TestCheckDeadlockReVerifiesBeforeRaising(t *testing.T) {
	mgr := newTestManager()
	blocker := mgr.NewClient()
	defer mgr.Release(blocker)
	self := mgr.NewClient()
	defer mgr.Release(self)

	fake := &flakyInstance{blockerID: blocker.LockSessionID()}
	mgr.table.PutIfAbsent(0, 1, fake)

	if err := self.checkDeadlock(rows, 1); err != nil {
		t.Fatalf("expected the second, contradicting walk to win out: %v", err)
	}
	if fake.calls != 2 {
		t.Fatalf("expected checkDeadlock to walk the graph twice, got %d calls", fake.calls)
	}
}

func TestCheckDeadlockRaisesWhenBothWalksAgree(t *testing.T) {
	mgr := newTestManager()
	// Created in this order so self.id > blocker.id: the default
	// AbortYounger resolution picks the higher id to abort, and this test
	// needs self to be the one that loses.
	blocker := mgr.NewClient()
	defer mgr.Release(blocker)
	self := mgr.NewClient()
	defer mgr.Release(self)

	held := NewExclusiveLock(blocker.LockSessionID())
	mgr.table.PutIfAbsent(0, 1, held)
	blocker.waitSet.Reset(blocker.LockSessionID())
	blocker.waitSet.Add(self.LockSessionID())

	if err := self.checkDeadlock(rows, 1); err == nil {
		t.Fatalf("expected a DeadlockError when both walks agree a cycle exists")
	}
}

func TestDeadlockBetweenTwoClientsAborts(t *testing.T) {
	mgr := NewManager(Config{TypeCount: 1, AcquisitionTimeout: 2 * time.Second, Resolution: AbortYounger{}})

	c1 := mgr.NewClient()
	defer mgr.Release(c1)
	c2 := mgr.NewClient()
	defer mgr.Release(c2)

	if err := c1.AcquireExclusive(rows, 1); err != nil {
		t.Fatalf("c1 failed to acquire resource 1: %v", err)
	}
	if err := c2.AcquireExclusive(rows, 2); err != nil {
		t.Fatalf("c2 failed to acquire resource 2: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)

	go func() {
		defer wg.Done()
		errs[0] = c1.AcquireExclusive(rows, 2)
		if errs[0] != nil {
			// The aborted side unwinds, releasing what it holds so the
			// other side's acquire can complete.
			_ = c1.ReleaseExclusive(rows, 1)
		}
	}()
	go func() {
		defer wg.Done()
		errs[1] = c2.AcquireExclusive(rows, 1)
		if errs[1] != nil {
			_ = c2.ReleaseExclusive(rows, 2)
		}
	}()

	wg.Wait()

	if errs[0] == nil && errs[1] == nil {
		t.Fatalf("expected exactly one side of the cycle to fail, both succeeded")
	}
	// With AbortYounger and c2 the higher id, c2 is expected to lose the tie
	// whenever the detector catches the cycle from its side.
	if errs[1] != nil {
		if err := c1.ReleaseExclusive(rows, 2); err != nil {
			t.Fatalf("winner failed to complete its acquire: unexpected release error %v", err)
		}
	}
}
