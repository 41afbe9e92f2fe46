package lock

import (
	"testing"
	"time"
)

func TestTrySharedSucceedsWhenFree(t *testing.T) {
	mgr := newTestManager()
	c := mgr.NewClient()
	defer mgr.Release(c)

	if !c.TryShared(rows, 1) {
		t.Fatalf("expected TryShared to succeed on a free resource")
	}
	if len(c.ActiveLocks()) != 1 {
		t.Fatalf("expected exactly one active lock after TryShared")
	}
}

func TestTrySharedReentrant(t *testing.T) {
	mgr := newTestManager()
	c := mgr.NewClient()
	defer mgr.Release(c)

	if !c.TryShared(rows, 1) {
		t.Fatalf("first TryShared failed")
	}
	if !c.TryShared(rows, 1) {
		t.Fatalf("re-entrant TryShared failed")
	}
	if err := c.ReleaseShared(rows, 1); err != nil {
		t.Fatalf("ReleaseShared failed: %v", err)
	}
	if len(c.ActiveLocks()) != 1 {
		t.Fatalf("expected lock still held after releasing one of two holds")
	}
}

func TestTrySharedFailsAgainstExclusive(t *testing.T) {
	mgr := newTestManager()
	holder := mgr.NewClient()
	defer mgr.Release(holder)
	if err := holder.AcquireExclusive(rows, 1); err != nil {
		t.Fatalf("AcquireExclusive failed: %v", err)
	}

	other := mgr.NewClient()
	defer mgr.Release(other)
	if other.TryShared(rows, 1) {
		t.Fatalf("expected TryShared to fail against an exclusively held resource")
	}
}

func TestTryExclusiveSucceedsWhenFree(t *testing.T) {
	mgr := newTestManager()
	c := mgr.NewClient()
	defer mgr.Release(c)

	if !c.TryExclusive(rows, 1) {
		t.Fatalf("expected TryExclusive to succeed on a free resource")
	}
}

func TestTryExclusiveFailsAgainstContention(t *testing.T) {
	mgr := newTestManager()
	holder := mgr.NewClient()
	defer mgr.Release(holder)
	if err := holder.AcquireShared(rows, 1); err != nil {
		t.Fatalf("AcquireShared failed: %v", err)
	}

	other := mgr.NewClient()
	defer mgr.Release(other)
	if other.TryExclusive(rows, 1) {
		t.Fatalf("expected TryExclusive to fail non-reentrantly against a foreign SharedLock")
	}
}

// TestTryExclusivePromotesImmediatelyWhenSoleHolder checks the non-blocking
// promotion path: a client already holding a resource shared, with no
// other holder present, must promote on the first try rather than needing
// the spin-and-retry AcquireExclusive uses.
func TestTryExclusivePromotesImmediatelyWhenSoleHolder(t *testing.T) {
	mgr := newTestManager()
	c := mgr.NewClient()
	defer mgr.Release(c)

	if err := c.AcquireShared(rows, 1); err != nil {
		t.Fatalf("AcquireShared failed: %v", err)
	}
	if !c.TryExclusive(rows, 1) {
		t.Fatalf("expected an immediate promotion with no other holders present")
	}
}

// TestTryExclusiveFailsWhenNotSoleHolder checks that a non-blocking
// promotion attempt gives up rather than waiting when another client also
// holds the resource shared, and that the failed attempt releases the
// update reservation rather than leaving it stuck.
func TestTryExclusiveFailsWhenNotSoleHolder(t *testing.T) {
	mgr := newTestManager()
	c1 := mgr.NewClient()
	defer mgr.Release(c1)
	c2 := mgr.NewClient()
	defer mgr.Release(c2)

	if err := c1.AcquireShared(rows, 1); err != nil {
		t.Fatalf("AcquireShared failed: %v", err)
	}
	if err := c2.AcquireShared(rows, 1); err != nil {
		t.Fatalf("second AcquireShared failed: %v", err)
	}

	if c1.TryExclusive(rows, 1) {
		t.Fatalf("expected TryExclusive to fail while another client also holds the resource shared")
	}

	if err := c1.ReleaseShared(rows, 1); err != nil {
		t.Fatalf("ReleaseShared failed: %v", err)
	}
	// If the failed attempt above had left the update slot reserved, this
	// would fail too instead of promoting now that c2 is the sole holder.
	if !c2.TryExclusive(rows, 1) {
		t.Fatalf("expected c2 to promote now that it is the sole holder")
	}
}

// TestTrySharedObservesUpdateLockDuringUpgrade is the package's rendition
// of the "C2 observing try_shared during C1's upgrade sees is_update_lock
// and gets false" scenario: while one client's in-place promotion is
// spinning for sole-holder status, a third client's non-blocking shared
// attempt on the same resource must fail.
func TestTrySharedObservesUpdateLockDuringUpgrade(t *testing.T) {
	// A reentrant promotion sits out the same grace period any other upgrade
	// does, so this needs a fast wait strategy rather than newTestManager's
	// default exponential backoff.
	mgr := NewManager(Config{
		TypeCount:          1,
		AcquisitionTimeout: 500 * time.Millisecond,
		WaitStrategies:     []WaitStrategy{ConstantBackoff{Interval: time.Microsecond}},
	})
	c1 := mgr.NewClient()
	defer mgr.Release(c1)
	c2 := mgr.NewClient()
	defer mgr.Release(c2)

	if err := c1.AcquireShared(rows, 1); err != nil {
		t.Fatalf("AcquireShared failed: %v", err)
	}
	if err := c2.AcquireShared(rows, 1); err != nil {
		t.Fatalf("second AcquireShared failed: %v", err)
	}

	promoteDone := make(chan error, 1)
	go func() {
		promoteDone <- c1.AcquireExclusive(rows, 1)
	}()

	// Wait for c1 to reserve the update slot and start spinning for
	// sole-holder status.
	waitForUpdateLock(t, mgr, 1)

	third := mgr.NewClient()
	defer mgr.Release(third)
	if third.TryShared(rows, 1) {
		t.Fatalf("expected TryShared to see the reserved update slot and fail")
	}

	if err := c2.ReleaseShared(rows, 1); err != nil {
		t.Fatalf("ReleaseShared failed: %v", err)
	}

	select {
	case err := <-promoteDone:
		if err != nil {
			t.Fatalf("promotion failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("promotion never completed after the co-holder released")
	}
}

func TestTryOperationsFailFastOnStoppedClient(t *testing.T) {
	mgr := newTestManager()
	c := mgr.NewClient()
	c.Stop()

	if c.TryShared(rows, 1) {
		t.Fatalf("expected TryShared to fail on a stopped client")
	}
	if c.TryExclusive(rows, 1) {
		t.Fatalf("expected TryExclusive to fail on a stopped client")
	}
}
