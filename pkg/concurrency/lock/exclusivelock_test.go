package lock

import "testing"

func TestExclusiveLock(t *testing.T) {
	e := NewExclusiveLock(7)
	if e.Owner() != 7 {
		t.Fatalf("expected owner 7, got %d", e.Owner())
	}
}

func TestExclusiveLockDeadlockWalk(t *testing.T) {
	clients := map[int]*Client{
		1: {id: 1, waitSet: NewWaitSet(16)},
		2: {id: 2, waitSet: NewWaitSet(16)},
	}
	lookup := func(id int) *Client { return clients[id] }

	clients[2].waitSet.Reset(2)
	clients[2].waitSet.Add(1) // client 2 is waiting on client 1

	e := NewExclusiveLock(2)
	blocker, found := e.detectDeadlock(1, lookup)
	if !found || blocker != 2 {
		t.Fatalf("expected to find blocker 2, got blocker=%d found=%v", blocker, found)
	}
}
