package lock

import "testing"

func TestAbortYounger(t *testing.T) {
	young := &Client{id: 10}
	old := &Client{id: 1}

	strategy := AbortYounger{}
	if !strategy.ShouldAbort(young, old) {
		t.Fatalf("expected the younger (higher id) client to abort")
	}
	if strategy.ShouldAbort(old, young) {
		t.Fatalf("the older client should not abort against a younger blocker")
	}
}

func TestAlwaysAbortSelf(t *testing.T) {
	a := &Client{id: 1}
	b := &Client{id: 2}

	strategy := AlwaysAbortSelf{}
	if !strategy.ShouldAbort(a, b) || !strategy.ShouldAbort(b, a) {
		t.Fatalf("expected both sides to abort under AlwaysAbortSelf")
	}
}

func TestRandomResolutionIsSymmetricallyConsistent(t *testing.T) {
	a := &Client{id: 3}
	b := &Client{id: 8}

	strategy := Random{}
	first := strategy.ShouldAbort(a, b)
	second := strategy.ShouldAbort(b, a)
	if first == second {
		t.Fatalf("exactly one side must abort for a given pair, got a=%v b=%v", first, second)
	}
}

func TestCustomResolution(t *testing.T) {
	a := &Client{id: 1}
	b := &Client{id: 2}

	calls := 0
	strategy := Custom(func(self, blocker *Client) bool {
		calls++
		return self.id < blocker.id
	})

	if !strategy.ShouldAbort(a, b) {
		t.Fatalf("expected custom strategy to abort client 1")
	}
	if calls != 1 {
		t.Fatalf("expected the custom function to be invoked once per call, got %d", calls)
	}
}
