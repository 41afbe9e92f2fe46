package lock

import "testing"

func TestWaitSet(t *testing.T) {
	t.Run("reset marks self present", func(t *testing.T) {
		w := NewWaitSet(16)
		w.Reset(3)
		if !w.Contains(3) {
			t.Fatalf("expected self (3) to be present after Reset")
		}
		if w.Size() != 1 {
			t.Fatalf("expected size 1, got %d", w.Size())
		}
	})

	t.Run("add and contains", func(t *testing.T) {
		w := NewWaitSet(16)
		w.Reset(1)
		w.Add(5)
		w.Add(9)
		if !w.Contains(5) || !w.Contains(9) {
			t.Fatalf("expected 5 and 9 to be present")
		}
		if w.Contains(7) {
			t.Fatalf("did not expect 7 to be present")
		}
	})

	t.Run("union into folds bits without mutating source", func(t *testing.T) {
		src := NewWaitSet(16)
		src.Reset(1)
		src.Add(2)

		dst := NewWaitSet(16)
		dst.Reset(3)

		src.UnionInto(dst)

		if !dst.Contains(1) || !dst.Contains(2) || !dst.Contains(3) {
			t.Fatalf("expected dst to contain union of its own and src's bits")
		}
		if dst.Contains(9) {
			t.Fatalf("dst should not contain bits never added")
		}
		if src.Contains(3) {
			t.Fatalf("UnionInto must not mutate the source set")
		}
	})

	t.Run("each skips self", func(t *testing.T) {
		w := NewWaitSet(16)
		w.Reset(4)
		w.Add(5)
		w.Add(6)

		seen := map[int]bool{}
		w.Each(4, func(id int) { seen[id] = true })

		if seen[4] {
			t.Fatalf("Each must skip self")
		}
		if !seen[5] || !seen[6] {
			t.Fatalf("Each missed non-self ids: %v", seen)
		}
	})

	t.Run("clear empties the set", func(t *testing.T) {
		w := NewWaitSet(16)
		w.Reset(1)
		w.Add(2)
		w.Clear()
		if w.Size() != 0 {
			t.Fatalf("expected empty set after Clear, got size %d", w.Size())
		}
	})
}
