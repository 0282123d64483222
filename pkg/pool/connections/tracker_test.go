package connections

import (
	"sync"
	"testing"
)

func TestTrackerIncrementDecrement(t *testing.T) {
	tr := NewTracker()

	tr.Increment("a")
	tr.Increment("a")
	tr.Increment("b")

	if got := tr.Count("a"); got != 2 {
		t.Errorf("Count(a) = %d, want 2", got)
	}
	if got := tr.Count("b"); got != 1 {
		t.Errorf("Count(b) = %d, want 1", got)
	}

	tr.Decrement("a")
	if got := tr.Count("a"); got != 1 {
		t.Errorf("Count(a) after decrement = %d, want 1", got)
	}

	if got := tr.Total(); got != 2 {
		t.Errorf("Total = %d, want 2", got)
	}
}

func TestTrackerDecrementFloorsAtZero(t *testing.T) {
	tr := NewTracker()

	tr.Decrement("never-seen")
	if got := tr.Count("never-seen"); got != 0 {
		t.Errorf("Count = %d, want 0", got)
	}

	tr.Increment("a")
	tr.Decrement("a")
	tr.Decrement("a")
	if got := tr.Count("a"); got != 0 {
		t.Errorf("Count after double decrement = %d, want 0", got)
	}
}

func TestTrackerSnapshotOmitsZeroCounts(t *testing.T) {
	tr := NewTracker()

	tr.Increment("a")
	tr.Increment("b")
	tr.Decrement("b")

	snap := tr.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d entries, want 1", len(snap))
	}
	if snap["a"] != 1 {
		t.Errorf("snapshot[a] = %d, want 1", snap["a"])
	}
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tr := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Increment("shared")
				tr.Decrement("shared")
			}
		}()
	}
	wg.Wait()

	if got := tr.Count("shared"); got != 0 {
		t.Errorf("Count after balanced ops = %d, want 0", got)
	}
}
