package mrid

import "testing"

func TestNewTable(t *testing.T) {
	table := NewTable()
	if !table.IsValid(App) {
		t.Fatalf("App id must be live on a fresh table")
	}
	if c, ok := table.CreatorOf(App); !ok || c != App {
		t.Errorf("App must be self-created, got creator=%v ok=%v", c, ok)
	}
}

func TestAllocateAppendsDenseIDs(t *testing.T) {
	table := NewTable()
	first, err := table.Allocate(App)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if first != 1 {
		t.Errorf("expected first allocation to be id 1, got %d", first)
	}
	second, err := table.Allocate(first)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if second != 2 {
		t.Errorf("expected second allocation to be id 2, got %d", second)
	}
	if c, _ := table.CreatorOf(second); c != first {
		t.Errorf("expected creator %d, got %d", first, c)
	}
}

func TestFreeTrailingSlotShrinksTable(t *testing.T) {
	table := NewTable()
	id, _ := table.Allocate(App)
	table.Free(id)
	if table.IsValid(id) {
		t.Errorf("freed trailing id must not be valid")
	}
	// Reallocating must reuse the same dense id since the slot was dropped.
	again, err := table.Allocate(App)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if again != id {
		t.Errorf("expected reallocation to reuse id %d, got %d", id, again)
	}
}

func TestFreeInteriorSlotIsReleasedThenReused(t *testing.T) {
	table := NewTable()
	a, _ := table.Allocate(App)
	b, _ := table.Allocate(App)
	_, _ = table.Allocate(App) // keep c live so b is not trailing

	table.Free(b)
	if table.IsValid(b) {
		t.Errorf("freed interior id must not be valid")
	}

	reused, err := table.Allocate(App)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if reused != b {
		t.Errorf("expected released interior slot %d to be reused, got %d", b, reused)
	}
	_ = a
}

func TestFreeingAllReturnsTableToEmpty(t *testing.T) {
	table := NewTable()
	const n = 16
	ids := make([]ID, n)
	for i := range ids {
		id, err := table.Allocate(App)
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		ids[i] = id
	}
	if table.Len() != n+1 { // +1 for App itself
		t.Fatalf("expected %d live ids, got %d", n+1, table.Len())
	}
	// Free in an arbitrary (reverse-interleaved) order.
	for i := 0; i < n; i += 2 {
		table.Free(ids[i])
	}
	for i := 1; i < n; i += 2 {
		table.Free(ids[i])
	}
	if table.Len() != 1 {
		t.Fatalf("expected only App left live, got %d", table.Len())
	}
}

func TestLiveOrderIsAscending(t *testing.T) {
	table := NewTable()
	a, _ := table.Allocate(App)
	b, _ := table.Allocate(App)
	c, _ := table.Allocate(App)
	table.Free(b)
	live := table.Live()
	want := []ID{App, a, c}
	if len(live) != len(want) {
		t.Fatalf("expected %v, got %v", want, live)
	}
	for i, id := range want {
		if live[i] != id {
			t.Errorf("expected %v, got %v", want, live)
			break
		}
	}
}

func TestExhaustion(t *testing.T) {
	table := NewTable()
	for i := firstFree; i <= lastFree; i++ {
		if _, err := table.Allocate(App); err != nil {
			t.Fatalf("unexpected exhaustion at %d: %v", i, err)
		}
	}
	id, err := table.Allocate(App)
	if err != ErrExhausted {
		t.Fatalf("expected ErrExhausted, got id=%v err=%v", id, err)
	}
	if id != New {
		t.Errorf("expected sentinel New on exhaustion, got %v", id)
	}
}
