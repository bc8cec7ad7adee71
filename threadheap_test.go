package nanoheap

import "testing"

func TestCurrentHeapIsStablePerGoroutine(t *testing.T) {
	LockOSThreadForAlloc()
	h1 := currentHeap()
	h2 := currentHeap()
	if h1 != h2 {
		t.Fatal("currentHeap() returned different heaps for the same locked OS thread")
	}
}

func TestSpanHasCapacityDetectsEachSource(t *testing.T) {
	sp := mockSpanMemory(t, 2, 32)
	if !spanHasCapacity(sp) {
		t.Fatal("freshly initialized span with bump headroom should report capacity")
	}

	sp.bumpCursor = sp.bumpLimit // simulate full exhaustion
	if spanHasCapacity(sp) {
		t.Fatal("span with no hot block, no local free, no bump headroom, no remote free should report no capacity")
	}

	sp.pushLocalFree(sp.base() + headerSize)
	if !spanHasCapacity(sp) {
		t.Fatal("span with a local free block should report capacity")
	}

	sp.localFreeHead = 0
	sp.hotBlock = sp.base() + headerSize
	if !spanHasCapacity(sp) {
		t.Fatal("span with a hot block should report capacity")
	}

	sp.hotBlock = 0
	sp.pushRemoteFree(sp.base() + headerSize)
	if !spanHasCapacity(sp) {
		t.Fatal("span with a remote free block should report capacity")
	}
}

func TestRetireAndReplacePromotesSpanWithCapacity(t *testing.T) {
	h := &threadHeap{tid: 999}
	full := mockSpanMemory(t, 1, 32)
	full.bumpCursor = full.bumpLimit // exhausted, no local free, no remote free

	spare := mockSpanMemory(t, 4, 32)
	spare.pushLocalFree(spare.base() + headerSize) // has capacity

	h.retired[0] = []*span{spare}

	promoted, err := h.retireAndReplace(0, full)
	if err != nil {
		t.Fatalf("retireAndReplace: %v", err)
	}
	if promoted != spare {
		t.Errorf("retireAndReplace promoted %p, want the spare span with capacity %p", promoted, spare)
	}

	// full should now sit in retired (it had no capacity, and every
	// candidate that is not promoted is kept), not be lost.
	found := false
	for _, r := range h.retired[0] {
		if r == full {
			found = true
		}
	}
	if !found {
		t.Error("exhausted span should be kept in retired, not dropped")
	}
}

func TestAdoptRetiredSkipsSpansWithoutCapacity(t *testing.T) {
	h := &threadHeap{tid: 1000}
	dead := mockSpanMemory(t, 1, 32)
	dead.bumpCursor = dead.bumpLimit

	alive := mockSpanMemory(t, 2, 32)
	alive.pushLocalFree(alive.base() + headerSize)

	h.retired[0] = []*span{dead, alive}

	got := h.adoptRetired(0)
	if got != alive {
		t.Fatalf("adoptRetired returned %p, want %p", got, alive)
	}
	for _, r := range h.retired[0] {
		if r == alive {
			t.Error("adopted span should have been removed from retired")
		}
	}
}
