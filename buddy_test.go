package nanoheap

import "testing"

func TestBuddyAllocDistinctAndAligned(t *testing.T) {
	a, err := theBuddy.alloc(0)
	if err != nil {
		t.Fatalf("alloc(0): %v", err)
	}
	b, err := theBuddy.alloc(0)
	if err != nil {
		t.Fatalf("alloc(0): %v", err)
	}
	defer theBuddy.free(a, 0)
	defer theBuddy.free(b, 0)

	if a == b {
		t.Fatal("two allocations returned the same address")
	}
	if a%spanSize != 0 || b%spanSize != 0 {
		t.Errorf("buddy blocks must be spanSize-aligned, got %#x and %#x", a, b)
	}
}

func TestBuddySplitAndMerge(t *testing.T) {
	// Allocate at a higher order, free it, then confirm an allocation at
	// order 0 can be satisfied without errors (it must come from either
	// a leftover split or a fresh split of the freed block).
	big, err := theBuddy.alloc(2) // 4 spans
	if err != nil {
		t.Fatalf("alloc(2): %v", err)
	}
	theBuddy.free(big, 2)

	small, err := theBuddy.alloc(0)
	if err != nil {
		t.Fatalf("alloc(0) after merge: %v", err)
	}
	theBuddy.free(small, 0)
}

func TestBuddyRejectsOversizedOrder(t *testing.T) {
	if _, err := theBuddy.alloc(buddyMaxOrder + 1); err != ErrOversized {
		t.Errorf("alloc(buddyMaxOrder+1) = %v, want ErrOversized", err)
	}
}

func TestBuddyOrderForCoversSizeAndAlign(t *testing.T) {
	cases := []struct{ size, align uintptr }{
		{16, 16},
		{100000, 16},
		{32, 1 << 20},
	}
	for _, c := range cases {
		order := buddyOrderFor(c.size, c.align)
		blockBytes := uintptr(spanSize) << order
		if blockBytes < c.size+headerSize {
			t.Errorf("buddyOrderFor(%d, %d) = order %d (%d bytes), too small for size+header", c.size, c.align, order, blockBytes)
		}
		if blockBytes < c.align {
			t.Errorf("buddyOrderFor(%d, %d) = order %d (%d bytes), smaller than requested alignment", c.size, c.align, order, blockBytes)
		}
	}
}
