package nanoheap

import (
	"sync"
	"testing"
)

func TestSpanStackPushPopLIFO(t *testing.T) {
	spans := make([]span, 5)
	var st spanStack

	for i := range spans {
		spans[i].magic = spanHeaderMagic
		if !st.push(&spans[i], 0) {
			t.Fatalf("push(%d) unexpectedly hit the cap", i)
		}
	}
	for i := len(spans) - 1; i >= 0; i-- {
		got := st.pop()
		if got != &spans[i] {
			t.Fatalf("pop() = %p, want %p (span %d)", got, &spans[i], i)
		}
	}
	if st.pop() != nil {
		t.Error("pop() on empty stack should return nil")
	}
}

func TestSpanStackRespectsCap(t *testing.T) {
	var a, b, c span
	var st spanStack

	if !st.push(&a, 2) {
		t.Fatal("push within cap should succeed")
	}
	if !st.push(&b, 2) {
		t.Fatal("push up to cap should succeed")
	}
	if st.push(&c, 2) {
		t.Fatal("push beyond cap should fail")
	}
}

func TestSpanStackConcurrentPushPop(t *testing.T) {
	const n = 200
	spans := make([]span, n)
	var st spanStack
	var wg sync.WaitGroup

	for i := range spans {
		wg.Add(1)
		go func(sp *span) {
			defer wg.Done()
			st.push(sp, 0)
		}(&spans[i])
	}
	wg.Wait()

	popped := map[*span]bool{}
	for {
		sp := st.pop()
		if sp == nil {
			break
		}
		if popped[sp] {
			t.Fatalf("span %p popped twice", sp)
		}
		popped[sp] = true
	}
	if len(popped) != n {
		t.Fatalf("popped %d spans, want %d", len(popped), n)
	}
}

func TestPackUnpackTaggedRoundTrip(t *testing.T) {
	ptr := uintptr(0x00007f1234560000)
	for _, tag := range []uint16{0, 1, 42, 65535} {
		packed := packTagged(ptr, tag)
		gotPtr, gotTag := unpackTagged(packed)
		if gotPtr != ptr || gotTag != tag {
			t.Errorf("packTagged/unpackTagged(%#x, %d) round-tripped to (%#x, %d)", ptr, tag, gotPtr, gotTag)
		}
	}
}
