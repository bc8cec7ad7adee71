package nanoheap

import (
	"sync"

	"github.com/ale-grassi/nanoheap/internal/sysmem"
)

// buddy is a classical binary-buddy allocator over the arena, managing
// 2^order-span blocks for order in [0, buddyMaxOrder]. Free lists are
// plain Go slices of byte offsets from the arena base — not linked
// through the arena memory itself, so a free block never needs a valid
// header, and the free lists live in ordinary GC'd memory under the
// single lock.
type buddy struct {
	mu        sync.Mutex
	base      uintptr
	freeList  [buddyMaxOrder + 1][]uintptr
	bootstrap sync.Once
	bootErr   error
}

var theBuddy buddy

func (b *buddy) ensureInit() error {
	b.bootstrap.Do(func() {
		const totalSpans = 1 << buddyMaxOrder
		if totalSpans*spanSize != arenaSize {
			panic("nanoheap: arenaSize does not match buddyMaxOrder")
		}
		base, err := theArena.reserve(totalSpans)
		if err != nil {
			b.bootErr = err
			return
		}
		b.base = base
		b.freeList[buddyMaxOrder] = append(b.freeList[buddyMaxOrder], 0)
	})
	return b.bootErr
}

// alloc returns the base address of a 2^order-span block, splitting a
// larger free block if needed.
func (b *buddy) alloc(order int) (uintptr, error) {
	if err := b.ensureInit(); err != nil {
		return 0, err
	}
	if order > buddyMaxOrder {
		return 0, ErrOversized
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	k := order
	for k <= buddyMaxOrder && len(b.freeList[k]) == 0 {
		k++
	}
	if k > buddyMaxOrder {
		return 0, ErrOutOfAddress
	}

	n := len(b.freeList[k])
	offset := b.freeList[k][n-1]
	b.freeList[k] = b.freeList[k][:n-1]

	for o := k; o > order; o-- {
		half := uintptr(spanSize) << (o - 1)
		b.freeList[o-1] = append(b.freeList[o-1], offset+half)
	}

	return b.base + offset, nil
}

// free merges base (a 2^order-span block) with its buddy repeatedly
// until no further merge is possible, then pushes the result onto the
// matching free list. Merges at or above scavengeOrderThreshold
// advisorily release the freed range's physical pages.
func (b *buddy) free(base uintptr, order int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	offset := base - b.base
	o := order
	for o < buddyMaxOrder {
		buddyOffset := offset ^ (uintptr(spanSize) << o)
		idx := indexOf(b.freeList[o], buddyOffset)
		if idx < 0 {
			break
		}
		b.freeList[o] = removeAt(b.freeList[o], idx)
		offset &^= uintptr(spanSize) << o
		o++
	}
	b.freeList[o] = append(b.freeList[o], offset)

	if o >= scavengeOrderThreshold {
		length := uintptr(spanSize) << o
		_ = sysmem.ReleasePages(b.base+offset, length) // advisory; failure is not fatal
	}
}

func indexOf(s []uintptr, v uintptr) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func removeAt(s []uintptr, i int) []uintptr {
	last := len(s) - 1
	s[i] = s[last]
	return s[:last]
}
