package nanoheap

import "sync/atomic"

// spanStack is a lock-free Treiber stack of *span, linked through each
// span's nextInCache field. The top is a single atomic word packing a
// pointer with a generation tag so pop can't be fooled by an ABA cycle:
// a span popped and re-pushed between a reader's load and its CAS still
// fails the CAS because the tag moved.
//
// The reference design in use here assumes a 48-bit virtual address
// space, true of every current x86-64/arm64 Linux configuration; the
// low 48 bits hold the pointer and the high 16 bits hold the tag.
type spanStack struct {
	top   atomic.Uint64
	count atomic.Int32 // advisory occupancy, read before a push's cap check
}

const ptrBits = 48
const ptrMask = (uint64(1) << ptrBits) - 1

func packTagged(ptr uintptr, tag uint16) uint64 {
	return uint64(tag)<<ptrBits | (uint64(ptr) & ptrMask)
}

func unpackTagged(v uint64) (ptr uintptr, tag uint16) {
	return uintptr(v & ptrMask), uint16(v >> ptrBits)
}

// push prepends sp. cap of 0 means unbounded.
func (s *spanStack) push(sp *span, cap int32) bool {
	if cap > 0 && s.count.Load() >= cap {
		return false
	}
	for {
		old := s.top.Load()
		oldPtr, tag := unpackTagged(old)
		sp.nextInCache = oldPtr
		next := packTagged(ptrOfSpan(sp), tag+1)
		if s.top.CompareAndSwap(old, next) {
			s.count.Add(1)
			return true
		}
	}
}

// pop removes and returns the top span, or nil if empty.
func (s *spanStack) pop() *span {
	for {
		old := s.top.Load()
		oldPtr, tag := unpackTagged(old)
		if oldPtr == 0 {
			return nil
		}
		sp := spanFromPtr(oldPtr)
		next := packTagged(sp.nextInCache, tag+1)
		if s.top.CompareAndSwap(old, next) {
			s.count.Add(-1)
			return sp
		}
	}
}
