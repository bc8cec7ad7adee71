// Package nanoheap is a general-purpose dynamic memory allocator: a
// drop-in replacement for malloc/free built around per-OS-thread
// lock-free fast paths, a 40-class small-object size table, and a
// binary-buddy backing allocator for everything larger.
//
// Every exported function operates on raw uintptr addresses rather
// than Go values, since the whole point is to serve allocations for
// code outside Go's own garbage collector (the C ABI shim in
// cmd/libnanoheap, or direct unsafe.Pointer conversions). Callers own
// the usual unsafe.Pointer <-> uintptr conversion discipline: a
// uintptr returned here is not a Go pointer until converted back, and
// must not be retained across a GC safepoint in that form.
package nanoheap

import (
	"math/bits"
)

// Malloc returns the address of a newly allocated, unaligned-guarantee
// (beyond the universal 16-byte floor) region of at least size bytes,
// or an error if the request cannot be satisfied. size==0 returns a
// valid, unique pointer that must still be freed, matching malloc(0)'s
// common-practice behavior.
func Malloc(size uintptr) (uintptr, error) {
	if size == 0 {
		size = 1
	}
	if size > buddyMaxSize() {
		return 0, ErrOversized
	}
	h := currentHeap()
	var ptr uintptr
	var err error
	if size <= maxSmallSize {
		ptr, err = h.malloc(size, 16)
	} else {
		ptr, err = h.largeAlloc(buddyOrderFor(size, 16))
	}
	if err == nil {
		recordMalloc()
	}
	return ptr, err
}

// Free releases a region previously returned by Malloc, Calloc,
// Realloc, PosixMemalign, or AlignedAlloc. Freeing 0 is a no-op.
// Freeing anything else is undefined if ptr was not obtained from this
// allocator or has already been freed.
func Free(ptr uintptr) {
	if ptr == 0 {
		return
	}
	free(ptr)
}

// Calloc allocates space for n elements of size bytes each, zeroed,
// with the same overflow protection as the C standard library's
// calloc.
func Calloc(n, size uintptr) (uintptr, error) {
	if n != 0 && size != 0 {
		if hi, _ := bits.Mul64(uint64(n), uint64(size)); hi != 0 {
			return 0, ErrOversized
		}
	}
	total := n * size
	ptr, err := Malloc(total)
	if err != nil {
		return 0, err
	}
	zeroBytes(ptr, UsableSize(ptr))
	return ptr, nil
}

// Realloc resizes the allocation at ptr to n bytes, preserving the
// lesser of the old and new sizes' worth of content. ptr==0 behaves as
// Malloc(n); n==0 behaves as Free(ptr) followed by returning (0, nil).
func Realloc(ptr uintptr, n uintptr) (uintptr, error) {
	if ptr == 0 {
		return Malloc(n)
	}
	if n == 0 {
		Free(ptr)
		return 0, nil
	}

	oldUsable := UsableSize(ptr)
	if n <= oldUsable {
		base := spanBase(ptr)
		sp := spanAt(base)
		if sp.isLarge() || classSize[classIndexFor(n)] == classSize[sp.classIdx] {
			return ptr, nil
		}
	}

	newPtr, err := Malloc(n)
	if err != nil {
		return 0, err
	}
	copyBytes(newPtr, ptr, minUintptr(n, oldUsable))
	Free(ptr)
	return newPtr, nil
}

// PosixMemalign allocates size bytes aligned to align, which must be a
// power of two and a multiple of sizeof(void*) (8 on this platform),
// matching posix_memalign's contract.
func PosixMemalign(align, size uintptr) (uintptr, error) {
	if align == 0 || align&(align-1) != 0 || align%8 != 0 {
		return 0, ErrInvalidAlignment
	}
	if size == 0 {
		size = 1
	}
	h := currentHeap()
	ptr, err := h.malloc(size, align)
	if err == nil {
		recordMalloc()
	}
	return ptr, err
}

// AlignedAlloc allocates size bytes aligned to align, which must be a
// power of two; unlike PosixMemalign it does not require align to be a
// multiple of sizeof(void*), matching C11 aligned_alloc.
func AlignedAlloc(align, size uintptr) (uintptr, error) {
	if align == 0 || align&(align-1) != 0 {
		return 0, ErrInvalidAlignment
	}
	if size == 0 {
		size = 1
	}
	h := currentHeap()
	ptr, err := h.malloc(size, align)
	if err == nil {
		recordMalloc()
	}
	return ptr, err
}

// UsableSize returns the number of bytes ptr's allocation can actually
// hold, which may exceed the originally requested size because of
// size-class rounding.
func UsableSize(ptr uintptr) uintptr {
	base := spanBase(ptr)
	sp := spanAt(base)
	sp.checkMagic()
	if sp.isLarge() {
		return sp.largeSpanBytes() - headerSize
	}
	return uintptr(sp.blockSize)
}

func classIndexFor(size uintptr) uint8 {
	if size > maxSmallSize {
		return spanClassLarge
	}
	return classIndex(size)
}

func buddyMaxSize() uintptr {
	return (uintptr(spanSize) << buddyMaxOrder) - headerSize
}

func minUintptr(a, b uintptr) uintptr {
	if a < b {
		return a
	}
	return b
}
