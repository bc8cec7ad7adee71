package nanoheap

import "unsafe"

// zeroBytes and copyBytes operate directly on raw addresses, since the
// allocator's callers are not necessarily holding Go-typed values —
// the C shim hands us bare uintptrs from cgo.

func zeroBytes(ptr, n uintptr) {
	if n == 0 {
		return
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(n))
	for i := range b {
		b[i] = 0
	}
}

func copyBytes(dst, src, n uintptr) {
	if n == 0 {
		return
	}
	d := unsafe.Slice((*byte)(unsafe.Pointer(dst)), int(n))
	s := unsafe.Slice((*byte)(unsafe.Pointer(src)), int(n))
	copy(d, s)
}
