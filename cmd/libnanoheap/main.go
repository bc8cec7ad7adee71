// Command libnanoheap builds nanoheap as a C shared library exposing
// the standard malloc/free/calloc/realloc/posix_memalign/aligned_alloc
// surface, for use via LD_PRELOAD or direct linking from C/C++:
//
//	go build -buildmode=c-shared -o libnanoheap.so ./cmd/libnanoheap
//
// Requires cgo; there is nothing here for a pure-Go program to import.
package main

/*
#include <stddef.h>
*/
import "C"

import (
	"unsafe"

	"github.com/ale-grassi/nanoheap"
)

//export malloc
func malloc(size C.size_t) unsafe.Pointer {
	ptr, err := nanoheap.Malloc(uintptr(size))
	if err != nil {
		return nil
	}
	return unsafe.Pointer(ptr)
}

//export free
func free(p unsafe.Pointer) {
	nanoheap.Free(uintptr(p))
}

//export calloc
func calloc(n, size C.size_t) unsafe.Pointer {
	ptr, err := nanoheap.Calloc(uintptr(n), uintptr(size))
	if err != nil {
		return nil
	}
	return unsafe.Pointer(ptr)
}

//export realloc
func realloc(p unsafe.Pointer, size C.size_t) unsafe.Pointer {
	ptr, err := nanoheap.Realloc(uintptr(p), uintptr(size))
	if err != nil {
		return nil
	}
	return unsafe.Pointer(ptr)
}

//export posix_memalign
func posix_memalign(memptr *unsafe.Pointer, align, size C.size_t) C.int {
	ptr, err := nanoheap.PosixMemalign(uintptr(align), uintptr(size))
	if err != nil {
		if errno, ok := err.(interface{ Errno() int }); ok {
			return C.int(errno.Errno())
		}
		return 12 // ENOMEM
	}
	*memptr = unsafe.Pointer(ptr)
	return 0
}

//export aligned_alloc
func aligned_alloc(align, size C.size_t) unsafe.Pointer {
	ptr, err := nanoheap.AlignedAlloc(uintptr(align), uintptr(size))
	if err != nil {
		return nil
	}
	return unsafe.Pointer(ptr)
}

//export malloc_usable_size
func malloc_usable_size(p unsafe.Pointer) C.size_t {
	if p == nil {
		return 0
	}
	return C.size_t(nanoheap.UsableSize(uintptr(p)))
}

func main() {}
