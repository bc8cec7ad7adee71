// Package sysmem wraps the three OS primitives the allocator core needs:
// reserving a lazily-backed virtual range, advising the kernel to drop
// physical pages, and reading a best-effort current CPU id. Everything
// here is Linux-only and built on golang.org/x/sys/unix.
package sysmem

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// CacheLineSize is the cache line size the allocator's layout assumes
// when padding owner-only and cross-thread state apart (span.go writes
// the same 64 as a literal).
const CacheLineSize = 64

// PageSize is the smallest unit release_pages operates on.
const PageSize = 4096

// ReserveVM reserves a virtually contiguous, lazily backed, read+write
// range of size bytes whose base is aligned to align (align must be a
// power of two). The mapping is anonymous and never swapped to a file.
//
// mmap gives no alignment guarantee beyond the page size, so we over-map
// by align bytes and trim the unaligned head/tail, the standard technique
// for aligned anonymous mappings. Trimming is done with raw mmap/munmap
// syscalls rather than unix.Mmap/Munmap: the latter tracks whole mappings
// by exact slice identity and rejects unmapping a sub-range of one.
func ReserveVM(size, align uintptr) (uintptr, error) {
	if align == 0 || align&(align-1) != 0 {
		return 0, fmt.Errorf("sysmem: align %d is not a power of two", align)
	}

	rawLen := size + align
	rawBase, err := mmapAnon(rawLen)
	if err != nil {
		return 0, fmt.Errorf("sysmem: mmap reserve %d bytes: %w", rawLen, err)
	}

	alignedBase := (rawBase + align - 1) &^ (align - 1)

	if headTrim := alignedBase - rawBase; headTrim > 0 {
		if err := munmapRaw(rawBase, headTrim); err != nil {
			return 0, fmt.Errorf("sysmem: trim head: %w", err)
		}
	}
	if tailTrim := rawBase + rawLen - (alignedBase + size); tailTrim > 0 {
		if err := munmapRaw(alignedBase+size, tailTrim); err != nil {
			return 0, fmt.Errorf("sysmem: trim tail: %w", err)
		}
	}
	return alignedBase, nil
}

func mmapAnon(length uintptr) (uintptr, error) {
	addr, _, errno := unix.Syscall6(unix.SYS_MMAP, 0, length,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS, ^uintptr(0), 0)
	if errno != 0 {
		return 0, errno
	}
	return addr, nil
}

func munmapRaw(base, length uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, base, length, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// ReleasePages advises the kernel that the physical backing for
// [base, base+len) may be dropped. A subsequent access remains valid and
// reads as zero-initialized memory.
func ReleasePages(base, length uintptr) error {
	if length == 0 {
		return nil
	}
	b := bytesAt(base, length)
	if err := unix.Madvise(b, unix.MADV_DONTNEED); err != nil {
		return fmt.Errorf("sysmem: madvise(DONTNEED, %#x, %d): %w", base, length, err)
	}
	return nil
}

// cpuRoundRobin is the fallback shard hint when the getcpu(2) syscall is
// unavailable or fails; it never affects correctness, only locality.
var cpuRoundRobin uint32

// CurrentCPU returns a best-effort logical CPU id for the calling OS
// thread. Callers must treat it purely as a sharding hint.
func CurrentCPU() int {
	var cpu, node uint32
	_, _, errno := unix.Syscall(unix.SYS_GETCPU, uintptr(ptrOf(&cpu)), uintptr(ptrOf(&node)), 0)
	if errno != 0 {
		return int(atomic.AddUint32(&cpuRoundRobin, 1))
	}
	return int(cpu)
}

// Gettid returns the kernel thread id of the calling OS thread. It is
// stable for the lifetime of the thread and is used as the owner
// identity recorded in a span header.
func Gettid() int32 {
	return int32(unix.Gettid())
}

// ThreadAlive reports whether the OS thread tid still exists, by
// checking for /proc/self/task/<tid>. Used by the reaper to detect
// abandoned per-thread heaps without a true TLS destructor.
func ThreadAlive(tid int32) bool {
	var st unix.Stat_t
	err := unix.Stat(fmt.Sprintf("/proc/self/task/%d", tid), &st)
	return err == nil
}
