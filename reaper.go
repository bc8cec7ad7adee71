package nanoheap

import (
	"sync"
	"time"

	"github.com/ale-grassi/nanoheap/internal/sysmem"
)

// Go has no hook for an arbitrary OS thread's exit, so there is no
// direct equivalent of a pthread TLS destructor. The reaper goroutine
// is the substitute: it polls the thread-heap registry and, for any
// owner tid that no longer has a /proc/self/task entry, donates that
// heap's spans back to the shared caches so other threads can reclaim
// the memory instead of it sitting idle forever under a dead owner.
var reaperOnce sync.Once

func startReaper() {
	reaperOnce.Do(func() {
		go reaperLoop()
	})
}

func reaperLoop() {
	for {
		time.Sleep(reaperInterval)
		reapDeadThreads()
	}
}

func reapDeadThreads() {
	heaps.Range(func(key, value any) bool {
		tid := key.(int32)
		if sysmem.ThreadAlive(tid) {
			return true
		}
		h := value.(*threadHeap)
		heaps.Delete(tid)
		heapsLen.Add(-1)
		donateAll(h)
		return true
	})
}

// donateAll hands every span a dead thread's heap was holding back to
// the shared pools: spans that are already fully free go to GlobalCache
// (or back to Buddy if that shard is full); every other span goes to
// ReuseCache, and if that is full its owner id is cleared and it is
// left in no cache.
func donateAll(h *threadHeap) {
	for c := uint8(0); c < numSizeClasses; c++ {
		if sp := h.spans[c]; sp != nil {
			donateOne(h.shard, c, sp)
		}
		for _, sp := range h.retired[c] {
			donateOne(h.shard, c, sp)
		}
	}
}

func donateOne(shard int, c uint8, sp *span) {
	sp.clearReuse()
	if spanFullyFree(sp) {
		if !global.push(shard, sp) {
			theBuddy.free(sp.base(), 0)
		}
		return
	}
	if !reuse.push(shard, c, sp) {
		// ReuseCache full: leave it parked nowhere reachable by a
		// fast path, but its remote-free list still accepts pushes
		// from any thread still holding live pointers into it, and a
		// later free that empties it out entirely will not re-trigger
		// a donation (no owner is draining it) — an accepted narrow
		// leak of reuse opportunity, not of address space.
		sp.setOwner(0)
	}
}

func spanFullyFree(sp *span) bool {
	return sp.blocksInUse == 0 && sp.remoteFree.Load() == 0
}
