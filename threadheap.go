package nanoheap

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ale-grassi/nanoheap/internal/sysmem"
)

// threadHeap is the per-OS-thread allocation state: one active span per
// size class plus a per-class list of retired spans that are not
// currently active (see retireAndReplace; the list has no fixed
// length). There is no lock on the fast path —
// only the owning OS thread (identified by tid) ever touches spans[c]'s
// owner-only fields; every other thread that touches this span goes
// through the remote free list instead.
//
// Go has no notion of an OS-thread-local variable, so registry keys
// threadHeaps by gettid() and a background reaper (see reaper.go)
// reclaims the heaps of threads that have exited. Callers that want the
// fast path must runtime.LockOSThread for the duration, matching the
// spec's assumption of a stable thread identity across an allocation
// burst; Malloc/Free still work without it, just without the
// lock-free-fast-path guarantee (the registry simply keys on whichever
// OS thread happens to run the goroutine at that instant).
type threadHeap struct {
	tid int32

	spans   [numSizeClasses]*span
	retired [numSizeClasses][]*span

	shard int

	// inAlloc guards against reentrancy: a GC assist or signal handler
	// that itself allocates while this goroutine is mid-malloc would
	// otherwise corrupt the active span's owner-only fields.
	inAlloc bool
}

var (
	heaps    sync.Map // int32 -> *threadHeap
	heapsLen atomic.Int32
)

// currentHeap returns (creating if absent) the threadHeap for the
// calling OS thread.
func currentHeap() *threadHeap {
	tid := sysmem.Gettid()
	if v, ok := heaps.Load(tid); ok {
		return v.(*threadHeap)
	}
	h := &threadHeap{tid: tid, shard: sysmem.CurrentCPU() & (numShards - 1)}
	actual, loaded := heaps.LoadOrStore(tid, h)
	if !loaded {
		heapsLen.Add(1)
		startReaper()
	}
	return actual.(*threadHeap)
}

// malloc is the ThreadHeap entry point. Requests above maxSmallSize, or
// with an alignment no class can provide, go straight to Buddy.
// align must already be validated as a power of two by the caller.
func (h *threadHeap) malloc(size, align uintptr) (uintptr, error) {
	if align > maxClassAlignBytes || size > maxSmallSize {
		return h.largeAlloc(buddyOrderFor(size, align))
	}

	c, ok := alignedClass(size, align)
	if !ok {
		return h.largeAlloc(buddyOrderFor(size, align))
	}

	if h.inAlloc {
		// Reentrant call (e.g. from within a signal handler this
		// process installs). Skip the thread heap entirely and go
		// straight to Buddy at span granularity; slower, but safe.
		return h.largeAlloc(0)
	}
	h.inAlloc = true
	defer func() { h.inAlloc = false }()

	return h.allocFromClass(c)
}

// allocFromClass runs the fast path for an already-resolved class,
// retrying against a freshly retired/replaced active span as many
// times as a single request needs (in practice at most once: a span
// that was just made active always has some capacity). Kept as its
// own loop rather than a recursive call into malloc so the reentry
// guard set there isn't tripped by this internal retry.
func (h *threadHeap) allocFromClass(c uint8) (uintptr, error) {
	for {
		sp := h.spans[c]
		if sp == nil {
			var err error
			sp, err = h.coldPath(c)
			if err != nil {
				return 0, err
			}
		}

		if block := sp.hotBlock; block != 0 {
			sp.hotBlock = 0
			sp.blocksInUse++
			return block, nil
		}
		if block := sp.popLocalFree(); block != 0 {
			sp.blocksInUse++
			return block, nil
		}
		if drained := sp.drainRemoteFree(); drained != 0 {
			// drained is a LIFO chain linked through the same
			// next-pointer word the local free list uses; serve its
			// head now and keep the rest as the local free list
			// rather than truncating it.
			sp.localFreeHead = nextPtr(drained)
			sp.blocksInUse++
			return drained, nil
		}
		if block := sp.bumpAlloc(); block != 0 {
			sp.blocksInUse++
			return block, nil
		}

		// sp is exhausted along every fast-path source; retire it and
		// loop again with whatever the cold path hands back.
		next, err := h.retireAndReplace(c, sp)
		if err != nil {
			return 0, err
		}
		h.spans[c] = next
	}
}

// coldPath supplies an active span for class c when the thread has
// none yet, in priority order: a previously retired span with spare
// capacity, a ReuseCache donation, a GlobalCache span (reinitialized
// for c), or a fresh span carved from Buddy.
func (h *threadHeap) coldPath(c uint8) (*span, error) {
	if sp := h.adoptRetired(c); sp != nil {
		h.spans[c] = sp
		return sp, nil
	}
	if sp := reuse.pop(h.shard, c); sp != nil {
		return h.adopt(c, sp), nil
	}
	if sp := global.pop(h.shard); sp != nil {
		sp.initSmall(c, h.tid)
		h.spans[c] = sp
		return sp, nil
	}
	base, err := theBuddy.alloc(0)
	if err != nil {
		return nil, err
	}
	sp := spanAt(base)
	sp.initSmall(c, h.tid)
	h.spans[c] = sp
	return sp, nil
}

// adopt takes ownership of sp (popped from ReuseCache, so it still
// carries the remote frees that made it eligible for reuse) and makes
// it this thread's active span for class c.
func (h *threadHeap) adopt(c uint8, sp *span) *span {
	sp.setOwner(h.tid)
	sp.clearReuse()
	// The remote free stack is linked through the same next-pointer
	// word the local free list uses, so the drained chain can become
	// the local free list directly: head goes to hotBlock, everything
	// behind it is already a valid local free chain.
	if drained := sp.drainRemoteFree(); drained != 0 {
		sp.hotBlock = drained
		sp.localFreeHead = nextPtr(drained)
	}
	h.spans[c] = sp
	return sp
}

// retireAndReplace stashes an exhausted span and returns a new active
// span for the same class, following the retired-slot overflow policy:
// scan the exhausted span plus the already-retired ones for any with
// spare capacity and promote the best one. retiredSlotsPerClass is a
// preferred size, not a hard ceiling — every candidate that isn't
// promoted is kept, even past that count. A retired span is always
// reachable through h.retired[c] for as long as this thread lives, so
// its blocksInUse can never become unreclaimable: same-thread frees
// find it via the span header regardless of whether it's promoted, and
// if the thread exits first, the reaper (see reaper.go) donates every
// remaining entry in h.retired[c] to the shared caches (GlobalCache or
// Buddy if fully free, ReuseCache otherwise). Dropping a span here
// would otherwise strand it forever, since owner-path frees never
// touch ReuseCache themselves.
func (h *threadHeap) retireAndReplace(c uint8, exhausted *span) (*span, error) {
	candidates := append(h.retired[c], exhausted)
	h.retired[c] = h.retired[c][:0]

	var promoted *span
	for _, cand := range candidates {
		if promoted == nil && spanHasCapacity(cand) {
			promoted = cand
			continue
		}
		h.retired[c] = append(h.retired[c], cand)
	}

	if promoted != nil {
		return promoted, nil
	}
	return h.coldPath(c)
}

// adoptRetired pops a retired span with spare capacity for class c, if
// one exists, preferring the most recently retired.
func (h *threadHeap) adoptRetired(c uint8) *span {
	list := h.retired[c]
	for i := len(list) - 1; i >= 0; i-- {
		if spanHasCapacity(list[i]) {
			sp := list[i]
			h.retired[c] = append(list[:i], list[i+1:]...)
			return sp
		}
	}
	return nil
}

// spanHasCapacity reports whether sp could serve another allocation
// without visiting Buddy: a hot block, a local free block, bump
// headroom, or a nonempty remote free list (cheap atomic peek, no
// drain).
func spanHasCapacity(sp *span) bool {
	return sp.hotBlock != 0 ||
		sp.localFreeHead != 0 ||
		sp.bumpCursor < sp.bumpLimit ||
		sp.remoteFree.Load() != 0
}

// free returns block to the allocator. If the calling OS thread owns
// block's span, block becomes the span's hot block and any previous hot
// block moves to the owner-only local free list; otherwise block goes
// on the span's remote free list, and the first
// remote push into a previously all-owned span donates the span to
// ReuseCache so some thread eventually reclaims it.
func free(block uintptr) {
	base := spanBase(block)
	sp := spanAt(base)
	sp.checkMagic()

	if sp.isLarge() {
		theBuddy.free(base, int(sp.order))
		return
	}

	tid := sysmem.Gettid()
	if sp.owner() == tid {
		sp.blocksInUse--
		// MRU swap: the freed block becomes the new hot_block, biasing
		// the next malloc on this span toward the hottest cache line
		// instead of whatever's at the head of local_free_head. The
		// block hot_block displaces is pushed onto local_free_head.
		if sp.hotBlock == 0 {
			sp.hotBlock = block
		} else {
			sp.pushLocalFree(sp.hotBlock)
			sp.hotBlock = block
		}
		return
	}

	wasEmpty := sp.pushRemoteFree(block)
	if wasEmpty && sp.tryMarkReuse() {
		shard := sysmem.CurrentCPU() & (numShards - 1)
		if !reuse.push(shard, sp.classIdx, sp) {
			sp.clearReuse()
		}
	}
}

// largeAlloc serves a request too big for any size class (or requiring
// alignment a class cannot provide) directly from Buddy.
func (h *threadHeap) largeAlloc(order int) (uintptr, error) {
	base, err := theBuddy.alloc(order)
	if err != nil {
		return 0, err
	}
	sp := spanAt(base)
	sp.initLarge(uint8(order))
	return base + headerSize, nil
}

// buddyOrderFor returns the smallest buddy order whose span is at
// least max(size+headerSize, align) bytes, so the returned region can
// host a headerSize-byte span header followed by a size-byte,
// align-aligned payload (a large span's own base is always aligned to
// its full 2^order*spanSize size, which covers any align up to that).
func buddyOrderFor(size, align uintptr) int {
	need := size + headerSize
	if align > need {
		need = align
	}
	order := 0
	for uintptr(spanSize)<<order < need {
		order++
	}
	return order
}

// LockOSThreadForAlloc is a convenience wrapper around
// runtime.LockOSThread documenting why callers on the fast path want
// it: without it, the goroutine scheduler is free to migrate this
// goroutine to a different OS thread between a malloc and its matching
// free, which is harmless for correctness (free always finds the
// span's true owner via the span header) but defeats the owner-only
// fast path for that allocation's lifetime.
func LockOSThreadForAlloc() {
	runtime.LockOSThread()
}
