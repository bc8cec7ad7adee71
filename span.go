package nanoheap

import (
	"sync/atomic"
	"unsafe"
)

// spanHeader sits at offset 0 of every 64 KiB span. It is split across
// two cache lines: the first holds fields only the owning thread ever
// touches (bump cursor, hot block, local free list, counters); the
// second holds the fields any thread may touch (owner id, reuse flag,
// remote free list, cache link). Keeping them on separate lines is load
// bearing — benchmarks on cross-thread workloads regress hard if a
// remote CAS shares a line with the owner's bump cursor.
type spanHeader struct {
	// --- cache line 0: owner-only ---
	classIdx    uint8 // size-class index, or spanClassLarge
	order       uint8 // buddy order this span (or large-span group) was carved at
	_           [2]byte
	magic       uint32
	blockSize   uint32
	blocksTotal uint32
	blocksInUse uint32

	bumpCursor    uintptr
	bumpLimit     uintptr
	hotBlock      uintptr
	localFreeHead uintptr

	_ [line0Pad]byte

	// --- cache line 1: shared ---
	ownerThreadID atomic.Int32
	reuseFlag     atomic.Uint32
	remoteFree    atomic.Uintptr
	nextInCache   uintptr // Treiber-stack link; valid only while parked in a cache

	_ [line1Pad]byte
}

const spanHeaderMagic = 0x5061534e // arbitrary; "PaSN" read as big-endian ASCII

// Compile-time layout checks, in the pack's own idiom (a negative array
// length is a build error).
const (
	line0PayloadSize = int(unsafe.Sizeof(struct {
		a uint8
		b uint8
		c [2]byte
		d uint32
		e uint32
		f uint32
		g uint32
		h uintptr
		i uintptr
		j uintptr
		k uintptr
	}{}))
	line0Pad = 64 - line0PayloadSize

	line1PayloadSize = 4 + 4 + 8 + 8 // ownerThreadID + reuseFlag + remoteFree + nextInCache
	line1Pad         = 64 - line1PayloadSize
)

var (
	_ [line0Pad]byte
	_ [line1Pad]byte
	_ [headerSize - int(unsafe.Sizeof(spanHeader{}))]byte // header must fit in headerSize bytes
)

// span is the in-memory view of a 64 KiB slab: the header plus the
// blocks carved from the remainder of the region. It is never allocated
// by Go's runtime allocator; it always overlays arena-backed memory.
type span struct {
	spanHeader
}

// spanAt views the span whose header starts at base.
func spanAt(base uintptr) *span {
	return (*span)(unsafe.Pointer(base))
}

// spanBase recovers a span's header address from any interior payload
// pointer.
func spanBase(ptr uintptr) uintptr {
	return ptr &^ spanMask
}

// ptrOfSpan and spanFromPtr convert between a *span and the raw
// uintptr representation stored in cache-stack link words.
func ptrOfSpan(s *span) uintptr {
	return uintptr(unsafe.Pointer(s))
}

func spanFromPtr(p uintptr) *span {
	return (*span)(unsafe.Pointer(p))
}

func (s *span) base() uintptr {
	return uintptr(unsafe.Pointer(s))
}

func (s *span) isLarge() bool {
	return s.classIdx == spanClassLarge
}

// checkMagic panics if the span header looks corrupted.
func (s *span) checkMagic() {
	if s.magic != spanHeaderMagic {
		corruptSpan(s.base())
	}
}

// initSmall (re)initializes a freshly carved or reclaimed single span as
// an empty span for size class c. Caller must own the span exclusively
// at this point (it has not yet been published to any cache or thread
// heap).
func (s *span) initSmall(c uint8, owner int32) {
	base := s.base()
	blockSize := classSize[c]
	payload := spanSize - headerSize
	blocksTotal := payload / int(blockSize)

	s.classIdx = c
	s.order = 0
	s.magic = spanHeaderMagic
	s.blockSize = blockSize
	s.blocksTotal = uint32(blocksTotal)
	s.blocksInUse = 0
	s.bumpCursor = base + headerSize
	s.bumpLimit = base + headerSize + uintptr(blocksTotal)*uintptr(blockSize)
	s.hotBlock = 0
	s.localFreeHead = 0
	s.nextInCache = 0
	s.ownerThreadID.Store(owner)
	s.reuseFlag.Store(0)
	s.remoteFree.Store(0)
}

// initLarge initializes a (possibly multi-span) block returned directly
// by Buddy for a request above maxSmallSize.
func (s *span) initLarge(order uint8) {
	s.classIdx = spanClassLarge
	s.order = order
	s.magic = spanHeaderMagic
	s.blockSize = 0
	s.blocksTotal = 0
	s.blocksInUse = 0
	s.bumpCursor = 0
	s.bumpLimit = 0
	s.hotBlock = 0
	s.localFreeHead = 0
	s.nextInCache = 0
	s.ownerThreadID.Store(0)
	s.reuseFlag.Store(0)
	s.remoteFree.Store(0)
}

// largeSpanBytes returns the total byte size of a large span's buddy
// block, header included.
func (s *span) largeSpanBytes() uintptr {
	return spanSize << s.order
}

// --- owner-only free list operations ---

// nextPtr reads the intrusive next-pointer stored in a free block's
// first word.
func nextPtr(block uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(block))
}

func setNextPtr(block, next uintptr) {
	*(*uintptr)(unsafe.Pointer(block)) = next
}

// popLocalFree pops one block from the owner-only local free list.
func (s *span) popLocalFree() uintptr {
	head := s.localFreeHead
	if head == 0 {
		return 0
	}
	s.localFreeHead = nextPtr(head)
	return head
}

// pushLocalFree pushes block onto the owner-only local free list.
func (s *span) pushLocalFree(block uintptr) {
	setNextPtr(block, s.localFreeHead)
	s.localFreeHead = block
}

// bumpAlloc carves one block off the bump region, or returns 0 if
// exhausted.
func (s *span) bumpAlloc() uintptr {
	if s.bumpCursor >= s.bumpLimit {
		return 0
	}
	block := s.bumpCursor
	s.bumpCursor += uintptr(s.blockSize)
	return block
}

// --- cross-thread remote free list (Treiber stack over span memory) ---

// pushRemoteFree atomically pushes block onto the remote free stack and
// reports whether the stack was empty immediately before the push (the
// signal used to decide whether to donate the span to ReuseCache).
func (s *span) pushRemoteFree(block uintptr) (wasEmpty bool) {
	for {
		old := s.remoteFree.Load()
		setNextPtr(block, old)
		if s.remoteFree.CompareAndSwap(old, block) {
			return old == 0
		}
	}
}

// drainRemoteFree atomically takes the entire remote free chain,
// leaving the stack empty. Safe to call only from the owner thread (or
// a thread that has just adopted ownership).
func (s *span) drainRemoteFree() uintptr {
	return s.remoteFree.Swap(0)
}

// --- ownership ---

func (s *span) owner() int32 {
	return s.ownerThreadID.Load()
}

func (s *span) setOwner(tid int32) {
	s.ownerThreadID.Store(tid)
}

// tryMarkReuse attempts to flip reuseFlag 0->1, returning true on
// success. Used to ensure at most one concurrent ReuseCache donation per
// empty->nonempty transition of the remote free list.
func (s *span) tryMarkReuse() bool {
	return s.reuseFlag.CompareAndSwap(0, 1)
}

// clearReuse clears reuseFlag, re-arming donation for the next
// empty->nonempty transition.
func (s *span) clearReuse() {
	s.reuseFlag.Store(0)
}
