package nanoheap

import (
	"expvar"
	"sync/atomic"
)

// Stats is a point-in-time snapshot of allocator-wide counters.
// BuddyOrders is read under Buddy's lock; every other field is read with
// its own atomic load, so the snapshot is not transactionally consistent
// across fields, only individually accurate.
type Stats struct {
	ThreadHeaps    int32 // live entries in the thread-heap registry
	BuddyOrders    [buddyMaxOrder + 1]int32
	ReuseOccupancy [numShards][numSizeClasses]int32
	GlobalOccupied [numShards]int32
}

var (
	statsExpvar = expvar.NewMap("nanoheap")
	statsCalls  atomic.Uint64
)

func init() {
	statsExpvar.Set("mallocs", expvar.Func(func() any { return statsCalls.Load() }))
	statsExpvar.Set("thread_heaps", expvar.Func(func() any { return heapsLen.Load() }))
}

// Snapshot reports current allocator occupancy, for diagnostics and
// tests; it is not on any allocation fast path.
func Snapshot() Stats {
	var s Stats
	s.ThreadHeaps = heapsLen.Load()

	theBuddy.mu.Lock()
	for o := range theBuddy.freeList {
		s.BuddyOrders[o] = int32(len(theBuddy.freeList[o]))
	}
	theBuddy.mu.Unlock()

	for shard := 0; shard < numShards; shard++ {
		s.GlobalOccupied[shard] = global.shards[shard].count.Load()
		for c := 0; c < numSizeClasses; c++ {
			s.ReuseOccupancy[shard][c] = reuse.shards[shard][c].count.Load()
		}
	}
	return s
}

// recordMalloc is called on every successful allocation for the
// mallocs expvar counter; kept cheap (a single relaxed add) so it
// doesn't dent the fast path.
func recordMalloc() {
	statsCalls.Add(1)
}
