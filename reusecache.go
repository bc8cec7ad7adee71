package nanoheap

// reuseCache holds spans that still carry remote-freed blocks, tagged by
// size class, so a thread can reclaim one without a Buddy round trip.
// Bounded to reuseCacheCapPerClass spans per class per shard, so the
// total bound is numShards * numSizeClasses * reuseCacheCapPerClass.
type reuseCache struct {
	shards [numShards][numSizeClasses]spanStack
}

var reuse reuseCache

// push donates sp (already tagged with its size class) to its CPU
// shard's per-class stack. Returns false if the per-class cap was hit,
// in which case the caller must clear the span's reuseFlag and leave it
// where it was.
func (r *reuseCache) push(shard int, classIdx uint8, sp *span) bool {
	return r.shards[shard&(numShards-1)][classIdx].push(sp, reuseCacheCapPerClass)
}

func (r *reuseCache) pop(shard int, classIdx uint8) *span {
	return r.shards[shard&(numShards-1)][classIdx].pop()
}
