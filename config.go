package nanoheap

import (
	"os"
	"strconv"
	"time"
)

// Compile-time tunables. One, reaperInterval, is overridable at process
// start via a NANOHEAP_* environment variable for test tuning; everything
// else is a fixed constant, matching spec's "all configuration is
// compile-time constants."
const (
	spanShift = 16
	spanSize  = 1 << spanShift // 64 KiB, the unit Buddy and Arena deal in.
	spanMask  = spanSize - 1

	arenaSize = 1 << 30 // 1 GiB virtual reservation.

	buddyMaxOrder = 14 // 2^14 spans = 1 GiB.

	numShards = 8 // CPU-shard count for GlobalCache/ReuseCache.

	globalCacheCapPerShard = 64 // soft cap, spans.
	reuseCacheCapPerClass  = 4  // soft cap, spans per class per shard.

	retiredSlotsPerClass = 2 // ThreadHeap.retired[c] preferred size, not a hard cap.

	// scavengeOrderThreshold: a merged buddy block at or above this order
	// has its physical pages advisorily released.
	scavengeOrderThreshold = 2

	headerSize = 128 // bytes reserved at the front of every span.
)

// spanClassLarge marks a span as a direct-to-Buddy large allocation; it is
// never a valid index into classSize.
const spanClassLarge = 0xFF

// reaperInterval is how often the thread-heap reaper scans the registry
// for dead OS threads. Overridable via NANOHEAP_REAPER_INTERVAL_MS for
// tests that want faster reclaim without waiting on the default.
var reaperInterval = envDuration("NANOHEAP_REAPER_INTERVAL_MS", 2*time.Second)

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
