package nanoheap

import (
	"fmt"
	"sync"

	"github.com/ale-grassi/nanoheap/internal/sysmem"
)

// arena is the single process-wide virtual address range Buddy carves
// spans from. Physical backing is created lazily by the kernel on first
// touch; the arena itself never writes to the range.
type arena struct {
	once sync.Once
	base uintptr
	size uintptr
	err  error
}

var theArena arena

// reserve maps the arena's full virtual range on first call and returns
// its base, 64 KiB-aligned. Only Buddy's bootstrap calls this.
func (a *arena) reserve(nSpans int) (uintptr, error) {
	a.once.Do(func() {
		a.size = uintptr(nSpans) * spanSize
		base, err := sysmem.ReserveVM(a.size, spanSize)
		if err != nil {
			a.err = fmt.Errorf("nanoheap: arena reserve: %w", err)
			return
		}
		a.base = base
	})
	return a.base, a.err
}
