package nanoheap

// numSizeClasses is the number of small-object size classes, spanning
// [classSize[0], classSize[numSizeClasses-1]] = [16, 32768] bytes.
const numSizeClasses = 40

// maxSmallSize is the largest request served from a size class; anything
// bigger goes straight to Buddy as a large span.
const maxSmallSize = classSize[numSizeClasses-1]

// classSize maps a class index to its block size. The schedule steps by
// 16 bytes from 16 to 240, then grows roughly geometrically (about 21%
// per step) to 32768, every value a multiple of 16 — stricter than
// spec's 8-byte-multiple floor, chosen so that, with the 128-byte header
// also a multiple of 16, every block address (span base + headerSize +
// i*blockSize) lands on a 16-byte boundary, which guarantees 16-byte
// alignment for every class rather than only for the classes a caller
// happens to pick. The first
// three steps exceed the ~25% fragmentation target because no
// 16-byte-aligned value sits between 16 and 64 closer than that.
var classSize = [numSizeClasses]uint32{
	16, 32, 48, 64, 80, 96, 112, 128, 144, 160,
	176, 192, 208, 224, 240, 304, 368, 448, 544, 656,
	800, 976, 1184, 1440, 1744, 2128, 2576, 3136, 3808, 4640,
	5648, 6864, 8336, 10144, 12336, 14992, 18224, 22160, 26944, 32768,
}

// sizeToClassSmall covers requests up to 1024 bytes at 8-byte
// granularity: sizeToClassSmall[(size-1)>>3] is the class index.
var sizeToClassSmall [1024 / 8]uint8

// sizeToClassLarge covers the remaining requests, (1024, 32768], at
// 128-byte granularity: sizeToClassLarge[(size-1-1024)>>7] is the class
// for the top of size's 128-byte bucket. Class sizes above 1024 are more
// than 128 apart, so the answer for size is that class or the one below
// it; classIndex makes that final choice.
var sizeToClassLarge [(maxSmallSize - 1024 + 127) / 128]uint8

func init() {
	for i := 1; i < numSizeClasses; i++ {
		if classSize[i] <= classSize[i-1] {
			panic("nanoheap: size class table is not strictly increasing")
		}
		if classSize[i]%16 != 0 {
			panic("nanoheap: size class is not a multiple of 16")
		}
	}
	if classSize[0] != 16 || classSize[numSizeClasses-1] != 32768 {
		panic("nanoheap: size class table bounds are wrong")
	}

	c := 0
	for size := uint32(8); size <= 1024; size += 8 {
		for classSize[c] < size {
			c++
		}
		sizeToClassSmall[(size-1)/8] = uint8(c)
	}
	for size := uint32(1024 + 128); size <= maxSmallSize; size += 128 {
		for classSize[c] < size {
			c++
		}
		sizeToClassLarge[(size-1-1024)/128] = uint8(c)
	}
}

// classIndex returns the smallest class c with classSize[c] >= size, in
// O(1), for size in [1, maxSmallSize]. Callers must check size against
// maxSmallSize first.
func classIndex(size uintptr) uint8 {
	if size <= 1024 {
		if size == 0 {
			size = 1
		}
		return sizeToClassSmall[(size-1)/8]
	}
	c := sizeToClassLarge[(size-1-1024)/128]
	if uintptr(classSize[c-1]) >= size {
		c--
	}
	return c
}

// maxClassAlignBytes is the largest alignment a size class can ever
// satisfy: every block's address is headerSize + i*blockSize, which is
// only independent of i when blockSize%align==0, and only ever lands on
// an align boundary in the first place when headerSize%align==0 too.
// Since headerSize is fixed at 128, no class can satisfy an alignment
// request above it — those requests bypass spans entirely (see
// alignedClass's second return value).
const maxClassAlignBytes = headerSize

// alignedClass returns the smallest class satisfying both size and a
// power-of-two alignment align<=maxClassAlignBytes. The second return
// value is false when align exceeds what any class can provide, in
// which case the caller must route the request directly to Buddy.
func alignedClass(size, align uintptr) (uint8, bool) {
	if align > maxClassAlignBytes {
		return 0, false
	}
	for c := classIndex(size); c < numSizeClasses; c++ {
		if uintptr(classSize[c])%align == 0 {
			return c, true
		}
	}
	return 0, false
}
