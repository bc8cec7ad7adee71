package nanoheap

import "testing"

func TestClassIndexMonotonic(t *testing.T) {
	for sz := uintptr(1); sz <= maxSmallSize; sz++ {
		c := classIndex(sz)
		if uintptr(classSize[c]) < sz {
			t.Fatalf("classIndex(%d) = %d, but classSize[%d] = %d < %d", sz, c, c, classSize[c], sz)
		}
		if c > 0 && uintptr(classSize[c-1]) >= sz {
			t.Fatalf("classIndex(%d) = %d, but class %d (%d bytes) would also fit", sz, c, c-1, classSize[c-1])
		}
	}
}

func TestClassIndexBoundaries(t *testing.T) {
	for c := 0; c < numSizeClasses; c++ {
		sz := uintptr(classSize[c])
		if got := classIndex(sz); got != uint8(c) {
			t.Errorf("classIndex(%d) = %d, want %d", sz, got, c)
		}
		if sz > 1 {
			if got := classIndex(sz - 1); got > uint8(c) {
				t.Errorf("classIndex(%d) = %d, want <= %d", sz-1, got, c)
			}
		}
	}
}

func TestSizeClassesAreSixteenByteMultiples(t *testing.T) {
	for c, sz := range classSize {
		if sz%16 != 0 {
			t.Errorf("classSize[%d] = %d is not a multiple of 16", c, sz)
		}
	}
}

func TestAlignedClassRespectsAlignment(t *testing.T) {
	for _, align := range []uintptr{16, 32, 64, 128} {
		c, ok := alignedClass(24, align)
		if !ok {
			t.Fatalf("alignedClass(24, %d): no class satisfies alignment", align)
		}
		if uintptr(classSize[c])%align != 0 {
			t.Errorf("alignedClass(24, %d) = class %d (%d bytes), not aligned", align, c, classSize[c])
		}
		if uintptr(classSize[c]) < 24 {
			t.Errorf("alignedClass(24, %d) = class %d (%d bytes), too small", align, c, classSize[c])
		}
	}
}

func TestAlignedClassRejectsAboveHeaderSize(t *testing.T) {
	if _, ok := alignedClass(64, 256); ok {
		t.Error("alignedClass(64, 256) should fail: no class can guarantee 256-byte alignment")
	}
}
