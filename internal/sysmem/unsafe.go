package sysmem

import "unsafe"

func bytesAt(base, length uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(base)), int(length))
}

func ptrOf(v *uint32) unsafe.Pointer {
	return unsafe.Pointer(v)
}
