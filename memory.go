package buddy

import "unsafe"

// memclr zeroes n bytes starting at ptr. It is the "set N bytes to a
// constant" bulk primitive ZeroAlloc uses to clear a granted block;
// construction-time zeroing of the tree goes through Bitvector.Zero.
func memclr(ptr unsafe.Pointer, n uintptr) {
	if n == 0 {
		return
	}
	b := unsafe.Slice((*byte)(ptr), n)
	clear(b)
}

// memcpy copies n bytes from src to dst. The engine only ever calls it
// with dst and src naming two distinct, non-overlapping blocks (Realloc
// allocates the destination before freeing the source), so a plain
// copy suffices.
func memcpy(dst, src unsafe.Pointer, n uintptr) {
	if n == 0 {
		return
	}
	dstSlice := unsafe.Slice((*byte)(dst), n)
	srcSlice := unsafe.Slice((*byte)(src), n)
	copy(dstSlice, srcSlice)
}
