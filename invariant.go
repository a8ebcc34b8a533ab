package buddy

import (
	"fmt"
	"unsafe"

	set3 "github.com/TomTonic/Set3"
)

// blockRange is the byte range of one outstanding allocation, keyed by
// its base address for Set3 membership but carrying its size too so
// Tracker can check disjointness and alignment.
type blockRange struct {
	base uintptr
	size uintptr
}

// Tracker wraps an Allocator and a managed region's bounds, and checks
// P1 (address range), P2 (alignment), P3 (disjointness), P6 (idempotent
// free), and P7 (out-of-region safety) across a sequence of calls. It
// is a test-time harness, not a production dependency of Engine: the
// outstanding-allocation bookkeeping below is exactly the kind of
// membership tracking this package's sibling library builds with
// Set3 — reused here for addresses instead of map keys.
type Tracker struct {
	alloc      Allocator
	base       uintptr
	regionSize uintptr
	live       *set3.Set3[uintptr]
	ranges     map[uintptr]blockRange
}

// NewTracker wraps alloc, whose managed region is [base, base+2^order).
func NewTracker(alloc Allocator, base unsafe.Pointer, order uint) *Tracker {
	return &Tracker{
		alloc:      alloc,
		base:       uintptr(base),
		regionSize: uintptr(1) << order,
		live:       set3.Empty[uintptr](),
		ranges:     make(map[uintptr]blockRange),
	}
}

// Alloc performs alloc.Alloc(size), checks P1/P2, and records the
// result for later disjointness checks. It returns an error (rather
// than panicking) so callers can fold it into a table-driven test
// failure message.
func (tr *Tracker) Alloc(size uintptr) (unsafe.Pointer, uintptr, error) {
	ptr, granted := tr.alloc.Alloc(size)
	if granted == 0 {
		return ptr, 0, nil
	}
	if err := tr.checkRange(ptr, granted); err != nil {
		return ptr, granted, err
	}
	if err := tr.checkAlignment(ptr, granted); err != nil {
		return ptr, granted, err
	}
	if err := tr.checkDisjoint(ptr, granted); err != nil {
		return ptr, granted, err
	}
	tr.record(ptr, granted)
	return ptr, granted, nil
}

// Free performs alloc.Free(ptr) and updates bookkeeping. Freeing the
// same pointer twice (P6) or a pointer outside the region (P7) is
// accepted silently, matching Engine's own contract.
func (tr *Tracker) Free(ptr unsafe.Pointer) {
	tr.alloc.Free(ptr)
	addr := uintptr(ptr)
	if r, ok := tr.ranges[addr]; ok {
		delete(tr.ranges, addr)
		tr.live.Remove(r.base)
	}
}

// Outstanding returns the number of allocations Tracker believes are
// still live.
func (tr *Tracker) Outstanding() int {
	return len(tr.ranges)
}

// LiveAddresses returns a snapshot of the base addresses currently
// outstanding, for comparing two points in a test sequence (e.g. P6:
// the live set after Free(p); Free(p) must equal the live set after a
// single Free(p)).
func (tr *Tracker) LiveAddresses() *set3.Set3[uintptr] {
	return tr.live.Clone()
}

func (tr *Tracker) record(ptr unsafe.Pointer, size uintptr) {
	addr := uintptr(ptr)
	tr.ranges[addr] = blockRange{base: addr, size: size}
	tr.live.Add(addr)
}

func (tr *Tracker) checkRange(ptr unsafe.Pointer, size uintptr) error {
	addr := uintptr(ptr)
	if addr < tr.base || addr+size > tr.base+tr.regionSize {
		return fmt.Errorf("P1 violated: [%d, %d) escapes region [%d, %d)", addr, addr+size, tr.base, tr.base+tr.regionSize)
	}
	return nil
}

func (tr *Tracker) checkAlignment(ptr unsafe.Pointer, size uintptr) error {
	addr := uintptr(ptr)
	if (addr-tr.base)%size != 0 {
		return fmt.Errorf("P2 violated: offset %d is not aligned to granted size %d", addr-tr.base, size)
	}
	return nil
}

func (tr *Tracker) checkDisjoint(ptr unsafe.Pointer, size uintptr) error {
	addr := uintptr(ptr)
	newEnd := addr + size
	for _, r := range tr.ranges {
		if addr < r.base+r.size && r.base < newEnd {
			return fmt.Errorf("P3 violated: [%d, %d) overlaps outstanding [%d, %d)", addr, newEnd, r.base, r.base+r.size)
		}
	}
	return nil
}
