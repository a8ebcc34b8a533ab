package buddy

import (
	"fmt"
	"unsafe"
)

// maxOrder bounds order the same way the reference's 32-bit size-class
// search does (lg2Ceil operates on a uint64 but never needs more than
// 31 significant bits for any region this engine can address via a
// single uint32-packed Bitvector word count).
const maxOrder = 31

// Engine is the buddy-tree allocator core. It manages a single
// contiguous region [base, base+2^order) and a Bitvector tracking one
// NodeState per tree node. Engine is single-threaded and non-reentrant;
// callers needing concurrent access must serialize with an external
// mutex (see package doc).
type Engine struct {
	base     unsafe.Pointer
	order    uint
	tree     *Bitvector
	observer Observer
	label    Label
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithObserver registers a callback notified of allocation, free, and
// out-of-memory events. A nil observer (the default) costs nothing: the
// engine checks it once per call and skips the notification entirely.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLabel attaches a human-readable, NFC-normalized label to the pool,
// carried on every observer Event. The engine has no other diagnostic
// output for it to appear in.
func WithLabel(name string) Option {
	return func(e *Engine) { e.label = NewLabel(name) }
}

// New constructs an Engine managing the region [base, base+2^order)
// backed by storage. storage is zeroed; the caller must not touch it
// again directly. order must be in [1, 31] and storage must have
// capacity for at least 2^(order+1)-1 cells (use RequiredWords to size
// a caller-owned buffer).
func New(base unsafe.Pointer, order uint, storage *Bitvector, opts ...Option) (Allocator, error) {
	if order < 1 || order > maxOrder {
		return nil, fmt.Errorf("buddy: order must be in [1, %d], got %d", maxOrder, order)
	}
	needCells := (1 << (order + 1)) - 1
	if storage == nil {
		return nil, fmt.Errorf("buddy: storage must not be nil")
	}
	if storage.Len() < needCells {
		return nil, fmt.Errorf("buddy: storage holds %d cells, need %d for order %d", storage.Len(), needCells, order)
	}

	storage.Zero()
	e := &Engine{base: base, order: order, tree: storage}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewWithStorage is a hosted-use convenience constructor that allocates
// its own metadata buffer instead of requiring the caller to supply
// one. The freestanding-facing New always takes caller-owned storage;
// this variant exists for tests and tooling run under a normal Go
// runtime where an extra heap allocation at startup is unremarkable.
func NewWithStorage(base unsafe.Pointer, order uint, opts ...Option) (Allocator, error) {
	if order < 1 || order > maxOrder {
		return nil, fmt.Errorf("buddy: order must be in [1, %d], got %d", maxOrder, order)
	}
	cells := (1 << (order + 1)) - 1
	words := make([]uint32, RequiredWords(cells))
	bv, err := NewBitvector(words, cells)
	if err != nil {
		return nil, err
	}
	return New(base, order, bv, opts...)
}

func (e *Engine) offset(index int, level uint) unsafe.Pointer {
	return unsafe.Add(e.base, nodeOffset(index, level, e.order))
}

// Alloc allocates the smallest power-of-two block whose size is at
// least max(size, 1). It returns (base, 0) on out-of-memory.
func (e *Engine) Alloc(size uintptr) (unsafe.Pointer, uintptr) {
	target := lg2Ceil(size)
	if target > e.order {
		e.notify(Event{Kind: EventOOM, RequestedSize: size})
		return e.base, 0
	}

	index := 0
	level := e.order

	for {
		state := e.tree.Get(index)
		switch {
		case state == Unused && level == target:
			e.tree.Set(index, Used)
			e.fixupFull(index)
			granted := blockLen(level)
			ptr := e.offset(index, level)
			e.notify(Event{Kind: EventAlloc, Pointer: ptr, RequestedSize: size, GrantedSize: granted})
			return ptr, granted
		case state == Unused: // level > target: this subtree is free but too big.
			e.tree.Set(index, Split)
			e.tree.Set(leftChild(index), Unused)
			e.tree.Set(rightChild(index), Unused)
			index, level = leftChild(index), level-1
		case state == Split && level > target:
			index, level = leftChild(index), level-1
		default: // Used, Full, or a Split node already at the target level.
			var oom bool
			index, level, oom = e.backtrack(index, level)
			if oom {
				e.notify(Event{Kind: EventOOM, RequestedSize: size})
				return e.base, 0
			}
		}
	}
}

// backtrack walks from (index, level) toward the root along
// right-sibling successors: if index is the left child, move to its
// right sibling at the same level; otherwise climb to the parent and
// retry. Reaching the root without an unexplored right sibling is OOM.
func (e *Engine) backtrack(index int, level uint) (newIndex int, newLevel uint, oom bool) {
	for {
		if isLeftChild(index) {
			return index + 1, level, false
		}
		if index == 0 {
			return 0, level, true
		}
		index = parentOf(index)
		level++
	}
}

// fixupFull walks upward from a just-placed Used node, promoting any
// parent whose other child is also Used or Full to Full, pruning future
// descents into saturated subtrees.
func (e *Engine) fixupFull(index int) {
	for index > 0 {
		buddy := buddyOf(index)
		switch e.tree.Get(buddy) {
		case Used, Full:
			index = parentOf(index)
			e.tree.Set(index, Full)
		default:
			return
		}
	}
}

// ZeroAlloc is Alloc followed by clearing the granted range.
func (e *Engine) ZeroAlloc(size uintptr) (unsafe.Pointer, uintptr) {
	ptr, granted := e.Alloc(size)
	if granted > 0 {
		memclr(ptr, granted)
	}
	return ptr, granted
}

// Realloc recovers ptr's current granted size, allocates a new block
// for size, copies min(old, new) bytes across, then frees ptr. The
// allocate-before-free ordering guarantees the new block can never
// alias storage the copy is still about to read; freeing first could
// hand the old block straight back as the destination. On OOM, ptr is
// left allocated and untouched.
func (e *Engine) Realloc(ptr unsafe.Pointer, size uintptr) (unsafe.Pointer, uintptr) {
	oldSize, found := e.locate(ptr)

	newPtr, newSize := e.Alloc(size)
	if newSize == 0 {
		// OOM: leave the original allocation untouched.
		return newPtr, newSize
	}

	if found && oldSize > 0 && newPtr != ptr {
		n := oldSize
		if newSize < n {
			n = newSize
		}
		memcpy(newPtr, ptr, n)
	}

	if found {
		e.Free(ptr)
	}
	return newPtr, newSize
}

// Free releases the block at ptr. Pointers outside the managed region
// and double-frees are silent no-ops.
func (e *Engine) Free(ptr unsafe.Pointer) {
	offset := uintptr(ptr) - uintptr(e.base)
	if uintptr(ptr) < uintptr(e.base) || offset >= blockLen(e.order) {
		return
	}

	length := blockLen(e.order)
	var left uintptr
	index := 0

	for {
		switch e.tree.Get(index) {
		case Unused:
			return
		case Used:
			granted := length
			e.coalesce(index)
			e.notify(Event{Kind: EventFree, Pointer: ptr, GrantedSize: granted})
			return
		default: // Split or Full: keep descending.
			length /= 2
			if offset < left+length {
				index = leftChild(index)
			} else {
				left += length
				index = rightChild(index)
			}
		}
	}
}

// coalesce marks a just-freed node UNUSED, merging it upward with its
// buddy for as long as the buddy is also UNUSED. It climbs one level at
// a time without writing anything while the buddy stays UNUSED; the
// node left behind at a lower level becomes unreachable the moment an
// ancestor is written UNUSED, since every descent starts at the root
// and stops at the first UNUSED node it meets. The climb stops and
// writes UNUSED at the first level whose buddy is still occupied (Used,
// Split, or Full), or at the root. Any Full ancestor above the write
// point can no longer be Full now that one of its descendants is free,
// so it is demoted to Split the same way fixupFull's promotion is
// undone.
func (e *Engine) coalesce(index int) {
	for {
		if index == 0 {
			e.tree.Set(0, Unused)
			return
		}
		buddy := buddyOf(index)
		if e.tree.Get(buddy) != Unused {
			e.tree.Set(index, Unused)
			e.demoteFull(parentOf(index))
			return
		}
		index = parentOf(index)
	}
}

// demoteFull walks from index toward the root, flipping Full nodes back
// to Split, stopping at the first non-Full ancestor (root included).
func (e *Engine) demoteFull(index int) {
	for {
		if e.tree.Get(index) != Full {
			return
		}
		e.tree.Set(index, Split)
		if index == 0 {
			return
		}
		index = parentOf(index)
	}
}

// locate recovers the granted size of the Used node covering ptr, using
// the same halving descent Free uses. It returns found=false if ptr is
// outside the region or does not currently name a Used block.
func (e *Engine) locate(ptr unsafe.Pointer) (size uintptr, found bool) {
	offset := uintptr(ptr) - uintptr(e.base)
	if uintptr(ptr) < uintptr(e.base) || offset >= blockLen(e.order) {
		return 0, false
	}

	length := blockLen(e.order)
	var left uintptr
	index := 0

	for {
		switch e.tree.Get(index) {
		case Unused:
			return 0, false
		case Used:
			return length, true
		default:
			length /= 2
			if offset < left+length {
				index = leftChild(index)
			} else {
				left += length
				index = rightChild(index)
			}
		}
	}
}

func (e *Engine) notify(ev Event) {
	if e.observer == nil {
		return
	}
	ev.Label = e.label
	e.observer(ev)
}
