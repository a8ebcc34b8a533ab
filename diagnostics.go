package buddy

import (
	"fmt"
	"unsafe"

	"golang.org/x/text/unicode/norm"
)

// Label is a human-readable pool name attached to diagnostic output.
// It is normalized to Unicode NFC at construction so that two labels
// built from differently-composed source strings (e.g. precomposed vs.
// decomposed accents) compare and print identically — the same
// normalization policy this package's sibling library applies to its
// own string keys, repurposed here for diagnostics instead of ordering.
type Label string

// NewLabel normalizes s to NFC and returns it as a Label.
func NewLabel(s string) Label {
	return Label(norm.NFC.String(s))
}

// EventKind identifies the kind of lifecycle event an Observer receives.
type EventKind byte

const (
	// EventAlloc fires after a successful Alloc/ZeroAlloc placement.
	EventAlloc EventKind = iota
	// EventFree fires after Free clears a Used node.
	EventFree
	// EventOOM fires when Alloc/ZeroAlloc/Realloc cannot satisfy a request.
	EventOOM
)

func (k EventKind) String() string {
	switch k {
	case EventAlloc:
		return "alloc"
	case EventFree:
		return "free"
	case EventOOM:
		return "oom"
	default:
		return fmt.Sprintf("EventKind(%d)", byte(k))
	}
}

// Event describes a single allocation-lifecycle occurrence, delivered
// to an Observer registered via WithObserver. Event is purely
// informational: the engine never consults an Observer's return value
// or blocks on it.
type Event struct {
	Kind          EventKind
	Pointer       unsafe.Pointer // set for EventAlloc/EventFree, nil for EventOOM
	RequestedSize uintptr        // set for EventAlloc/EventOOM
	GrantedSize   uintptr        // set for EventAlloc/EventFree
	Label         Label
}

// Observer is notified of allocation, free, and out-of-memory events.
// Implementations must not call back into the Engine that invoked them;
// the engine is mid-operation and is not reentrant (see package doc).
type Observer func(Event)

// String renders a short, human-readable summary of the event,
// prefixed with the pool's label when one was set.
func (e Event) String() string {
	prefix := ""
	if e.Label != "" {
		prefix = string(e.Label) + ": "
	}
	switch e.Kind {
	case EventAlloc:
		return fmt.Sprintf("%s%s requested=%d granted=%d", prefix, e.Kind, e.RequestedSize, e.GrantedSize)
	case EventFree:
		return fmt.Sprintf("%s%s granted=%d", prefix, e.Kind, e.GrantedSize)
	case EventOOM:
		return fmt.Sprintf("%s%s requested=%d", prefix, e.Kind, e.RequestedSize)
	default:
		return fmt.Sprintf("%s%s", prefix, e.Kind)
	}
}
