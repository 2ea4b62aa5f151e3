// Package activity turns a noisy stream of user-interaction signals into a
// debounced activity pulse and a resettable inactivity deadline.
package activity

import "time"

// Kind tags the closed set of interaction signal sources. Keeping the set
// closed keeps the debounce logic independent of any concrete source.
type Kind int

const (
	// KindPointer covers pointer press and move.
	KindPointer Kind = iota
	// KindKey covers key press and key down.
	KindKey
	// KindScroll covers scroll.
	KindScroll
	// KindTouch covers touch start.
	KindTouch
	// KindClick covers explicit clicks.
	KindClick
	// KindVisibility covers visibility changes of the hosting surface.
	KindVisibility
	// KindSynthetic is the same-context programmatic signal, so non-UI
	// code (a successful API call, say) can also reset the deadline.
	KindSynthetic
)

func (k Kind) String() string {
	switch k {
	case KindPointer:
		return "pointer"
	case KindKey:
		return "key"
	case KindScroll:
		return "scroll"
	case KindTouch:
		return "touch"
	case KindClick:
		return "click"
	case KindVisibility:
		return "visibility"
	case KindSynthetic:
		return "synthetic"
	default:
		return "unknown"
	}
}

// Signal is one qualifying interaction observation.
type Signal struct {
	Kind Kind
	At   time.Time
}

// Source is a subscribable stream of signals. Hosts adapt their platform's
// event dispatch to this; the Pulse type covers the synthetic case.
type Source interface {
	// Subscribe registers fn for signals. The returned cancel is
	// idempotent.
	Subscribe(fn func(Signal)) (cancel func())
}
