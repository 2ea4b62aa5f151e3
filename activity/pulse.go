package activity

import (
	"sync"
	"time"
)

// Pulse is a programmatically driven Source. One Pulse models one signal
// source; hosts typically hold a KindSynthetic pulse and Emit on events
// such as completed API calls.
type Pulse struct {
	kind Kind

	mu     sync.Mutex
	subs   map[int]func(Signal)
	nextID int
}

var _ Source = (*Pulse)(nil)

// NewPulse creates a pulse source of the given kind.
func NewPulse(kind Kind) *Pulse {
	return &Pulse{kind: kind, subs: map[int]func(Signal){}}
}

// Kind reports the signal kind this pulse emits.
func (p *Pulse) Kind() Kind {
	return p.kind
}

// Emit delivers one signal, stamped now, to every subscriber.
func (p *Pulse) Emit() {
	p.EmitAt(time.Now())
}

// EmitAt delivers one signal with an explicit timestamp.
func (p *Pulse) EmitAt(at time.Time) {
	p.mu.Lock()
	subs := make([]func(Signal), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	sig := Signal{Kind: p.kind, At: at}
	for _, fn := range subs {
		fn(sig)
	}
}

// Subscribe implements Source.
func (p *Pulse) Subscribe(fn func(Signal)) (cancel func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// DefaultSources returns one pulse per interaction kind, synthetic
// included, for hosts that feed all platform events through pulses.
func DefaultSources() map[Kind]*Pulse {
	kinds := []Kind{KindPointer, KindKey, KindScroll, KindTouch, KindClick, KindVisibility, KindSynthetic}
	out := make(map[Kind]*Pulse, len(kinds))
	for _, k := range kinds {
		out[k] = NewPulse(k)
	}
	return out
}
