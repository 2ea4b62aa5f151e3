// Package store models the shared key-value medium that independent
// contexts coordinate through.
//
// The defining property, carried over from the browser storage-event
// semantics this mirrors, is that a watcher observes mutations made by
// other contexts but never this handle's own writes, and only when the
// stored value actually changes. Writes are last-writer-wins; there are no
// transactions and no compare-and-swap.
package store

// Change describes a single key mutation observed from another context.
type Change struct {
	Key     string
	Value   string
	Removed bool
}

// Store is a synchronously readable and writable key-value medium.
type Store interface {
	// Get returns the value for key and whether it is present.
	Get(key string) (string, bool)

	// Set writes key to value. Writing the current value is a no-op for
	// watchers in other contexts.
	Set(key, value string)

	// Remove deletes key. Removing an absent key is a no-op.
	Remove(key string)
}

// Watchable is a Store that reports mutations made by other contexts
// sharing the same backing medium.
type Watchable interface {
	Store

	// Watch registers fn for external changes. It never fires for this
	// handle's own writes. The returned cancel is idempotent.
	Watch(fn func(Change)) (cancel func())
}

// watcherSet is the shared subscription registry used by every backend.
type watcherSet struct {
	watchers map[int]func(Change)
	nextID   int
}

func newWatcherSet() *watcherSet {
	return &watcherSet{watchers: map[int]func(Change){}}
}

// add registers fn and returns its registration id.
func (ws *watcherSet) add(fn func(Change)) int {
	id := ws.nextID
	ws.nextID++
	ws.watchers[id] = fn
	return id
}

func (ws *watcherSet) remove(id int) {
	delete(ws.watchers, id)
}

// snapshot returns the current callbacks so dispatch can run unlocked.
func (ws *watcherSet) snapshot() []func(Change) {
	out := make([]func(Change), 0, len(ws.watchers))
	for _, fn := range ws.watchers {
		out = append(out, fn)
	}
	return out
}
