package store

import "sync"

// Origin is an in-process backing medium shared by any number of Contexts,
// the way one browser origin's storage is shared by its tabs. It is the
// primary test vehicle and also serves single-process hosts.
type Origin struct {
	mu       sync.Mutex
	values   map[string]string
	contexts map[*Context]struct{}
}

// NewOrigin creates an empty shared medium.
func NewOrigin() *Origin {
	return &Origin{
		values:   map[string]string{},
		contexts: map[*Context]struct{}{},
	}
}

// NewContext returns a new handle onto the shared medium. Each handle is an
// independent execution context: it observes the others' writes, never its
// own.
func (o *Origin) NewContext() *Context {
	c := &Context{origin: o, set: newWatcherSet()}
	o.mu.Lock()
	o.contexts[c] = struct{}{}
	o.mu.Unlock()
	return c
}

// Context is one execution context's handle onto an Origin.
type Context struct {
	origin *Origin

	mu  sync.Mutex
	set *watcherSet
}

var _ Watchable = (*Context)(nil)

// Get implements Store.
func (c *Context) Get(key string) (string, bool) {
	c.origin.mu.Lock()
	defer c.origin.mu.Unlock()
	v, ok := c.origin.values[key]
	return v, ok
}

// Set implements Store. Other contexts' watchers fire only when the stored
// value actually changes.
func (c *Context) Set(key, value string) {
	c.origin.mu.Lock()
	if old, ok := c.origin.values[key]; ok && old == value {
		c.origin.mu.Unlock()
		return
	}
	c.origin.values[key] = value
	others := c.origin.othersLocked(c)
	c.origin.mu.Unlock()

	dispatch(others, Change{Key: key, Value: value})
}

// Remove implements Store.
func (c *Context) Remove(key string) {
	c.origin.mu.Lock()
	if _, ok := c.origin.values[key]; !ok {
		c.origin.mu.Unlock()
		return
	}
	delete(c.origin.values, key)
	others := c.origin.othersLocked(c)
	c.origin.mu.Unlock()

	dispatch(others, Change{Key: key, Removed: true})
}

// Watch implements Watchable.
func (c *Context) Watch(fn func(Change)) (cancel func()) {
	c.mu.Lock()
	id := c.set.add(fn)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.set.remove(id)
			c.mu.Unlock()
		})
	}
}

// Close detaches the context from the origin. Further writes by others are
// no longer observed.
func (c *Context) Close() {
	c.origin.mu.Lock()
	delete(c.origin.contexts, c)
	c.origin.mu.Unlock()
}

// Memory is a plain private key-value store owned by a single context.
// Nothing else can observe it, so it carries no watch machinery; it backs
// per-context state such as the session id.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty private store.
func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

// Get implements Store.
func (m *Memory) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// Set implements Store.
func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// Remove implements Store.
func (m *Memory) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

// othersLocked collects every watcher registered by contexts other than
// skip. Caller holds o.mu.
func (o *Origin) othersLocked(skip *Context) []func(Change) {
	var out []func(Change)
	for ctx := range o.contexts {
		if ctx == skip {
			continue
		}
		ctx.mu.Lock()
		out = append(out, ctx.set.snapshot()...)
		ctx.mu.Unlock()
	}
	return out
}

func dispatch(watchers []func(Change), change Change) {
	for _, fn := range watchers {
		fn(change)
	}
}
