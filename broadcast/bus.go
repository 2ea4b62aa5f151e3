package broadcast

import "sync"

// Bus is an in-process broadcast medium. Members joined to the same topic
// receive each other's posts; a member never receives its own. It serves
// single-process hosts and is the primary test vehicle.
type Bus struct {
	mu     sync.Mutex
	topics map[string]map[*Member]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{topics: map[string]map[*Member]struct{}{}}
}

// Join returns a new member handle on the named topic, creating the topic
// on first use.
func (b *Bus) Join(topic string) *Member {
	m := &Member{bus: b, topic: topic, handlers: map[int]Handler{}}
	b.mu.Lock()
	if b.topics[topic] == nil {
		b.topics[topic] = map[*Member]struct{}{}
	}
	b.topics[topic][m] = struct{}{}
	b.mu.Unlock()
	return m
}

// Member is one execution context's handle on a bus topic.
type Member struct {
	bus   *Bus
	topic string

	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
	closed   bool
}

var _ Channel = (*Member)(nil)

// Post implements Channel. Delivery to other members is synchronous; the
// payload must not be mutated afterwards.
func (m *Member) Post(payload []byte) error {
	m.bus.mu.Lock()
	var handlers []Handler
	for other := range m.bus.topics[m.topic] {
		if other == m {
			continue
		}
		other.mu.Lock()
		for _, fn := range other.handlers {
			handlers = append(handlers, fn)
		}
		other.mu.Unlock()
	}
	m.bus.mu.Unlock()

	for _, fn := range handlers {
		fn(payload)
	}
	return nil
}

// Subscribe implements Channel.
func (m *Member) Subscribe(fn Handler) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.handlers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.handlers, id)
			m.mu.Unlock()
		})
	}
}

// Close leaves the topic. Idempotent.
func (m *Member) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.bus.mu.Lock()
	if members := m.bus.topics[m.topic]; members != nil {
		delete(members, m)
		if len(members) == 0 {
			delete(m.bus.topics, m.topic)
		}
	}
	m.bus.mu.Unlock()
}
