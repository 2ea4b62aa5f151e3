// Package broadcast provides the best-effort publish/subscribe channel the
// coordination protocol uses alongside the shared store.
//
// Delivery is at-most-once per transport hop and unordered relative to
// store writes; a sender never receives its own posts. Consumers must be
// written to tolerate loss and duplication; the protocol layers its own
// redundancy on top.
package broadcast

// Handler receives a raw message payload.
type Handler func(payload []byte)

// Channel is a named-topic, origin-scoped broadcast primitive.
//
// A nil Channel is a valid degraded mode: hosts whose environment has no
// broadcast primitive run store-only and must not fail.
type Channel interface {
	// Post publishes payload to every other member of the topic.
	// Best-effort: an error means the local send failed, not that nobody
	// received it, and a nil error does not mean anybody did.
	Post(payload []byte) error

	// Subscribe registers fn for payloads posted by other members. The
	// returned cancel is idempotent.
	Subscribe(fn Handler) (cancel func())
}
