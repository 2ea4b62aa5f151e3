// Package session implements the cross-context coordination protocol that
// keeps at most one authenticated session active per user.
//
// Contexts share a non-transactional key-value store and an unreliable
// broadcast channel. A login is announced over both, repeatedly, as
// at-least-once delivery; receivers apply the same-user/different-session
// rule and force their own logout when it matches. The protocol is correct
// under message loss, duplication, and arbitrary interleaving of the two
// paths; its only safety properties are that a context never treats its own
// login as foreign and never reacts to another user's login.
package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-session-guard/broadcast"
	"github.com/jrsteele09/go-session-guard/internal/utils"
	"github.com/jrsteele09/go-session-guard/store"
)

// Manager owns the session identifier lifecycle and the listen/broadcast/
// clear operations over both transport channels.
//
// The session id is held in a store private to this manager. It must never
// live in the shared medium: a second context's login would overwrite it
// there before the broadcast arrives, the receiver's self-echo check would
// then match the foreign id, and the forced logout would be suppressed.
type Manager struct {
	shared  store.Watchable
	local   store.Store
	channel broadcast.Channel

	keys         Keys
	redelivery   []time.Duration
	cleanupDelay time.Duration
	nowTime      func() time.Time
	log          zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithChannel sets the broadcast channel. Without one the manager degrades
// to store-only delivery, by design rather than as an error.
func WithChannel(ch broadcast.Channel) Option {
	return func(m *Manager) {
		m.channel = ch
	}
}

// WithSessionStore replaces the default in-memory session-id store, for
// hosts with a durable context-private medium (one file per context, say)
// whose session should survive a context restart. The store passed here
// must belong to this context alone; handing over the shared medium
// reintroduces the overwrite hazard described on Manager.
func WithSessionStore(st store.Store) Option {
	return func(m *Manager) {
		if st != nil {
			m.local = st
		}
	}
}

// WithKeys overrides the store key names.
func WithKeys(keys Keys) Option {
	return func(m *Manager) {
		m.keys = keys
	}
}

// WithRedeliverySchedule sets the channel redelivery delays for one login
// event. The repeats raise the odds that a context still wiring up its
// listener observes at least one copy.
func WithRedeliverySchedule(delays []time.Duration) Option {
	return func(m *Manager) {
		if len(delays) > 0 {
			m.redelivery = delays
		}
	}
}

// WithCleanupDelay sets how long timestamped login keys stay in the store.
func WithCleanupDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.cleanupDelay = d
		}
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithLogger sets the manager's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// New creates a Manager over the shared store.
func New(shared store.Watchable, options ...Option) (*Manager, error) {
	if shared == nil {
		return nil, NilStoreErr
	}
	m := &Manager{
		shared:       shared,
		local:        store.NewMemory(),
		keys:         DefaultKeys(),
		redelivery:   []time.Duration{0, 100 * time.Millisecond, 500 * time.Millisecond},
		cleanupDelay: 3 * time.Second,
		nowTime:      time.Now,
		log:          zerolog.Nop(),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// GenerateSessionID mints an identifier unique with overwhelming
// probability: a millisecond time component plus a random component.
// Session ids are compared by equality only; they are a liveness boundary,
// not a security one.
func (m *Manager) GenerateSessionID() string {
	return fmt.Sprintf("%d-%s", m.nowTime().UnixMilli(), uuid.NewString())
}

// InitializeSession mints, persists, and broadcasts a new session for
// userID. Callers invoke it once, after the credential and user record are
// durably stored, so receivers never compare against a half-written
// record. An empty userID returns EmptyUserIDErr and performs no write and
// no broadcast.
func (m *Manager) InitializeSession(userID string) (string, error) {
	normalized := utils.NormalizeID(userID)
	if normalized == "" {
		return "", EmptyUserIDErr
	}
	sessionID := m.GenerateSessionID()
	m.local.Set(m.keys.SessionID, sessionID)
	m.BroadcastNewLogin(normalized, sessionID)
	m.log.Info().Str("userID", normalized).Str("sessionID", sessionID).Msg("session initialised")
	return sessionID, nil
}

// SaveCredential writes the credential token and user record together, the
// single-writer store mutation the authenticating context performs before
// InitializeSession.
func (m *Manager) SaveCredential(authToken string, user User) {
	payload, err := json.Marshal(user)
	if err != nil {
		// A flat struct of strings cannot fail to marshal.
		return
	}
	m.shared.Set(m.keys.AuthToken, authToken)
	m.shared.Set(m.keys.User, string(payload))
}

// BroadcastNewLogin announces one login event over both delivery paths.
// Neither path is individually reliable; together they are at-least-once
// for any context with a registered listener, and receivers treat the two
// as duplicate delivery of one event.
func (m *Manager) BroadcastNewLogin(userID, sessionID string) {
	msg := NewLogin{
		UserID:    utils.NormalizeID(userID),
		SessionID: sessionID,
		Timestamp: m.nowTime().UnixMilli(),
	}
	if msg.UserID == "" || msg.SessionID == "" {
		return
	}
	m.postWithRedelivery(msg)
	m.writeStoreCopies(msg)
}

func (m *Manager) postWithRedelivery(msg NewLogin) {
	if m.channel == nil {
		return
	}
	payload := encodeNewLogin(msg, "")
	for _, delay := range m.redelivery {
		if delay <= 0 {
			m.post(payload)
			continue
		}
		time.AfterFunc(delay, func() { m.post(payload) })
	}
}

func (m *Manager) post(payload []byte) {
	if err := m.channel.Post(payload); err != nil {
		// Best-effort path; the store copy is the fallback.
		m.log.Debug().Err(err).Msg("channel post failed")
	}
}

func (m *Manager) writeStoreCopies(msg NewLogin) {
	// The nonce forces the stored value to differ even for logically
	// identical repeats; other contexts are only notified when the value
	// actually changes.
	payload := string(encodeNewLogin(msg, uuid.NewString()))
	m.shared.Set(m.keys.NewLogin, payload)

	stamped := m.keys.stampedNewLogin(msg.Timestamp)
	m.shared.Set(stamped, payload)
	time.AfterFunc(m.cleanupDelay, func() { m.shared.Remove(stamped) })
}

// listenerReg tracks the (user, session) pairs one registration has already
// dispatched, bounding redundant deliveries to one callback per pair.
type listenerReg struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// ListenForNewLogin registers callback on both delivery paths. The
// callback fires at most once per distinct qualifying (userID, sessionID)
// pair; deliveries failing the same-user/different-session rule, malformed
// payloads, and deliveries while unauthenticated are discarded. The
// returned teardown removes both subscriptions and is safe to call
// repeatedly.
func (m *Manager) ListenForNewLogin(callback func(NewLogin)) (teardown func()) {
	if callback == nil {
		return func() {}
	}
	reg := &listenerReg{seen: map[string]struct{}{}}
	deliver := func(payload []byte) {
		msg, ok := decodeNewLogin(payload)
		if !ok {
			m.log.Debug().Msg("discarding malformed login payload")
			return
		}
		m.dispatch(reg, msg, callback)
	}

	var cancelChannel func()
	if m.channel != nil {
		cancelChannel = m.channel.Subscribe(deliver)
	}
	cancelStore := m.shared.Watch(func(change store.Change) {
		if change.Removed || !m.keys.isNewLoginKey(change.Key) {
			return
		}
		deliver([]byte(change.Value))
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			if cancelChannel != nil {
				cancelChannel()
			}
			cancelStore()
		})
	}
}

// dispatch applies the same-user/different-session rule, then the
// per-registration duplicate bound, before invoking the callback.
func (m *Manager) dispatch(reg *listenerReg, msg NewLogin, callback func(NewLogin)) {
	if _, authenticated := m.shared.Get(m.keys.AuthToken); !authenticated {
		return // a foreign login for a logged-out context is not actionable
	}
	localUser := m.CurrentUserID()
	if localUser == "" || localUser != msg.UserID {
		return
	}
	if m.CurrentSessionID() == msg.SessionID {
		return // this context's own login echoed back
	}

	pair := msg.UserID + "\x00" + msg.SessionID
	reg.mu.Lock()
	if _, dup := reg.seen[pair]; dup {
		reg.mu.Unlock()
		return
	}
	reg.seen[pair] = struct{}{}
	reg.mu.Unlock()

	m.log.Info().Str("userID", msg.UserID).Str("sessionID", msg.SessionID).
		Msg("foreign login observed for local user")
	callback(msg)
}

// ClearSession removes the session id, credential, and user record in one
// synchronous turn. Any broadcast re-delivery this context sees afterwards
// fails the not-authenticated guard.
func (m *Manager) ClearSession() {
	m.local.Remove(m.keys.SessionID)
	m.shared.Remove(m.keys.AuthToken)
	m.shared.Remove(m.keys.User)
	m.log.Info().Msg("session cleared")
}

// CurrentSessionID reads the local session id; empty when absent.
func (m *Manager) CurrentSessionID() string {
	v, _ := m.local.Get(m.keys.SessionID)
	return v
}

// CurrentUser reads the stored user record. A malformed record reads as
// absent rather than erroring.
func (m *Manager) CurrentUser() (User, bool) {
	payload, ok := m.shared.Get(m.keys.User)
	if !ok {
		return User{}, false
	}
	return decodeUser(payload)
}

// CurrentUserID reads the stored user's normalized id; empty when absent
// or corrupt.
func (m *Manager) CurrentUserID() string {
	user, ok := m.CurrentUser()
	if !ok {
		return ""
	}
	return user.ID
}

// EnsureSessionID repairs the dangling-invariant case: a credential with no
// session id (sessions created before this subsystem existed). It mints
// and stores a fresh id so future comparisons are well-defined, and
// deliberately does not broadcast, since a repair is not a new login.
// Returns the effective id and whether one was minted.
func (m *Manager) EnsureSessionID() (string, bool) {
	if current := m.CurrentSessionID(); current != "" {
		return current, false
	}
	if _, authenticated := m.shared.Get(m.keys.AuthToken); !authenticated {
		return "", false
	}
	sessionID := m.GenerateSessionID()
	m.local.Set(m.keys.SessionID, sessionID)
	m.log.Info().Str("sessionID", sessionID).Msg("repaired dangling session id")
	return sessionID, true
}
