package guard

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-session-guard/session"
)

// LoginWatcher forces a local logout when the same user logs in from
// another context. At mount it also performs the one-time repair of a
// credential left without a session id, so later comparisons are
// well-defined; the repair never broadcasts.
type LoginWatcher struct {
	sessions *session.Manager
	redirect Redirect
	log      zerolog.Logger

	mu       sync.Mutex
	teardown func()
}

// WatcherOption configures a LoginWatcher.
type WatcherOption func(*LoginWatcher)

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(log zerolog.Logger) WatcherOption {
	return func(w *LoginWatcher) {
		w.log = log
	}
}

// NewLoginWatcher wires the session manager's listener to the forced
// logout policy.
func NewLoginWatcher(sessions *session.Manager, redirect Redirect, options ...WatcherOption) (*LoginWatcher, error) {
	if sessions == nil {
		return nil, NilSessionsErr
	}
	if redirect == nil {
		return nil, NilRedirectErr
	}
	w := &LoginWatcher{sessions: sessions, redirect: redirect, log: zerolog.Nop()}
	for _, opt := range options {
		opt(w)
	}
	return w, nil
}

// Start repairs a dangling session id if present and begins listening.
// Stop-then-start when already listening; hosts mount it once per
// authenticated session lifetime.
func (w *LoginWatcher) Start() {
	w.Stop()

	if _, minted := w.sessions.EnsureSessionID(); minted {
		w.log.Debug().Msg("minted session id for pre-existing credential")
	}

	// Registration and publication happen under one lock: a delivery
	// racing the mount blocks in the callback's Stop until the teardown
	// is visible, so the subscription can never outlive the forced logout.
	w.mu.Lock()
	w.teardown = w.sessions.ListenForNewLogin(func(msg session.NewLogin) {
		// Unsubscribe before acting so redundant deliveries of the same
		// event cannot re-enter; clearing the session then suppresses
		// anything already in flight.
		w.Stop()
		w.sessions.ClearSession()
		w.log.Info().Str("sessionID", msg.SessionID).Msg("concurrent login elsewhere, forcing logout")
		w.redirect(ReasonConcurrentLogin)
	})
	w.mu.Unlock()
}

// Stop removes the listener. Idempotent and safe to call from within the
// forced-logout path itself.
func (w *LoginWatcher) Stop() {
	w.mu.Lock()
	teardown := w.teardown
	w.teardown = nil
	w.mu.Unlock()
	if teardown != nil {
		teardown()
	}
}

// Listening reports whether the watcher currently holds a subscription.
func (w *LoginWatcher) Listening() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.teardown != nil
}
