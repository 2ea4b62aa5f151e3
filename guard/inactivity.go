package guard

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-session-guard/activity"
	"github.com/jrsteele09/go-session-guard/session"
)

const (
	defaultInactivityTimeout = 30 * time.Minute
	defaultWarningThreshold  = time.Minute
	defaultPollInterval      = time.Second
)

// InactivityGuard expires the session after a bounded period of no user
// interaction. While tracking, it samples the remaining time on a fixed
// cadence and raises a countdown warning inside the threshold; when the
// deadline fires, it clears the session and asks the host to redirect.
type InactivityGuard struct {
	sessions *session.Manager
	redirect Redirect
	tracker  *activity.Tracker

	warner       Warner
	timeout      time.Duration
	threshold    time.Duration
	pollInterval time.Duration
	window       time.Duration
	log          zerolog.Logger

	mu       sync.Mutex
	pollDone chan struct{}
	warned   bool
}

// InactivityOption configures an InactivityGuard.
type InactivityOption func(*InactivityGuard)

// WithTimeout sets the inactivity timeout (default 30 minutes).
func WithTimeout(d time.Duration) InactivityOption {
	return func(g *InactivityGuard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithWarningThreshold sets how close to expiry the warning starts
// (default 60 seconds).
func WithWarningThreshold(d time.Duration) InactivityOption {
	return func(g *InactivityGuard) {
		if d > 0 {
			g.threshold = d
		}
	}
}

// WithPollInterval sets the countdown sampling cadence (default 1 second).
func WithPollInterval(d time.Duration) InactivityOption {
	return func(g *InactivityGuard) {
		if d > 0 {
			g.pollInterval = d
		}
	}
}

// WithWarner sets the countdown warning receiver.
func WithWarner(w Warner) InactivityOption {
	return func(g *InactivityGuard) {
		g.warner = w
	}
}

// WithDebounceWindow sets the tracker's debounce window.
func WithDebounceWindow(d time.Duration) InactivityOption {
	return func(g *InactivityGuard) {
		if d > 0 {
			g.window = d
		}
	}
}

// WithLogger sets the guard's logger.
func WithLogger(log zerolog.Logger) InactivityOption {
	return func(g *InactivityGuard) {
		g.log = log
	}
}

// NewInactivityGuard wires an activity tracker over the given sources to
// the session-expiry policy.
func NewInactivityGuard(
	sessions *session.Manager,
	sources []activity.Source,
	redirect Redirect,
	options ...InactivityOption,
) (*InactivityGuard, error) {
	if sessions == nil {
		return nil, NilSessionsErr
	}
	if redirect == nil {
		return nil, NilRedirectErr
	}

	g := &InactivityGuard{
		sessions:     sessions,
		redirect:     redirect,
		timeout:      defaultInactivityTimeout,
		threshold:    defaultWarningThreshold,
		pollInterval: defaultPollInterval,
		window:       0,
		log:          zerolog.Nop(),
	}
	for _, opt := range options {
		opt(g)
	}

	trackerOpts := []activity.Option{
		activity.OnInactive(g.expire),
		activity.WithLogger(g.log),
	}
	if g.window > 0 {
		trackerOpts = append(trackerOpts, activity.WithDebounceWindow(g.window))
	}
	g.tracker = activity.New(g.timeout, sources, trackerOpts...)
	return g, nil
}

// Start begins tracking and polling. Stop-then-start when already running;
// hosts call it once per authenticated session lifetime, not per render.
func (g *InactivityGuard) Start() {
	g.Stop()
	g.tracker.Start()

	g.mu.Lock()
	done := make(chan struct{})
	g.pollDone = done
	g.warned = false
	g.mu.Unlock()

	go g.pollLoop(done)
	g.log.Debug().Dur("timeout", g.timeout).Msg("inactivity guard started")
}

// Stop halts tracking and the countdown poll. Idempotent.
func (g *InactivityGuard) Stop() {
	g.tracker.Stop()
	g.stopPoll()
}

// Tracking reports whether the guard is currently engaged.
func (g *InactivityGuard) Tracking() bool {
	return g.tracker.IsTracking()
}

// Remaining returns the time left until expiry, for hosts rendering their
// own countdown. Zero when not tracking.
func (g *InactivityGuard) Remaining() time.Duration {
	return g.tracker.TimeRemaining()
}

// expire runs when the tracker's deadline elapses: clear first, then
// signal, so any later re-delivery this context observes fails the
// not-authenticated guard.
func (g *InactivityGuard) expire() {
	g.stopPoll()
	g.sessions.ClearSession()
	g.log.Info().Msg("session expired from inactivity")
	g.redirect(ReasonInactivity)
}

func (g *InactivityGuard) pollLoop(done chan struct{}) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			// The tracker going inert (fired or stopped elsewhere) must
			// tear the poll down rather than leave it dangling.
			if !g.tracker.IsTracking() {
				g.stopPoll()
				return
			}
			g.sample()
		}
	}
}

func (g *InactivityGuard) sample() {
	remaining := g.tracker.TimeRemaining()

	g.mu.Lock()
	inWarning := remaining > 0 && remaining <= g.threshold
	wasWarned := g.warned
	g.warned = inWarning
	warner := g.warner
	g.mu.Unlock()

	if warner == nil {
		return
	}
	if inWarning {
		warner.Warn(remaining)
		return
	}
	if wasWarned {
		warner.Withdraw()
	}
}

func (g *InactivityGuard) stopPoll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pollDone != nil {
		close(g.pollDone)
		g.pollDone = nil
	}
}
