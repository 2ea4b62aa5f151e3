package activity

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultDebounceWindow = time.Second

// Tracker observes a set of signal sources and maintains an inactivity
// deadline with cancel-and-restart semantics. Signals inside the debounce
// window are dropped, which bounds the work done under signal storms
// (continuous pointer movement, say) while shifting the effective deadline
// by at most one window.
//
// After the deadline fires the tracker is inert until restarted; it never
// auto-restarts. None of its methods panic or return errors: asked to act
// while inert, it answers with defined defaults instead.
type Tracker struct {
	sources    []Source
	timeout    time.Duration
	window     time.Duration
	onActivity func()
	onInactive func()
	nowTime    func() time.Time
	log        zerolog.Logger

	mu           sync.Mutex
	limiter      *rate.Limiter
	deadline     *time.Timer
	cancels      []func()
	lastActivity time.Time
	tracking     bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(t *Tracker) {
		t.nowTime = nowFunc
	}
}

// WithDebounceWindow sets the minimum interval between accepted signals.
func WithDebounceWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.window = d
		}
	}
}

// WithLogger sets the tracker's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(t *Tracker) {
		t.log = log
	}
}

// OnActivity sets the callback invoked once per accepted signal.
func OnActivity(fn func()) Option {
	return func(t *Tracker) {
		t.onActivity = fn
	}
}

// OnInactive sets the callback invoked when the deadline elapses.
func OnInactive(fn func()) Option {
	return func(t *Tracker) {
		t.onInactive = fn
	}
}

// New creates a tracker over the given sources with the given inactivity
// timeout. Nothing is observed until Start.
func New(timeout time.Duration, sources []Source, options ...Option) *Tracker {
	t := &Tracker{
		sources: sources,
		timeout: timeout,
		window:  defaultDebounceWindow,
		nowTime: time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Start begins observing and arms the deadline. Calling Start while already
// tracking stops and cleanly restarts; stale subscriptions are a
// correctness bug, not an inefficiency.
func (t *Tracker) Start() {
	t.Stop()

	t.mu.Lock()
	t.tracking = true
	t.lastActivity = t.nowTime()
	// One token per window, and a full initial burst so the first signal
	// after Start is always accepted.
	t.limiter = rate.NewLimiter(rate.Every(t.window), 1)
	t.armDeadlineLocked()
	for _, src := range t.sources {
		t.cancels = append(t.cancels, src.Subscribe(t.observe))
	}
	t.mu.Unlock()

	t.log.Debug().Dur("timeout", t.timeout).Int("sources", len(t.sources)).Msg("activity tracking started")
}

// Stop cancels the deadline and releases every subscription. Idempotent.
func (t *Tracker) Stop() {
	t.mu.Lock()
	wasTracking := t.tracking
	t.tracking = false
	if t.deadline != nil {
		t.deadline.Stop()
		t.deadline = nil
	}
	t.releaseLocked()
	t.mu.Unlock()

	if wasTracking {
		t.log.Debug().Msg("activity tracking stopped")
	}
}

// IsTracking reports whether tracking is currently engaged.
func (t *Tracker) IsTracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracking
}

// TimeRemaining returns how long until the deadline fires, computed on
// demand so callers can poll at any cadence without drift. Returns 0 when
// not tracking.
func (t *Tracker) TimeRemaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.tracking {
		return 0
	}
	remaining := t.timeout - t.nowTime().Sub(t.lastActivity)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// observe handles one signal from any source.
func (t *Tracker) observe(sig Signal) {
	t.mu.Lock()
	if !t.tracking || !t.limiter.Allow() {
		t.mu.Unlock()
		return
	}
	t.lastActivity = t.nowTime()
	t.armDeadlineLocked()
	cb := t.onActivity
	t.mu.Unlock()

	t.log.Debug().Stringer("kind", sig.Kind).Msg("activity signal accepted")
	if cb != nil {
		cb()
	}
}

// expire runs when the deadline elapses with no accepted signal.
func (t *Tracker) expire() {
	t.mu.Lock()
	if !t.tracking {
		t.mu.Unlock()
		return
	}
	t.tracking = false
	t.deadline = nil
	t.releaseLocked()
	cb := t.onInactive
	t.mu.Unlock()

	t.log.Debug().Msg("inactivity deadline reached")
	if cb != nil {
		cb()
	}
}

// armDeadlineLocked restarts the deadline timer. Cancel-and-restart, never
// additive. Caller holds t.mu.
func (t *Tracker) armDeadlineLocked() {
	if t.deadline != nil {
		t.deadline.Stop()
	}
	t.deadline = time.AfterFunc(t.timeout, t.expire)
}

// releaseLocked cancels every source subscription. Caller holds t.mu.
func (t *Tracker) releaseLocked() {
	for _, cancel := range t.cancels {
		cancel()
	}
	t.cancels = nil
}
