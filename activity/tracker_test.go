package activity_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-guard/activity"
	"github.com/stretchr/testify/require"
)

// counter is a concurrency-safe call counter usable as a callback.
type counter struct{ n atomic.Int64 }

func (c *counter) inc()         { c.n.Add(1) }
func (c *counter) count() int64 { return c.n.Load() }

func TestDeadlineFiresOnceAndNeverEarly(t *testing.T) {
	const timeout = 120 * time.Millisecond

	var inactive counter
	fired := make(chan time.Time, 1)
	start := time.Now()

	pulse := activity.NewPulse(activity.KindSynthetic)
	tracker := activity.New(timeout, []activity.Source{pulse},
		activity.OnInactive(func() {
			inactive.inc()
			select {
			case fired <- time.Now():
			default:
			}
		}),
	)
	tracker.Start()
	defer tracker.Stop()

	select {
	case at := <-fired:
		require.GreaterOrEqual(t, at.Sub(start), timeout, "deadline must never fire early")
	case <-time.After(2 * time.Second):
		t.Fatal("deadline never fired")
	}

	// Inert afterwards: no repeat firing, tracking reports off.
	time.Sleep(2 * timeout)
	require.EqualValues(t, 1, inactive.count())
	require.False(t, tracker.IsTracking())
}

func TestAcceptedSignalResetsDeadline(t *testing.T) {
	const timeout = 150 * time.Millisecond

	var inactive counter
	pulse := activity.NewPulse(activity.KindPointer)
	tracker := activity.New(timeout, []activity.Source{pulse},
		activity.OnInactive(inactive.inc),
		activity.WithDebounceWindow(10*time.Millisecond),
	)
	tracker.Start()
	defer tracker.Stop()

	// Keep signalling more often than the timeout; the deadline must keep
	// moving out.
	for i := 0; i < 4; i++ {
		time.Sleep(timeout / 2)
		pulse.Emit()
	}
	require.Zero(t, inactive.count())

	// Now go quiet and let it expire.
	require.Eventually(t, func() bool { return inactive.count() == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestDebounceWindowDropsSignalStorm(t *testing.T) {
	const (
		timeout = 250 * time.Millisecond
		window  = time.Second
	)

	var active, inactive counter
	var firstSignal time.Time
	fired := make(chan time.Time, 1)

	pulse := activity.NewPulse(activity.KindPointer)
	tracker := activity.New(timeout, []activity.Source{pulse},
		activity.OnActivity(active.inc),
		activity.OnInactive(func() {
			inactive.inc()
			select {
			case fired <- time.Now():
			default:
			}
		}),
		activity.WithDebounceWindow(window),
	)
	tracker.Start()
	defer tracker.Stop()

	// Ten signals well inside one debounce window.
	firstSignal = time.Now()
	for i := 0; i < 10; i++ {
		pulse.Emit()
		time.Sleep(10 * time.Millisecond)
	}

	require.EqualValues(t, 1, active.count(), "storm must debounce to one activity callback")

	// The deadline was reset by the first of the ten only: it must fire
	// ~timeout after the first signal, not after the last.
	select {
	case at := <-fired:
		elapsed := at.Sub(firstSignal)
		require.GreaterOrEqual(t, elapsed, timeout)
		require.Less(t, elapsed, timeout+150*time.Millisecond,
			"later debounced signals must not extend the deadline")
	case <-time.After(2 * time.Second):
		t.Fatal("deadline never fired")
	}
	require.EqualValues(t, 1, inactive.count())
}

func TestTimeRemainingCountsDownToZero(t *testing.T) {
	const timeout = 400 * time.Millisecond

	tracker := activity.New(timeout, nil)
	require.Zero(t, tracker.TimeRemaining(), "not tracking reads as zero")

	tracker.Start()
	defer tracker.Stop()

	var samples []time.Duration
	for i := 0; i < 4; i++ {
		samples = append(samples, tracker.TimeRemaining())
		time.Sleep(80 * time.Millisecond)
	}

	require.Positive(t, samples[0])
	for i := 1; i < len(samples); i++ {
		require.Less(t, samples[i], samples[i-1], "countdown must strictly decrease while idle")
	}

	require.Eventually(t, func() bool { return tracker.TimeRemaining() == 0 },
		2*time.Second, 20*time.Millisecond)
}

func TestStartIsStopThenStart(t *testing.T) {
	var active counter
	pulse := activity.NewPulse(activity.KindKey)
	tracker := activity.New(time.Minute, []activity.Source{pulse},
		activity.OnActivity(active.inc),
		activity.WithDebounceWindow(time.Millisecond),
	)

	// Repeated Start must not double-subscribe: one emit, one callback.
	tracker.Start()
	tracker.Start()
	tracker.Start()
	defer tracker.Stop()

	pulse.Emit()
	require.EqualValues(t, 1, active.count())
}

func TestStopIsIdempotentAndReleasesSources(t *testing.T) {
	var active counter
	pulse := activity.NewPulse(activity.KindScroll)
	tracker := activity.New(time.Minute, []activity.Source{pulse},
		activity.OnActivity(active.inc),
		activity.WithDebounceWindow(time.Millisecond),
	)

	tracker.Stop() // safe before Start

	tracker.Start()
	tracker.Stop()
	tracker.Stop()

	pulse.Emit()
	require.Zero(t, active.count(), "signals after Stop must be ignored")
	require.False(t, tracker.IsTracking())
	require.Zero(t, tracker.TimeRemaining())
}

func TestTrackerInertAfterExpiry(t *testing.T) {
	var active counter
	pulse := activity.NewPulse(activity.KindSynthetic)
	tracker := activity.New(60*time.Millisecond, []activity.Source{pulse},
		activity.OnActivity(active.inc),
		activity.WithDebounceWindow(time.Millisecond),
	)
	tracker.Start()
	defer tracker.Stop()

	require.Eventually(t, func() bool { return !tracker.IsTracking() },
		2*time.Second, 10*time.Millisecond)

	pulse.Emit()
	require.Zero(t, active.count(), "an expired tracker ignores signals until restarted")

	// Restart re-engages.
	tracker.Start()
	pulse.Emit()
	require.EqualValues(t, 1, active.count())
}

func TestSyntheticPulseResetsDeadlineLikeAnySignal(t *testing.T) {
	const timeout = 150 * time.Millisecond

	var inactive counter
	api := activity.NewPulse(activity.KindSynthetic)
	tracker := activity.New(timeout, []activity.Source{api},
		activity.OnInactive(inactive.inc),
		activity.WithDebounceWindow(10*time.Millisecond),
	)
	tracker.Start()
	defer tracker.Stop()

	for i := 0; i < 3; i++ {
		time.Sleep(timeout / 2)
		api.Emit() // e.g. a successful API call
	}
	require.Zero(t, inactive.count())
}

func TestPulseFanOutAndCancel(t *testing.T) {
	pulse := activity.NewPulse(activity.KindClick)

	var mu sync.Mutex
	var saw []activity.Kind
	cancel := pulse.Subscribe(func(sig activity.Signal) {
		mu.Lock()
		saw = append(saw, sig.Kind)
		mu.Unlock()
	})

	pulse.Emit()
	cancel()
	cancel()
	pulse.Emit()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []activity.Kind{activity.KindClick}, saw)
}

func TestDefaultSourcesCoverEveryKind(t *testing.T) {
	sources := activity.DefaultSources()
	for _, kind := range []activity.Kind{
		activity.KindPointer, activity.KindKey, activity.KindScroll,
		activity.KindTouch, activity.KindClick, activity.KindVisibility,
		activity.KindSynthetic,
	} {
		require.Contains(t, sources, kind)
		require.Equal(t, kind, sources[kind].Kind())
	}
}
