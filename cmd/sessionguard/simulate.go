package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-session-guard/activity"
	"github.com/jrsteele09/go-session-guard/broadcast"
	"github.com/jrsteele09/go-session-guard/guard"
	"github.com/jrsteele09/go-session-guard/internal/config"
	"github.com/jrsteele09/go-session-guard/session"
	"github.com/jrsteele09/go-session-guard/store"
)

var (
	simTabs    int
	simTimeout time.Duration
	simWarning time.Duration
)

// sharedStore is a watchable store handle the simulation can shut down.
type sharedStore interface {
	store.Watchable
	Close() error
}

// simTab is one simulated execution context: its own view of the shared
// store, its own broadcast endpoint, and its own guards.
type simTab struct {
	name    string
	shared  sharedStore
	mgr     *session.Manager
	watcher *guard.LoginWatcher
	pulse   *activity.Pulse
	idle    *guard.InactivityGuard
	log     zerolog.Logger
	out     chan string
}

// runSimulate opens N contexts over one shared file store, logs the same
// user into each in turn, and shows every earlier context being forced out.
// The last context is then left idle until the inactivity guard expires it.
func runSimulate() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if simTabs < 2 {
		simTabs = 2
	}

	displayAppname("Session Guard")
	log := newLogger()

	base, err := os.MkdirTemp("", "sessionguard-sim-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(base)

	storePath := filepath.Join(base, "shared.json")
	if cfg.Store.Backend == "sqlite" {
		storePath = filepath.Join(base, "shared.db")
	}
	bus := broadcast.NewBus()

	events := make(chan string, 64)
	tabs := make([]*simTab, 0, simTabs)
	for i := 0; i < simTabs; i++ {
		tab, err := newSimTab(fmt.Sprintf("tab-%d", i+1), storePath, cfg, bus, log, events)
		if err != nil {
			return err
		}
		tabs = append(tabs, tab)
		defer tab.close()
	}

	userID := "demo-user"
	for i, tab := range tabs {
		token, err := mintDemoToken(userID)
		if err != nil {
			return err
		}
		tab.mgr.SaveCredential(token, session.User{ID: userID, Name: "Demo User"})
		sessionID, err := tab.mgr.InitializeSession(userID)
		if err != nil {
			return err
		}
		log.Info().Str("tab", tab.name).Str("sessionID", sessionID).Msg("logged in")
		tab.watcher.Start()

		// Give the redelivery schedule and fsnotify time to reach the
		// earlier tabs before the next login lands on top.
		time.Sleep(time.Second)
		for j := 0; j < i; j++ {
			log.Info().Str("tab", tabs[j].name).Bool("forcedOut", tabs[j].mgr.CurrentSessionID() == "").Send()
		}
	}

	last := tabs[len(tabs)-1]
	log.Info().Str("tab", last.name).
		Dur("timeout", simTimeout).
		Msg("holding the session; interacting twice, then going idle")

	last.idle.Start()
	last.pulse.Emit()
	time.Sleep(simTimeout / 2)
	last.pulse.Emit()

	deadline := time.After(2*simTimeout + 5*time.Second)
	for {
		select {
		case msg := <-events:
			log.Info().Msg(msg)
			if msg == last.name+": redirect ("+string(guard.ReasonInactivity)+")" {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("simulation did not settle in time")
		}
	}
}

func newSimTab(name, storePath string, cfg config.Config, bus *broadcast.Bus, log zerolog.Logger, events chan string) (*simTab, error) {
	tabLog := log.With().Str("tab", name).Logger()

	var shared sharedStore
	var err error
	if cfg.Store.Backend == "sqlite" {
		shared, err = store.OpenSQLite(storePath, tabLog, store.WithPollInterval(cfg.Store.SQLitePoll()))
	} else {
		shared, err = store.OpenFile(storePath, tabLog)
	}
	if err != nil {
		return nil, err
	}

	var channel broadcast.Channel
	if cfg.Relay.URL != "" {
		ws, err := broadcast.DialWS(cfg.Relay.URL, tabLog)
		if err != nil {
			tabLog.Warn().Err(err).Msg("relay unreachable, degrading to store-only delivery")
		} else {
			channel = ws
		}
	} else {
		channel = bus.Join("session-guard")
	}

	opts := []session.Option{
		session.WithRedeliverySchedule(cfg.Delivery.RedeliverySchedule()),
		session.WithCleanupDelay(cfg.Delivery.CleanupDelay()),
		session.WithLogger(tabLog),
	}
	if channel != nil {
		opts = append(opts, session.WithChannel(channel))
	}
	mgr, err := session.New(shared, opts...)
	if err != nil {
		return nil, err
	}

	tab := &simTab{name: name, shared: shared, mgr: mgr, log: tabLog, out: events}
	tab.pulse = activity.NewPulse(activity.KindSynthetic)

	tab.watcher, err = guard.NewLoginWatcher(mgr, tab.report, guard.WithWatcherLogger(tabLog))
	if err != nil {
		return nil, err
	}

	tab.idle, err = guard.NewInactivityGuard(mgr, []activity.Source{tab.pulse}, tab.report,
		guard.WithTimeout(simTimeout),
		guard.WithWarningThreshold(simWarning),
		guard.WithPollInterval(cfg.Guard.PollInterval()),
		guard.WithDebounceWindow(cfg.Guard.DebounceWindow()),
		guard.WithWarner(countdownWarner{log: tabLog}),
		guard.WithLogger(tabLog),
	)
	if err != nil {
		return nil, err
	}
	return tab, nil
}

func (t *simTab) report(reason guard.Reason) {
	select {
	case t.out <- t.name + ": redirect (" + string(reason) + ")":
	default:
	}
}

func (t *simTab) close() {
	t.idle.Stop()
	t.watcher.Stop()
	_ = t.shared.Close()
}

// countdownWarner surfaces the pre-expiry countdown on the console, standing
// in for the modal dialog a real host would raise.
type countdownWarner struct {
	log zerolog.Logger
}

func (w countdownWarner) Warn(remaining time.Duration) {
	w.log.Warn().Dur("remaining", remaining.Round(time.Second)).Msg("session expiring soon")
}

func (w countdownWarner) Withdraw() {
	w.log.Info().Msg("activity observed, warning withdrawn")
}

// mintDemoToken signs a short-lived HS256 credential. The subsystem treats
// the credential as opaque; a real host would obtain one from its identity
// provider.
func mintDemoToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte("sessionguard-demo"))
}
