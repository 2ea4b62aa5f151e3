package broadcast_test

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-guard/broadcast"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type payloadLog struct {
	mu       sync.Mutex
	payloads []string
}

func (l *payloadLog) record(p []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.payloads = append(l.payloads, string(p))
}

func (l *payloadLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.payloads...)
}

func dialTestHub(t *testing.T) (*broadcast.Hub, *broadcast.WSChannel, *broadcast.WSChannel) {
	t.Helper()

	hub := broadcast.NewHub(zerolog.Nop())
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	a, err := broadcast.DialWS(url, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	b, err := broadcast.DialWS(url, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	return hub, a, b
}

func TestWSRelayFanOut(t *testing.T) {
	_, a, b := dialTestHub(t)

	var aSaw, bSaw payloadLog
	cancelA := a.Subscribe(aSaw.record)
	defer cancelA()
	cancelB := b.Subscribe(bSaw.record)
	defer cancelB()

	require.NoError(t, a.Post([]byte("login-event")))

	require.Eventually(t, func() bool {
		saw := bSaw.snapshot()
		return len(saw) == 1 && saw[0] == "login-event"
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, aSaw.snapshot(), "the hub must not echo to the sender")
}

func TestWSSubscribeCancel(t *testing.T) {
	_, a, b := dialTestHub(t)

	var bSaw payloadLog
	cancel := b.Subscribe(bSaw.record)
	cancel()
	cancel()

	require.NoError(t, a.Post([]byte("x")))
	time.Sleep(100 * time.Millisecond)
	require.Empty(t, bSaw.snapshot())
}

func TestWSHubDropsDisconnectedClients(t *testing.T) {
	hub, a, b := dialTestHub(t)

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	// Posting with a departed peer still succeeds.
	require.NoError(t, a.Post([]byte("still here")))
}

func TestDialWSRequiresURL(t *testing.T) {
	_, err := broadcast.DialWS("", zerolog.Nop())
	require.Error(t, err)
}
