package broadcast_test

import (
	"testing"

	"github.com/jrsteele09/go-session-guard/broadcast"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToOtherMembersOnly(t *testing.T) {
	bus := broadcast.NewBus()
	a := bus.Join("session")
	b := bus.Join("session")
	c := bus.Join("session")

	var aSaw, bSaw, cSaw []string
	a.Subscribe(func(p []byte) { aSaw = append(aSaw, string(p)) })
	b.Subscribe(func(p []byte) { bSaw = append(bSaw, string(p)) })
	c.Subscribe(func(p []byte) { cSaw = append(cSaw, string(p)) })

	require.NoError(t, a.Post([]byte("hello")))

	require.Empty(t, aSaw, "a member never receives its own post")
	require.Equal(t, []string{"hello"}, bSaw)
	require.Equal(t, []string{"hello"}, cSaw)
}

func TestBusTopicsAreIsolated(t *testing.T) {
	bus := broadcast.NewBus()
	a := bus.Join("session")
	other := bus.Join("elsewhere")

	var saw int
	other.Subscribe(func([]byte) { saw++ })

	require.NoError(t, a.Post([]byte("x")))
	require.Zero(t, saw)
}

func TestBusSubscribeCancelIdempotent(t *testing.T) {
	bus := broadcast.NewBus()
	a := bus.Join("session")
	b := bus.Join("session")

	var saw int
	cancel := b.Subscribe(func([]byte) { saw++ })
	cancel()
	cancel()

	require.NoError(t, a.Post([]byte("x")))
	require.Zero(t, saw)
}

func TestBusClosedMemberStopsReceiving(t *testing.T) {
	bus := broadcast.NewBus()
	a := bus.Join("session")
	b := bus.Join("session")

	var saw int
	b.Subscribe(func([]byte) { saw++ })
	b.Close()
	b.Close()

	require.NoError(t, a.Post([]byte("x")))
	require.Zero(t, saw)
}

func TestBusPostWithNoListeners(t *testing.T) {
	bus := broadcast.NewBus()
	a := bus.Join("session")
	require.NoError(t, a.Post([]byte("into the void")))
}
