// Package guard composes the activity tracker and the session manager into
// the two host-facing policies: inactivity expiry with a live countdown
// warning, and forced logout on a concurrent login elsewhere.
package guard

import (
	"errors"
	"time"
)

// Reason explains a redirect to the login surface. Both reasons are normal
// operation, not failures.
type Reason string

const (
	// ReasonInactivity: the session expired with no user interaction.
	ReasonInactivity Reason = "inactivity"
	// ReasonConcurrentLogin: the same user logged in from another context.
	ReasonConcurrentLogin Reason = "concurrent-login"
)

// Redirect asks the host to leave the authenticated surface. The core
// performs no navigation itself; the session is always cleared before this
// is invoked.
type Redirect func(Reason)

// Warner receives countdown warning updates while the session nears
// expiry. Warn is invoked on every poll inside the warning threshold with
// the exact remaining time; Withdraw when activity moves the deadline back
// out.
type Warner interface {
	Warn(remaining time.Duration)
	Withdraw()
}

var (
	NilSessionsErr = errors.New("session manager is required")
	NilRedirectErr = errors.New("redirect is required")
)
