package session

import (
	"strconv"
	"strings"
)

// Keys names the store entries the coordination protocol uses. The names
// are a contract between contexts sharing a medium, not between this module
// and anything else; hosts embedding several guarded apps in one medium
// give each its own prefix.
type Keys struct {
	// SessionID holds the current context's session identifier.
	SessionID string
	// AuthToken holds the opaque credential. Present if and only if a
	// session exists (lazily repaired, see Manager.EnsureSessionID).
	AuthToken string
	// User holds the JSON user record.
	User string
	// NewLogin is the frequently overwritten login event key. Timestamped
	// copies live under "<NewLogin>.<unix-ms>" and are short-lived.
	NewLogin string
}

// DefaultKeys returns the standard key names.
func DefaultKeys() Keys {
	return Keys{
		SessionID: "session.id",
		AuthToken: "session.token",
		User:      "session.user",
		NewLogin:  "session.newLogin",
	}
}

// stampedNewLogin returns the timestamp-suffixed secondary event key.
func (k Keys) stampedNewLogin(unixMS int64) string {
	return k.NewLogin + "." + strconv.FormatInt(unixMS, 10)
}

// isNewLoginKey reports whether key is the event key or one of its
// timestamped copies.
func (k Keys) isNewLoginKey(key string) bool {
	return key == k.NewLogin || strings.HasPrefix(key, k.NewLogin+".")
}
