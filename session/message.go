package session

import (
	"encoding/json"

	"github.com/jrsteele09/go-session-guard/internal/utils"
)

// KindNewLogin is the wire discriminator for login events. The envelope is
// self-describing so the same channel can carry other message kinds later
// without consumers misreading them.
const KindNewLogin = "new-login"

// NewLogin is one login event. Two copies carrying the same
// (UserID, SessionID) are duplicate deliveries of one logical event, never
// two events.
type NewLogin struct {
	UserID    string
	SessionID string
	Timestamp int64
}

// User is the locally stored user record. Display fields ride along; only
// ID participates in coordination.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// envelope is the wire and store form shared by both delivery paths.
// UserID is decoded loosely because backends emit ids as strings or
// numbers interchangeably.
type envelope struct {
	Kind      string `json:"kind"`
	UserID    any    `json:"userId"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	// Nonce makes logically identical repeats differ on the store path,
	// where unchanged values produce no change notification.
	Nonce string `json:"nonce,omitempty"`
}

func encodeNewLogin(msg NewLogin, nonce string) []byte {
	payload, err := json.Marshal(envelope{
		Kind:      KindNewLogin,
		UserID:    msg.UserID,
		SessionID: msg.SessionID,
		Timestamp: msg.Timestamp,
		Nonce:     nonce,
	})
	if err != nil {
		// Marshalling a flat struct of strings and ints cannot fail.
		return nil
	}
	return payload
}

// decodeNewLogin parses a payload from either delivery path. Anything that
// does not parse as a login event reads as "not a message": corrupt data
// from unrelated writers sharing the medium must not break this subsystem.
func decodeNewLogin(payload []byte) (NewLogin, bool) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return NewLogin{}, false
	}
	if env.Kind != KindNewLogin {
		return NewLogin{}, false
	}
	userID := utils.NormalizeID(env.UserID)
	if userID == "" || env.SessionID == "" {
		return NewLogin{}, false
	}
	return NewLogin{UserID: userID, SessionID: env.SessionID, Timestamp: env.Timestamp}, true
}

// decodeUser parses a stored user record, tolerating loose id typing. A
// corrupt record reads as absent.
func decodeUser(payload string) (User, bool) {
	var raw struct {
		ID    any    `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return User{}, false
	}
	id := utils.NormalizeID(raw.ID)
	if id == "" {
		return User{}, false
	}
	return User{ID: id, Name: raw.Name, Email: raw.Email}, true
}
