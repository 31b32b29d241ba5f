package types

import "time"

// TypingUser is the ephemeral typing indicator entry, keyed by UserId in the
// registry. LastUpdate is overwritten on every keystroke-triggered update.
type TypingUser struct {
	UserId      string    `json:"userId"`
	Emoji       string    `json:"emoji"`
	DisplayName string    `json:"displayName"`
	LastUpdate  time.Time `json:"-"`
}

// ActiveUser is a recently-seen user as tracked by the activity heartbeat.
// "Active" means the user's client performed a read recently, not that a
// connection is open.
type ActiveUser struct {
	UserId       string    `json:"userId"`
	Emoji        string    `json:"emoji"`
	DisplayName  string    `json:"displayName"`
	LastActivity time.Time `json:"lastActivity"`
}
