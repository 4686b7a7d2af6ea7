package models

import "time"

// SessionEntry is one authenticated real-time connection. A user may hold
// several simultaneously (multi-device); room membership is tracked both
// per-session and per-user so a reconnect can restore the user's rooms.
type SessionEntry struct {
	SessionID        string
	UserID           string
	Rooms            map[string]bool
	ConnectedAt      time.Time
	ReconnectedFrom  string
}
