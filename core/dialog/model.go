// Package dialog implements the session registry: user profiles, active
// dialog sessions between users and the admin, admin focus, and aggregate
// counters. All state lives in the injected storage.Store, so the registry
// is safe to restart whenever the backend is persistent.
package dialog

import (
	"errors"
	"time"
)

// ErrNoActiveSession is returned when an operation requires an open dialog
// and the user has none.
var ErrNoActiveSession = errors.New("no active dialog session")

// User is a known bot user profile.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
	// ReferredBy is the id of the user whose invite link brought this
	// user in, zero when the user came organically.
	ReferredBy int64 `json:"referred_by,omitempty"`
}

// DisplayName returns the best human-readable label for the user.
func (u User) DisplayName() string {
	switch {
	case u.Username != "":
		return "@" + u.Username
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return ""
	}
}

// Session is one user<->admin conversation. A user has at most one
// active session at any time.
type Session struct {
	ID             string    `json:"session_id"`
	UserID         int64     `json:"user_id"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
	UserMessages   int       `json:"user_messages"`
	AdminMessages  int       `json:"admin_messages"`
}

// Mode is the admin-side interaction state.
type Mode string

const (
	// ModeIdle means the admin is browsing the panel.
	ModeIdle Mode = "idle"
	// ModeInDialog means admin replies route to the focused user.
	ModeInDialog Mode = "in_dialog"
	// ModeBroadcasting means the next admin message becomes a broadcast.
	ModeBroadcasting Mode = "broadcasting"
)

func parseMode(raw string) Mode {
	switch Mode(raw) {
	case ModeInDialog:
		return ModeInDialog
	case ModeBroadcasting:
		return ModeBroadcasting
	default:
		return ModeIdle
	}
}

// Stats are the aggregate counters surfaced on the ops endpoints and the
// admin panel.
type Stats struct {
	Users          int   `json:"users"`
	ActiveDialogs  int   `json:"active_dialogs"`
	TotalDialogs   int64 `json:"total_dialogs"`
	TotalMessages  int64 `json:"total_messages"`
	BroadcastsSent int64 `json:"broadcasts_sent"`
}
