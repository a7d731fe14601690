package dialog

import "strconv"

// Store key layout. Every record the registry owns lives under one of
// these prefixes so backends can enumerate them with a prefix scan.
const (
	userPrefix    = "user:"
	activePrefix  = "dialog:active:"
	endedPrefix   = "dialog:ended:"
	focusPrefix   = "focus:"
	modePrefix    = "mode:"
	statsDialogs  = "stats:total_dialogs"
	statsMessages = "stats:total_messages"
	statsCasts    = "stats:broadcasts_sent"
)

func userKey(id int64) string {
	return userPrefix + strconv.FormatInt(id, 10)
}

func activeKey(userID int64) string {
	return activePrefix + strconv.FormatInt(userID, 10)
}

func endedKey(sessionID string) string {
	return endedPrefix + sessionID
}

func focusKey(adminID int64) string {
	return focusPrefix + strconv.FormatInt(adminID, 10)
}

func modeKey(adminID int64) string {
	return modePrefix + strconv.FormatInt(adminID, 10)
}

func idFromKey(key, prefix string) (int64, bool) {
	if len(key) <= len(prefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(key[len(prefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
