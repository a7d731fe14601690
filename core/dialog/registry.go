package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"log/slog"

	"github.com/kuznya/studiobot/core/logger"
	"github.com/kuznya/studiobot/core/storage"
)

// Registry owns all dialog state. It is safe for concurrent use: every
// mutation of a user's session runs under that user's stripe lock, so
// concurrent StartDialog calls for the same user resolve to one session.
type Registry struct {
	store storage.Store
	locks stripedLocks
	now   func() time.Time
}

// NewRegistry builds a registry over the given store.
func NewRegistry(store storage.Store) *Registry {
	return &Registry{
		store: store,
		now:   time.Now,
	}
}

// SaveUser records or refreshes a user profile. JoinedAt and ReferredBy
// from the first sighting are preserved across refreshes.
func (r *Registry) SaveUser(ctx context.Context, u User) (User, error) {
	mu := r.locks.lock(u.ID)
	defer mu.Unlock()

	key := userKey(u.ID)
	if raw, ok, err := r.store.Get(ctx, key); err != nil {
		return User{}, err
	} else if ok {
		var existing User
		if err := json.Unmarshal([]byte(raw), &existing); err == nil {
			u.JoinedAt = existing.JoinedAt
			if existing.ReferredBy != 0 {
				u.ReferredBy = existing.ReferredBy
			}
		}
	}
	if u.JoinedAt.IsZero() {
		u.JoinedAt = r.now().UTC()
	}

	encoded, err := json.Marshal(u)
	if err != nil {
		return User{}, fmt.Errorf("encode user %d: %w", u.ID, err)
	}
	if err := r.store.Set(ctx, key, string(encoded)); err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUser loads a stored profile.
func (r *Registry) GetUser(ctx context.Context, id int64) (User, bool, error) {
	raw, ok, err := r.store.Get(ctx, userKey(id))
	if err != nil || !ok {
		return User{}, false, err
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, false, fmt.Errorf("decode user %d: %w", id, err)
	}
	return u, true, nil
}

// UserIDs lists every known user id in ascending order.
func (r *Registry) UserIDs(ctx context.Context) ([]int64, error) {
	keys, err := r.store.ScanByPrefix(ctx, userPrefix)
	if err != nil {
		return nil, err
	}
	ids := lo.FilterMap(keys, func(key string, _ int) (int64, bool) {
		return idFromKey(key, userPrefix)
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// StartDialog opens a session for userID, or returns the existing one.
// The second result reports whether a new session was created.
func (r *Registry) StartDialog(ctx context.Context, userID int64) (Session, bool, error) {
	mu := r.locks.lock(userID)
	defer mu.Unlock()

	if existing, ok, err := r.loadActive(ctx, userID); err != nil {
		return Session{}, false, err
	} else if ok {
		return existing, false, nil
	}

	now := r.now().UTC()
	session := Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := r.saveActive(ctx, session); err != nil {
		return Session{}, false, err
	}
	if _, err := r.store.Increment(ctx, statsDialogs); err != nil {
		return Session{}, false, err
	}

	logger.SVCDialogs.Info("dialog started",
		slog.String("event", "dialog.start"),
		slog.String("session_id", session.ID),
		slog.Int64("user_id", userID),
	)
	return session, true, nil
}

// EndDialog closes the user's session if one exists. The closed session
// is archived for inspection and any admin focus on this user is cleared.
// Ending an absent session is a no-op.
func (r *Registry) EndDialog(ctx context.Context, userID int64) (Session, bool, error) {
	mu := r.locks.lock(userID)
	defer mu.Unlock()

	session, ok, err := r.loadActive(ctx, userID)
	if err != nil || !ok {
		return Session{}, false, err
	}

	session.EndedAt = r.now().UTC()
	encoded, err := json.Marshal(session)
	if err != nil {
		return Session{}, false, fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	if err := r.store.Set(ctx, endedKey(session.ID), string(encoded)); err != nil {
		return Session{}, false, err
	}
	if err := r.store.Delete(ctx, activeKey(userID)); err != nil {
		return Session{}, false, err
	}
	if err := r.clearFocusOn(ctx, userID); err != nil {
		return Session{}, false, err
	}

	logger.SVCDialogs.Info("dialog ended",
		slog.String("event", "dialog.end"),
		slog.String("session_id", session.ID),
		slog.Int64("user_id", userID),
		slog.Int("count", session.UserMessages+session.AdminMessages),
	)
	return session, true, nil
}

// GetActiveSession returns the user's open session, if any.
func (r *Registry) GetActiveSession(ctx context.Context, userID int64) (Session, bool, error) {
	return r.loadActive(ctx, userID)
}

// ActiveSessions lists every open session, oldest first.
func (r *Registry) ActiveSessions(ctx context.Context) ([]Session, error) {
	keys, err := r.store.ScanByPrefix(ctx, activePrefix)
	if err != nil {
		return nil, err
	}
	sessions := make([]Session, 0, len(keys))
	for _, key := range keys {
		userID, ok := idFromKey(key, activePrefix)
		if !ok {
			continue
		}
		session, ok, err := r.loadActive(ctx, userID)
		if err != nil {
			return nil, err
		}
		if ok {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions, nil
}

// RecordMessage bumps the session counters for one routed message and
// returns the updated session. Requires an open session.
func (r *Registry) RecordMessage(ctx context.Context, userID int64, fromAdmin bool) (Session, error) {
	mu := r.locks.lock(userID)
	defer mu.Unlock()

	session, ok, err := r.loadActive(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrNoActiveSession
	}

	if fromAdmin {
		session.AdminMessages++
	} else {
		session.UserMessages++
	}
	session.LastActivityAt = r.now().UTC()
	if err := r.saveActive(ctx, session); err != nil {
		return Session{}, err
	}
	if _, err := r.store.Increment(ctx, statsMessages); err != nil {
		return Session{}, err
	}
	return session, nil
}

// SetAdminFocus points the admin at a user's open session. Focusing a
// user without an open session is an error. The check-and-set runs under
// the user's stripe lock so a concurrent EndDialog cannot slip between
// the session check and the focus write.
func (r *Registry) SetAdminFocus(ctx context.Context, adminID, userID int64) error {
	mu := r.locks.lock(userID)
	defer mu.Unlock()

	if _, ok, err := r.loadActive(ctx, userID); err != nil {
		return err
	} else if !ok {
		return ErrNoActiveSession
	}
	if err := r.store.Set(ctx, focusKey(adminID), fmt.Sprintf("%d", userID)); err != nil {
		return err
	}
	logger.SVCDialogs.Debug("focus set",
		slog.String("event", "focus.set"),
		slog.Int64("user_id", userID),
	)
	return nil
}

// GetAdminFocus returns the user the admin is currently replying to.
func (r *Registry) GetAdminFocus(ctx context.Context, adminID int64) (int64, bool, error) {
	raw, ok, err := r.store.Get(ctx, focusKey(adminID))
	if err != nil || !ok {
		return 0, false, err
	}
	userID, valid := idFromKey(focusPrefix+raw, focusPrefix)
	if !valid {
		return 0, false, nil
	}
	return userID, true, nil
}

// ClearAdminFocus drops the admin's focus pointer.
func (r *Registry) ClearAdminFocus(ctx context.Context, adminID int64) error {
	return r.store.Delete(ctx, focusKey(adminID))
}

// SetMode stores the admin interaction mode.
func (r *Registry) SetMode(ctx context.Context, adminID int64, mode Mode) error {
	return r.store.Set(ctx, modeKey(adminID), string(mode))
}

// GetMode returns the admin interaction mode, defaulting to idle.
func (r *Registry) GetMode(ctx context.Context, adminID int64) (Mode, error) {
	raw, ok, err := r.store.Get(ctx, modeKey(adminID))
	if err != nil {
		return ModeIdle, err
	}
	if !ok {
		return ModeIdle, nil
	}
	return parseMode(raw), nil
}

// RecordBroadcast bumps the broadcast counter.
func (r *Registry) RecordBroadcast(ctx context.Context) error {
	_, err := r.store.Increment(ctx, statsCasts)
	return err
}

// Stats assembles the aggregate counters.
func (r *Registry) Stats(ctx context.Context) (Stats, error) {
	userKeys, err := r.store.ScanByPrefix(ctx, userPrefix)
	if err != nil {
		return Stats{}, err
	}
	activeKeys, err := r.store.ScanByPrefix(ctx, activePrefix)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Users:         len(userKeys),
		ActiveDialogs: len(activeKeys),
	}
	for _, c := range []struct {
		key string
		dst *int64
	}{
		{statsDialogs, &stats.TotalDialogs},
		{statsMessages, &stats.TotalMessages},
		{statsCasts, &stats.BroadcastsSent},
	} {
		raw, ok, err := r.store.Get(ctx, c.key)
		if err != nil {
			return Stats{}, err
		}
		if ok {
			var n int64
			if _, err := fmt.Sscanf(raw, "%d", &n); err == nil {
				*c.dst = n
			}
		}
	}
	return stats, nil
}

func (r *Registry) loadActive(ctx context.Context, userID int64) (Session, bool, error) {
	raw, ok, err := r.store.Get(ctx, activeKey(userID))
	if err != nil || !ok {
		return Session{}, false, err
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return Session{}, false, fmt.Errorf("decode session for %d: %w", userID, err)
	}
	return session, true, nil
}

func (r *Registry) saveActive(ctx context.Context, session Session) error {
	encoded, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	return r.store.Set(ctx, activeKey(session.UserID), string(encoded))
}

// clearFocusOn removes every admin focus pointer aimed at userID.
func (r *Registry) clearFocusOn(ctx context.Context, userID int64) error {
	keys, err := r.store.ScanByPrefix(ctx, focusPrefix)
	if err != nil {
		return err
	}
	want := fmt.Sprintf("%d", userID)
	for _, key := range keys {
		raw, ok, err := r.store.Get(ctx, key)
		if err != nil {
			return err
		}
		if ok && raw == want {
			if err := r.store.Delete(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}
