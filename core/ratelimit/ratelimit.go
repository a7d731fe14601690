// Package ratelimit bounds how many messages a user may route to the
// admin within a fixed window. The window state lives in the shared
// store, keyed per user, so limits survive restarts on persistent
// backends.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"log/slog"

	"github.com/kuznya/studiobot/core/logger"
	"github.com/kuznya/studiobot/core/storage"
)

const keyPrefix = "rl:"

type window struct {
	Count     int       `json:"count"`
	StartedAt time.Time `json:"window_started_at"`
}

// Limiter admits up to max messages per user per window duration.
type Limiter struct {
	store  storage.Store
	window time.Duration
	max    int

	stripes [64]sync.Mutex
	now     func() time.Time
}

// New builds a limiter. window and max must be positive.
func New(store storage.Store, windowDur time.Duration, max int) *Limiter {
	return &Limiter{
		store:  store,
		window: windowDur,
		max:    max,
		now:    time.Now,
	}
}

// Admit reports whether one more message from userID fits the current
// window. Admitted messages are counted; rejected ones leave the window
// state untouched, so a burst of rejections cannot extend the lockout.
func (l *Limiter) Admit(ctx context.Context, userID int64) (bool, error) {
	mu := &l.stripes[uint64(userID)%uint64(len(l.stripes))]
	mu.Lock()
	defer mu.Unlock()

	key := keyPrefix + strconv.FormatInt(userID, 10)
	now := l.now().UTC()

	state, ok, err := l.load(ctx, key)
	if err != nil {
		return false, err
	}
	if ok && now.Sub(state.StartedAt) < l.window {
		if state.Count >= l.max {
			logger.Debug(ctx, "service.ratelimit", "ratelimit.reject",
				slog.Int64("user_id", userID),
				slog.Int("count", state.Count),
				slog.Int("limit", l.max),
				slog.Int64("window_ms", l.window.Milliseconds()),
			)
			return false, nil
		}
		state.Count++
		if err := l.save(ctx, key, state); err != nil {
			return false, err
		}
		return true, nil
	}

	// Fresh window: the admitted message is its first.
	state = window{Count: 1, StartedAt: now}
	if err := l.save(ctx, key, state); err != nil {
		return false, err
	}
	return true, nil
}

// Remaining returns how many admits are left in the user's current
// window, for surfacing in rejection replies.
func (l *Limiter) Remaining(ctx context.Context, userID int64) (int, error) {
	key := keyPrefix + strconv.FormatInt(userID, 10)
	state, ok, err := l.load(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok || l.now().UTC().Sub(state.StartedAt) >= l.window {
		return l.max, nil
	}
	left := l.max - state.Count
	if left < 0 {
		left = 0
	}
	return left, nil
}

func (l *Limiter) load(ctx context.Context, key string) (window, bool, error) {
	raw, ok, err := l.store.Get(ctx, key)
	if err != nil || !ok {
		return window{}, false, err
	}
	var state window
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return window{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return state, true, nil
}

func (l *Limiter) save(ctx context.Context, key string, state window) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := l.store.Set(ctx, key, string(encoded)); err != nil {
		return err
	}
	// TTL is garbage collection only; the stored timestamp decides
	// whether a window is still open.
	return l.store.ExpireAfter(ctx, key, 2*l.window)
}
