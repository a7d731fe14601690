// Package router moves messages between users and the admin. It owns the
// routing policy only: session bookkeeping lives in dialog, throttling in
// ratelimit, and delivery in transport.
package router

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"log/slog"

	"github.com/kuznya/studiobot/core/dialog"
	"github.com/kuznya/studiobot/core/logger"
	"github.com/kuznya/studiobot/core/ratelimit"
	"github.com/kuznya/studiobot/core/transport"
)

var (
	// ErrRateLimited means the user exceeded the message window; the
	// message was neither counted nor delivered.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrMessageTooLong means the message exceeds the configured cap.
	ErrMessageTooLong = errors.New("message too long")
	// ErrNoActiveSession mirrors the registry sentinel for callers that
	// only import this package.
	ErrNoActiveSession = dialog.ErrNoActiveSession
)

// Options tunes routing policy.
type Options struct {
	AdminID int64
	// AutoStart opens a session when an idle user sends free text,
	// instead of requiring the explicit start action.
	AutoStart        bool
	MaxMessageLength int
}

// Router routes dialog traffic in both directions.
type Router struct {
	registry  *dialog.Registry
	limiter   *ratelimit.Limiter
	transport transport.Transport
	opts      Options
}

// New builds a router.
func New(registry *dialog.Registry, limiter *ratelimit.Limiter, tr transport.Transport, opts Options) *Router {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 4000
	}
	return &Router{
		registry:  registry,
		limiter:   limiter,
		transport: tr,
		opts:      opts,
	}
}

// UserDelivery reports a routed user message.
type UserDelivery struct {
	Session dialog.Session
	// Started is true when this message opened the session (auto-start).
	Started bool
}

// HandleUserMessage validates, throttles, and relays one user message to
// the admin. Without an open session the message is rejected, unless
// auto-start is enabled, in which case it opens one. The limiter runs
// before the auto-start, so a rejected message never touches the registry.
func (r *Router) HandleUserMessage(ctx context.Context, from dialog.User, text string) (UserDelivery, error) {
	if utf8.RuneCountInString(text) > r.opts.MaxMessageLength {
		return UserDelivery{}, ErrMessageTooLong
	}

	session, ok, err := r.registry.GetActiveSession(ctx, from.ID)
	if err != nil {
		return UserDelivery{}, err
	}
	if !ok && !r.opts.AutoStart {
		return UserDelivery{}, ErrNoActiveSession
	}

	admitted, err := r.limiter.Admit(ctx, from.ID)
	if err != nil {
		return UserDelivery{}, err
	}
	if !admitted {
		return UserDelivery{}, ErrRateLimited
	}

	started := false
	if !ok {
		session, started, err = r.registry.StartDialog(ctx, from.ID)
		if err != nil {
			return UserDelivery{}, err
		}
	}

	if err := r.transport.Send(ctx, r.opts.AdminID, formatUserMessage(from, text)); err != nil {
		return UserDelivery{}, err
	}

	session, err = r.registry.RecordMessage(ctx, from.ID, false)
	if err != nil {
		return UserDelivery{}, err
	}

	logger.SVCDialogs.Debug("user message routed",
		slog.String("event", "route.user"),
		slog.String("session_id", session.ID),
		slog.Int64("user_id", from.ID),
	)
	return UserDelivery{Session: session, Started: started}, nil
}

// HandleAdminReply relays the admin's message to the focused user.
// Requires both an admin focus and an open session for that user.
func (r *Router) HandleAdminReply(ctx context.Context, text string) (dialog.Session, error) {
	if utf8.RuneCountInString(text) > r.opts.MaxMessageLength {
		return dialog.Session{}, ErrMessageTooLong
	}

	userID, ok, err := r.registry.GetAdminFocus(ctx, r.opts.AdminID)
	if err != nil {
		return dialog.Session{}, err
	}
	if !ok {
		return dialog.Session{}, ErrNoActiveSession
	}

	if _, ok, err := r.registry.GetActiveSession(ctx, userID); err != nil {
		return dialog.Session{}, err
	} else if !ok {
		// Session ended under the admin's feet; drop the stale focus.
		if err := r.registry.ClearAdminFocus(ctx, r.opts.AdminID); err != nil {
			return dialog.Session{}, err
		}
		return dialog.Session{}, ErrNoActiveSession
	}

	if err := r.transport.Send(ctx, userID, text); err != nil {
		return dialog.Session{}, err
	}

	session, err := r.registry.RecordMessage(ctx, userID, true)
	if err != nil {
		return dialog.Session{}, err
	}

	logger.SVCDialogs.Debug("admin reply routed",
		slog.String("event", "route.admin"),
		slog.String("session_id", session.ID),
		slog.Int64("user_id", userID),
		slog.Bool("from_admin", true),
	)
	return session, nil
}

// formatUserMessage renders the relay header the admin sees.
func formatUserMessage(from dialog.User, text string) string {
	name := from.DisplayName()
	if name == "" {
		name = fmt.Sprintf("id%d", from.ID)
	}
	return fmt.Sprintf("💬 %s (%d):\n%s", name, from.ID, text)
}
