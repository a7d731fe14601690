package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"log/slog"
	tele "gopkg.in/telebot.v4"

	"github.com/kuznya/studiobot/core/dialog"
	"github.com/kuznya/studiobot/core/logger"
	"github.com/kuznya/studiobot/core/router"
	"github.com/kuznya/studiobot/core/telegram/keyboard"
	"github.com/kuznya/studiobot/core/telegram/middleware"
	"github.com/kuznya/studiobot/core/transport"
)

func (h *handlers) onAdminHome(c tele.Context) error {
	ctx := middleware.Ctx(c)
	adminID := h.Cfg.Telegram.AdminID

	if err := h.Registry.SetMode(ctx, adminID, dialog.ModeIdle); err != nil {
		return err
	}
	if err := h.Registry.ClearAdminFocus(ctx, adminID); err != nil {
		return err
	}

	stats, err := h.Registry.Stats(ctx)
	if err != nil {
		return err
	}
	return c.Send(
		fmt.Sprintf(msgAdminPanel, stats.ActiveDialogs, stats.Users),
		keyboard.AdminMain(stats.ActiveDialogs, stats.Users),
		tele.ModeMarkdown,
	)
}

func (h *handlers) onAdminStats(c tele.Context) error {
	ctx := middleware.Ctx(c)
	stats, err := h.Registry.Stats(ctx)
	if err != nil {
		return err
	}
	return c.Send(fmt.Sprintf(msgAdminStats,
		stats.Users,
		stats.ActiveDialogs,
		stats.TotalMessages,
		stats.TotalDialogs,
		stats.BroadcastsSent,
	), tele.ModeMarkdown)
}

// onAdminDialogs lists open sessions as inline buttons.
func (h *handlers) onAdminDialogs(c tele.Context) error {
	ctx := middleware.Ctx(c)
	sessions, err := h.Registry.ActiveSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return c.Send(msgAdminNoDialogs)
	}

	rows := make([]struct {
		Text string
		Data string
	}, 0, len(sessions))
	for _, session := range sessions {
		rows = append(rows, struct {
			Text string
			Data string
		}{
			Text: fmt.Sprintf("%s (✉️ %d)", h.userLabel(ctx, session.UserID), session.UserMessages),
			Data: strconv.FormatInt(session.UserID, 10),
		})
	}
	return c.Send(msgAdminPickDialog,
		keyboard.DataRows(keyboard.CbEnterDialog, rows),
		tele.ModeMarkdown)
}

// onAdminUsers lists known users to open a dialog with.
func (h *handlers) onAdminUsers(c tele.Context) error {
	ctx := middleware.Ctx(c)
	ids, err := h.Registry.UserIDs(ctx)
	if err != nil {
		return err
	}

	rows := make([]struct {
		Text string
		Data string
	}, 0, len(ids))
	for _, id := range ids {
		if id == h.Cfg.Telegram.AdminID {
			continue
		}
		rows = append(rows, struct {
			Text string
			Data string
		}{
			Text: h.userLabel(ctx, id),
			Data: strconv.FormatInt(id, 10),
		})
	}
	if len(rows) == 0 {
		return c.Send(msgAdminNoUsers)
	}
	return c.Send(msgAdminPickUser,
		keyboard.DataRows(keyboard.CbStartDialog, rows),
		tele.ModeMarkdown)
}

func (h *handlers) onAdminBroadcastPrompt(c tele.Context) error {
	ctx := middleware.Ctx(c)
	if err := h.Registry.SetMode(ctx, h.Cfg.Telegram.AdminID, dialog.ModeBroadcasting); err != nil {
		return err
	}
	return c.Send(msgAdminBroadcastPrompt, keyboard.Cancel(), tele.ModeMarkdown)
}

func (h *handlers) onAdminCancel(c tele.Context) error {
	ctx := middleware.Ctx(c)
	if err := h.Registry.SetMode(ctx, h.Cfg.Telegram.AdminID, dialog.ModeIdle); err != nil {
		return err
	}
	if err := c.Send(msgAdminCancelled); err != nil {
		return err
	}
	return h.onAdminHome(c)
}

// onAdminText dispatches admin free text by current mode: a pending
// broadcast, a focused dialog reply, or the dynamic panel buttons.
func (h *handlers) onAdminText(c tele.Context) error {
	ctx := middleware.Ctx(c)
	text := c.Text()

	// The listing buttons carry live counters, so they match by prefix.
	switch {
	case strings.HasPrefix(text, keyboard.BtnAdminDialogs):
		return h.onAdminDialogs(c)
	case strings.HasPrefix(text, keyboard.BtnAdminUsers):
		return h.onAdminUsers(c)
	}

	mode, err := h.Registry.GetMode(ctx, h.Cfg.Telegram.AdminID)
	if err != nil {
		return err
	}
	if mode == dialog.ModeBroadcasting {
		return h.runBroadcast(c, text)
	}

	_, err = h.Router.HandleAdminReply(ctx, text)
	if errors.Is(err, router.ErrNoActiveSession) {
		return c.Send(msgAdminReplyHint)
	}
	var de *transport.DeliveryError
	if errors.As(err, &de) {
		return c.Send(msgDeliveryFailed)
	}
	return err
}

// runBroadcast snapshots recipients and fans out on its own goroutine so
// dialog routing keeps flowing during the send.
func (h *handlers) runBroadcast(c tele.Context, text string) error {
	ctx := middleware.Ctx(c)
	adminID := h.Cfg.Telegram.AdminID

	if err := h.Registry.SetMode(ctx, adminID, dialog.ModeIdle); err != nil {
		return err
	}
	ids, err := h.Registry.UserIDs(ctx)
	if err != nil {
		return err
	}
	recipients := len(ids)
	if recipients > 0 {
		recipients-- // the admin is excluded
	}
	if err := c.Send(fmt.Sprintf(msgAdminBroadcastStarted, recipients)); err != nil {
		return err
	}

	go func() {
		report, err := h.Broadcast.Run(context.Background(), text)
		if err != nil {
			logger.SVCBroadcast.Error("broadcast aborted",
				slog.String("event", "broadcast.abort"),
				slog.String("err", err.Error()),
			)
			return
		}
		summary := fmt.Sprintf(msgAdminBroadcastReport,
			report.Delivered, report.Failed, report.Blocked)
		if err := h.Transport.Send(context.Background(), adminID, summary); err != nil {
			logger.SVCBroadcast.Warn("broadcast summary delivery failed",
				slog.String("event", "broadcast.notify"),
				slog.String("err", transport.SanitizeError(err)),
			)
		}
	}()
	return h.onAdminHome(c)
}

func (h *handlers) adminEndFocusedDialog(c tele.Context) error {
	ctx := middleware.Ctx(c)
	adminID := h.Cfg.Telegram.AdminID

	userID, ok, err := h.Registry.GetAdminFocus(ctx, adminID)
	if err != nil {
		return err
	}
	if !ok {
		return c.Send(msgAdminReplyHint)
	}

	if _, _, err := h.Registry.EndDialog(ctx, userID); err != nil {
		return err
	}
	if err := h.Registry.SetMode(ctx, adminID, dialog.ModeIdle); err != nil {
		return err
	}
	if err := h.Transport.Send(ctx, userID, msgAdminLeftDialog); err != nil {
		logger.SVCDialogs.Warn("user notification failed",
			slog.String("event", "dialog.notify"),
			slog.Int64("user_id", userID),
			slog.String("err", transport.SanitizeError(err)),
		)
	}
	if err := c.Send(fmt.Sprintf(msgAdminDialogEnded, h.userLabel(ctx, userID))); err != nil {
		return err
	}
	return h.onAdminHome(c)
}

// onCallback handles the admin inline listings: entering an open dialog
// or starting a fresh one with a chosen user.
func (h *handlers) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	key, payload := callbackData(cb)
	_ = c.Respond()

	userID, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil {
		return nil
	}
	ctx := middleware.Ctx(c)
	adminID := h.Cfg.Telegram.AdminID

	switch key {
	case keyboard.CbEnterDialog:
		if err := h.Registry.SetAdminFocus(ctx, adminID, userID); err != nil {
			if errors.Is(err, dialog.ErrNoActiveSession) {
				return c.Send(msgAdminNoDialogs)
			}
			return err
		}
	case keyboard.CbStartDialog:
		if _, _, err := h.Registry.StartDialog(ctx, userID); err != nil {
			return err
		}
		if err := h.Registry.SetAdminFocus(ctx, adminID, userID); err != nil {
			return err
		}
		if err := h.Transport.Send(ctx, userID, msgAdminJoined); err != nil {
			logger.SVCDialogs.Warn("user notification failed",
				slog.String("event", "dialog.notify"),
				slog.Int64("user_id", userID),
				slog.String("err", transport.SanitizeError(err)),
			)
		}
	default:
		return nil
	}

	if err := h.Registry.SetMode(ctx, adminID, dialog.ModeInDialog); err != nil {
		return err
	}
	return c.Send(
		fmt.Sprintf(msgAdminInDialog, h.userLabel(ctx, userID)),
		keyboard.AdminDialog(),
	)
}

// userLabel resolves a readable name for listings and notifications.
func (h *handlers) userLabel(ctx context.Context, userID int64) string {
	if u, ok, err := h.Registry.GetUser(ctx, userID); err == nil && ok {
		if name := u.DisplayName(); name != "" {
			return name
		}
	}
	return fmt.Sprintf("id%d", userID)
}

// callbackData parses Telebot's \f<unique>|<payload> encoding.
func callbackData(cb *tele.Callback) (string, string) {
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	parts := strings.SplitN(raw, "|", 2)
	key := strings.TrimSpace(parts[0])
	payload := ""
	if len(parts) == 2 {
		payload = parts[1]
	}
	return key, payload
}
