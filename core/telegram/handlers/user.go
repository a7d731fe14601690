package handlers

import (
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

func (h *handlers) onStart(c tele.Context) error {
	ctx := middleware.Ctx(c)
	profile := senderProfile(c)

	// Deep-link referral payload: /start <referrer-id>.
	if payload := strings.TrimSpace(c.Message().Payload); payload != "" {
		if referrerID, err := strconv.ParseInt(payload, 10, 64); err == nil {
			profile.ReferredBy = referrerID
		}
	}

	saved, err := h.Registry.SaveUser(ctx, profile)
	if err != nil {
		return err
	}

	if profile.ReferredBy != 0 && saved.ReferredBy == profile.ReferredBy {
		h.recordReferral(c, saved)
	}

	if h.isAdmin(c) {
		return h.onAdminHome(c)
	}
	name := profile.FirstName
	if name == "" {
		name = profile.Username
	}
	return c.Send(fmt.Sprintf(msgWelcome, name), keyboard.UserMain())
}

// recordReferral attributes the new user and congratulates the referrer
// the moment the promo threshold is crossed.
func (h *handlers) recordReferral(c tele.Context, referee dialog.User) {
	ctx := middleware.Ctx(c)
	res, err := h.Referral.AddReferral(ctx, referee.ReferredBy, referee.ID)
	if err != nil {
		logger.SVCReferrals.Error("referral failed",
			slog.String("event", "referral.add"),
			slog.Int64("referrer_id", referee.ReferredBy),
			slog.Int64("referee_id", referee.ID),
			slog.String("err", err.Error()),
		)
		return
	}
	if res.PromoIssued {
		text := fmt.Sprintf(msgPromoEarned, res.Referees, res.PromoCode)
		if err := h.Transport.Send(ctx, referee.ReferredBy, text); err != nil {
			logger.SVCReferrals.Warn("promo notification failed",
				slog.String("event", "promo.notify"),
				slog.Int64("referrer_id", referee.ReferredBy),
				slog.String("err", transport.SanitizeError(err)),
			)
		}
	}
}

func (h *handlers) onStartDialog(c tele.Context) error {
	if h.isAdmin(c) {
		return h.onAdminDialogs(c)
	}
	ctx := middleware.Ctx(c)
	profile := senderProfile(c)
	if _, err := h.Registry.SaveUser(ctx, profile); err != nil {
		return err
	}

	session, created, err := h.Registry.StartDialog(ctx, profile.ID)
	if err != nil {
		return err
	}
	if !created {
		return c.Send(msgDialogResumed, keyboard.UserDialog(), tele.ModeMarkdown)
	}

	label := profile.DisplayName()
	if label == "" {
		label = fmt.Sprintf("id%d", profile.ID)
	}
	notice := fmt.Sprintf(msgAdminNewUserDialog, label)
	if err := h.Transport.Send(ctx, h.Cfg.Telegram.AdminID, notice); err != nil {
		logger.SVCDialogs.Warn("admin notification failed",
			slog.String("event", "dialog.notify"),
			slog.String("session_id", session.ID),
			slog.String("err", transport.SanitizeError(err)),
		)
	}
	return c.Send(msgDialogStarted, keyboard.UserDialog(), tele.ModeMarkdown)
}

func (h *handlers) onEndDialog(c tele.Context) error {
	if h.isAdmin(c) {
		return h.adminEndFocusedDialog(c)
	}
	ctx := middleware.Ctx(c)
	userID := c.Sender().ID

	_, ended, err := h.Registry.EndDialog(ctx, userID)
	if err != nil {
		return err
	}
	if ended {
		profile := senderProfile(c)
		label := profile.DisplayName()
		if label == "" {
			label = fmt.Sprintf("id%d", userID)
		}
		if err := h.Transport.Send(ctx, h.Cfg.Telegram.AdminID, fmt.Sprintf(msgAdminUserLeft, label)); err != nil {
			logger.SVCDialogs.Warn("admin notification failed",
				slog.String("event", "dialog.notify"),
				slog.String("err", transport.SanitizeError(err)),
			)
		}
	}
	return c.Send(msgDialogEnded, keyboard.UserMain(), tele.ModeMarkdown)
}

func (h *handlers) onExamples(c tele.Context) error {
	return c.Send(msgExamples,
		keyboard.URLButton("🎧 Переглянути приклади", h.Cfg.Telegram.ExamplesURL),
		tele.ModeMarkdown)
}

func (h *handlers) onSubscribe(c tele.Context) error {
	return c.Send(msgChannel,
		keyboard.URLButton("📢 Підписатися на канал", h.Cfg.Telegram.ChannelURL),
		tele.ModeMarkdown)
}

func (h *handlers) onContacts(c tele.Context) error {
	return c.Send(msgContacts, tele.ModeMarkdown)
}

func (h *handlers) onAbout(c tele.Context) error {
	return c.Send(msgAbout, tele.ModeMarkdown)
}

func (h *handlers) onInvite(c tele.Context) error {
	ctx := middleware.Ctx(c)
	userID := c.Sender().ID

	if code, ok, err := h.Referral.GetPromoCode(ctx, userID); err != nil {
		return err
	} else if ok {
		count, err := h.Referral.RefereeCount(ctx, userID)
		if err != nil {
			return err
		}
		return c.Send(fmt.Sprintf(msgInviteDone, code, count), tele.ModeMarkdown)
	}

	count, err := h.Referral.RefereeCount(ctx, userID)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("https://t.me/%s?start=%d", h.BotName, userID)
	threshold := h.Referral.Threshold()
	return c.Send(fmt.Sprintf(msgInvite, link, count, threshold, threshold), tele.ModeMarkdown)
}

// onText routes free text: user messages flow to the admin, admin
// messages flow to the focused dialog or the pending broadcast.
func (h *handlers) onText(c tele.Context) error {
	if h.isAdmin(c) {
		return h.onAdminText(c)
	}

	ctx := middleware.Ctx(c)
	profile := senderProfile(c)
	if _, err := h.Registry.SaveUser(ctx, profile); err != nil {
		return err
	}

	delivery, err := h.Router.HandleUserMessage(ctx, profile, c.Text())
	switch {
	case err == nil:
		if delivery.Started {
			return c.Send(msgDialogStarted, keyboard.UserDialog(), tele.ModeMarkdown)
		}
		return nil
	case errors.Is(err, router.ErrNoActiveSession):
		return c.Send(msgNoDialogHint, keyboard.UserMain())
	case errors.Is(err, router.ErrRateLimited):
		return c.Send(msgRateLimited)
	case errors.Is(err, router.ErrMessageTooLong):
		return c.Send(msgTooLong)
	}
	var de *transport.DeliveryError
	if errors.As(err, &de) {
		return c.Send(msgDeliveryFailed)
	}
	return err
}
