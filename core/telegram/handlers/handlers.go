// Package handlers wires Telegram updates to the dialog engine: user
// menu actions, the admin panel, broadcast flow, and referral commands.
package handlers

import (
	tele "gopkg.in/telebot.v4"

	"github.com/kuznya/studiobot/core/broadcast"
	"github.com/kuznya/studiobot/core/config"
	"github.com/kuznya/studiobot/core/dialog"
	"github.com/kuznya/studiobot/core/referral"
	"github.com/kuznya/studiobot/core/router"
	"github.com/kuznya/studiobot/core/telegram/keyboard"
	"github.com/kuznya/studiobot/core/telegram/middleware"
	"github.com/kuznya/studiobot/core/transport"
)

// Deps carries everything the handlers need. All fields are required.
type Deps struct {
	Cfg       *config.Config
	Registry  *dialog.Registry
	Router    *router.Router
	Broadcast *broadcast.Dispatcher
	Referral  *referral.Engine
	Transport transport.Transport
	// BotName is the bot's username, used to build invite deep links.
	BotName string
}

type handlers struct {
	Deps
}

// Register installs middlewares and all routes on the bot.
func Register(bot *tele.Bot, d Deps) {
	h := &handlers{Deps: d}

	bot.Use(middleware.Recover)
	bot.Use(middleware.Logging)

	adminOpts := middleware.AdminOptions{AdminID: d.Cfg.Telegram.AdminID}
	admin := func(fn tele.HandlerFunc) tele.HandlerFunc {
		return middleware.AdminOnly(adminOpts, fn)
	}

	bot.Handle("/start", h.onStart)
	bot.Handle("/promo", h.onInvite)
	bot.Handle("/admin", admin(h.onAdminHome))

	bot.Handle(keyboard.BtnStartDialog, h.onStartDialog)
	bot.Handle(keyboard.BtnEndDialog, h.onEndDialog)
	bot.Handle(keyboard.BtnExamples, h.onExamples)
	bot.Handle(keyboard.BtnSubscribe, h.onSubscribe)
	bot.Handle(keyboard.BtnContacts, h.onContacts)
	bot.Handle(keyboard.BtnAbout, h.onAbout)
	bot.Handle(keyboard.BtnInvite, h.onInvite)

	bot.Handle(keyboard.BtnAdminNewDialog, admin(h.onAdminUsers))
	bot.Handle(keyboard.BtnAdminStats, admin(h.onAdminStats))
	bot.Handle(keyboard.BtnAdminBroadcast, admin(h.onAdminBroadcastPrompt))
	bot.Handle(keyboard.BtnAdminSwitch, admin(h.onAdminDialogs))
	bot.Handle(keyboard.BtnAdminHome, admin(h.onAdminHome))
	bot.Handle(keyboard.BtnCancel, admin(h.onAdminCancel))

	bot.Handle(tele.OnText, h.onText)
	bot.Handle(tele.OnCallback, admin(h.onCallback))
}

func (h *handlers) isAdmin(c tele.Context) bool {
	sender := c.Sender()
	return sender != nil && sender.ID == h.Cfg.Telegram.AdminID
}

func senderProfile(c tele.Context) dialog.User {
	sender := c.Sender()
	if sender == nil {
		return dialog.User{}
	}
	return dialog.User{
		ID:        sender.ID,
		Username:  sender.Username,
		FirstName: sender.FirstName,
		LastName:  sender.LastName,
	}
}
