// Package keyboard builds the reply and inline keyboards of the studio
// bot. Button labels double as routing endpoints, so they live here as
// exported constants.
package keyboard

import (
	"fmt"

	tele "gopkg.in/telebot.v4"
)

// User menu labels.
const (
	BtnStartDialog = "💬 Почати діалог"
	BtnExamples    = "🎧 Наші роботи"
	BtnSubscribe   = "📢 Підписатися"
	BtnContacts    = "📲 Контакти"
	BtnAbout       = "ℹ️ Про студію"
	BtnInvite      = "🎁 Запросити друзів"
	BtnEndDialog   = "❌ Завершити діалог"
)

// Admin panel labels. The dialog and user listing buttons carry live
// counters, so handlers match them by prefix.
const (
	BtnAdminDialogs   = "💬 Активні діалоги"
	BtnAdminNewDialog = "🆕 Новий діалог"
	BtnAdminUsers     = "👥 Користувачі"
	BtnAdminStats     = "📊 Статистика"
	BtnAdminBroadcast = "📢 Розсилка"
	BtnAdminSwitch    = "🔄 Інший діалог"
	BtnAdminHome      = "🏠 Головне меню"
	BtnCancel         = "❌ Скасувати"
)

// Callback uniques for the admin inline listings.
const (
	CbEnterDialog = "dlg_enter"
	CbStartDialog = "dlg_start"
)

// UserMain is the main menu for regular users.
func UserMain() *tele.ReplyMarkup {
	return replyRows(
		[]string{BtnStartDialog, BtnExamples},
		[]string{BtnSubscribe, BtnContacts},
		[]string{BtnAbout, BtnInvite},
	)
}

// UserDialog is shown while the user is in an open dialog.
func UserDialog() *tele.ReplyMarkup {
	return replyRows([]string{BtnEndDialog})
}

// AdminMain is the admin panel with live counters.
func AdminMain(activeDialogs, totalUsers int) *tele.ReplyMarkup {
	return replyRows(
		[]string{
			fmt.Sprintf("%s (%d)", BtnAdminDialogs, activeDialogs),
			BtnAdminNewDialog,
		},
		[]string{
			fmt.Sprintf("%s (%d)", BtnAdminUsers, totalUsers),
			BtnAdminStats,
		},
		[]string{BtnAdminBroadcast},
	)
}

// AdminDialog is shown while the admin is focused on one dialog.
func AdminDialog() *tele.ReplyMarkup {
	return replyRows(
		[]string{BtnEndDialog, BtnAdminSwitch},
		[]string{BtnAdminHome},
	)
}

// Cancel offers a single way out of a pending admin action.
func Cancel() *tele.ReplyMarkup {
	return replyRows([]string{BtnCancel})
}

// Remove hides any reply keyboard.
func Remove() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// URLButton builds a single inline button opening url.
func URLButton(text, url string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	btn := markup.URL(text, url)
	markup.Inline(markup.Row(btn))
	return markup
}

// DataRows builds an inline keyboard with one data button per row.
func DataRows(unique string, rows []struct {
	Text string
	Data string
}) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	teleRows := make([]tele.Row, 0, len(rows))
	for _, row := range rows {
		teleRows = append(teleRows, markup.Row(markup.Data(row.Text, unique, row.Data)))
	}
	markup.Inline(teleRows...)
	return markup
}

func replyRows(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	teleRows := make([]tele.Row, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tele.Btn, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		teleRows = append(teleRows, markup.Row(buttons...))
	}
	markup.Reply(teleRows...)
	return markup
}
