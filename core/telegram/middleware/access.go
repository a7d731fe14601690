package middleware

import tele "gopkg.in/telebot.v4"

// AdminOptions defines how admin-only checks behave.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// AdminOnly ensures that only the admin user can invoke the wrapped handler.
func AdminOnly(opts AdminOptions, handler tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil || (opts.AdminID != 0 && sender.ID != opts.AdminID) {
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
		return handler(c)
	}
}
