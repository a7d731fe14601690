// Package transport is the outbound message boundary. The router and
// broadcast dispatcher talk to it instead of the Telegram client, so
// delivery semantics stay testable without network.
package transport

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// Transport delivers one text message to one chat. Send blocks until the
// message is accepted or retries are exhausted; a failed delivery comes
// back as a *DeliveryError.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// DeliveryError reports a failed send after all retries.
type DeliveryError struct {
	ChatID int64
	// Blocked marks recipients who banned the bot; broadcast accounting
	// counts them separately from transient failures.
	Blocked bool
	Err     error
}

func (e *DeliveryError) Error() string {
	if e.Blocked {
		return fmt.Sprintf("delivery to %d: recipient blocked the bot", e.ChatID)
	}
	return fmt.Sprintf("delivery to %d: %v", e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsBlocked reports whether err represents a recipient who blocked the bot.
func IsBlocked(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Blocked
}

// SanitizeError prevents accidental leakage of bot tokens in logs.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

// Func adapts a plain function to the Transport interface.
type Func func(ctx context.Context, chatID int64, text string) error

func (f Func) Send(ctx context.Context, chatID int64, text string) error {
	return f(ctx, chatID, text)
}
