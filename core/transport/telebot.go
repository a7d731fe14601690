package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"log/slog"
	tele "gopkg.in/telebot.v4"

	"github.com/kuznya/studiobot/core/logger"
)

// Options bounds the retry behaviour of one Send call.
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the total time spent on a single send.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

// TelebotSender delivers messages through a telebot instance with bounded
// retries for transient network failures.
type TelebotSender struct {
	bot  *tele.Bot
	opts Options
}

// NewTelebotSender wraps bot with retry options.
func NewTelebotSender(bot *tele.Bot, opts Options) *TelebotSender {
	return &TelebotSender{bot: bot, opts: opts.withDefaults()}
}

func (s *TelebotSender) Send(ctx context.Context, chatID int64, text string) error {
	deadlineCtx, cancel := context.WithTimeout(ctx, s.opts.MaxDuration)
	defer cancel()

	recipient := &tele.Chat{ID: chatID}
	attempts := s.opts.MaxRetries + 1
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := deadlineCtx.Err(); err != nil {
			lastErr = err
			break
		}

		_, err := s.bot.Send(recipient, text)
		if err == nil {
			if attempt > 1 {
				logger.Info(ctx, "tg.sender", "send.retry.success",
					slog.Int64("chat_id", chatID),
					slog.Int("attempt", attempt),
					slog.Duration("duration", logger.Took(start)),
				)
			}
			return nil
		}
		lastErr = err
		if !ShouldRetry(err) || attempt == attempts {
			break
		}

		delay := s.opts.RetryBackoff * time.Duration(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-deadlineCtx.Done():
			timer.Stop()
			lastErr = deadlineCtx.Err()
		case <-timer.C:
			logger.Debug(ctx, "tg.sender", "send.retry.backoff",
				slog.Int64("chat_id", chatID),
				slog.Int("attempt", attempt),
				slog.Duration("duration", delay),
			)
			continue
		}
		break
	}

	logger.Error(ctx, "tg.sender", "send.fail",
		slog.Int64("chat_id", chatID),
		slog.String("err", SanitizeError(lastErr)),
		slog.String("err_code", classifyError(lastErr)),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.Took(start)),
	)
	return &DeliveryError{
		ChatID:  chatID,
		Blocked: isBlockedErr(lastErr),
		Err:     lastErr,
	}
}

// isBlockedErr recognizes Telegram's "bot was blocked" family of errors.
func isBlockedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, tele.ErrBlockedByUser) ||
		errors.Is(err, tele.ErrUserIsDeactivated) ||
		errors.Is(err, tele.ErrNotStartedByUser) {
		return true
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusForbidden
	}
	return false
}
