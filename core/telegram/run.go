// Package telegram owns the bot lifecycle: client construction, update
// polling, and graceful shutdown. Message semantics live in the handlers
// subpackage.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"log/slog"

	"github.com/kuznya/studiobot/core/config"
	"github.com/kuznya/studiobot/core/logger"
)

// NewBot builds the telebot instance for the configured run mode.
func NewBot(cfg *config.Config) (*tele.Bot, error) {
	start := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: BuildPoller(cfg),
		Client: BuildHTTPClient(),
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	if strings.EqualFold(cfg.Telegram.RunMode, config.RunModeWebhook) {
		logger.TG.Info("webhook mode",
			slog.String("event", "mode"),
			slog.String("listen", fmt.Sprintf("%s:%d", cfg.Webhook.Listen, cfg.Webhook.Port)),
			slog.Duration("duration", logger.Took(start)),
		)
	} else {
		timeoutSec := cfg.Telegram.LongPollTimeoutSeconds
		if timeoutSec <= 0 {
			timeoutSec = 10
		}
		logger.TG.Info("polling mode",
			slog.String("event", "mode"),
			slog.Int("timeout_seconds", timeoutSec),
			slog.Duration("duration", logger.Took(start)),
		)
		// A leftover webhook silently swallows long-poll updates.
		if err := deleteWebhook(cfg.Telegram.Token, false); err != nil {
			logger.TG.Warn("failed to delete webhook",
				slog.String("event", "delete_webhook"),
				slog.String("err", err.Error()),
			)
		}
	}
	return bot, nil
}

// Run starts the bot and blocks until ctx is done or the poller exits.
func Run(ctx context.Context, bot *tele.Bot) error {
	if ctx == nil {
		ctx = context.Background()
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	case <-runDone:
		return nil
	}
}

func deleteWebhook(token string, dropPending bool) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty token")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/deleteWebhook", token)
	body := "drop_pending_updates=false"
	if dropPending {
		body = "drop_pending_updates=true"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deleteWebhook status: %s", resp.Status)
	}
	return nil
}
