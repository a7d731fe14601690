// Command bot runs the Kuznya Music studio bot: a dialog broker between
// Telegram users and the studio admin, with broadcasts and referrals.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"log/slog"

	"github.com/kuznya/studiobot/core/broadcast"
	"github.com/kuznya/studiobot/core/config"
	"github.com/kuznya/studiobot/core/database"
	"github.com/kuznya/studiobot/core/dialog"
	"github.com/kuznya/studiobot/core/health"
	"github.com/kuznya/studiobot/core/logger"
	"github.com/kuznya/studiobot/core/ratelimit"
	"github.com/kuznya/studiobot/core/referral"
	"github.com/kuznya/studiobot/core/router"
	"github.com/kuznya/studiobot/core/storage"
	"github.com/kuznya/studiobot/core/telegram"
	"github.com/kuznya/studiobot/core/telegram/handlers"
	"github.com/kuznya/studiobot/core/transport"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("studiobot: %v", err)
	}
}

func run() error {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.L.Error("store close failed",
				slog.String("component", "app"),
				slog.String("event", "shutdown"),
				slog.String("err", err.Error()),
			)
		}
	}()

	bot, err := telegram.NewBot(cfg)
	if err != nil {
		return err
	}

	registry := dialog.NewRegistry(store)
	sender := transport.NewTelebotSender(bot, transport.Options{MaxRetries: 2})
	limiter := ratelimit.New(store, cfg.RateLimit.Window(), cfg.RateLimit.MaxMessages)
	rtr := router.New(registry, limiter, sender, router.Options{
		AdminID:          cfg.Telegram.AdminID,
		AutoStart:        cfg.Dialog.AutoStartOnFirstMessage,
		MaxMessageLength: cfg.Dialog.MaxMessageLength,
	})
	caster := broadcast.New(sender, registry, cfg.Telegram.AdminID,
		cfg.Broadcast.PaceEvery, cfg.Broadcast.PaceDelay())
	referrals := referral.New(store, cfg.Referral.Threshold)

	handlers.Register(bot, handlers.Deps{
		Cfg:       cfg,
		Registry:  registry,
		Router:    rtr,
		Broadcast: caster,
		Referral:  referrals,
		Transport: sender,
		BotName:   bot.Me.Username,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ops := health.NewServer(cfg.Health.Listen, registry, store)
	go func() {
		if err := ops.Start(); err != nil {
			logger.HTTP.Error("ops server failed",
				slog.String("event", "http.start"),
				slog.String("err", err.Error()),
			)
			cancel()
		}
	}()

	logger.L.With("component", "app").Info("app ready",
		slog.String("event", "ready"),
		slog.String("backend", cfg.Storage.Backend),
	)

	runErr := telegram.Run(ctx, bot)

	logger.L.With("component", "app").Info("shutting down...",
		slog.String("event", "shutdown"),
	)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		logger.HTTP.Warn("ops server shutdown failed",
			slog.String("event", "http.stop"),
			slog.String("err", err.Error()),
		)
	}
	return runErr
}

// buildStore selects the state backend; postgres additionally runs
// migrations before the first query.
func buildStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		logger.DB.Info("using in-memory store",
			slog.String("event", "storage.init"),
			slog.String("backend", cfg.Storage.Backend),
		)
		return storage.NewMemoryStore(), nil

	case config.BackendBadger:
		store, err := storage.OpenBadger(cfg.Storage.BadgerDir)
		if err != nil {
			return nil, err
		}
		logger.DB.Info("badger store opened",
			slog.String("event", "storage.init"),
			slog.String("backend", cfg.Storage.Backend),
			slog.String("path", cfg.Storage.BadgerDir),
		)
		return store, nil

	case config.BackendPostgres:
		if err := database.RunMigrations(cfg.Storage.Postgres); err != nil {
			return nil, err
		}
		db, err := database.Connect(cfg.Storage.Postgres)
		if err != nil {
			return nil, err
		}
		return storage.NewPostgresStore(db), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
