// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"telegram-link-shortener/internal/application"
	"telegram-link-shortener/internal/config"
	"telegram-link-shortener/internal/infra/adapters/shortener"
	tele "telegram-link-shortener/internal/infra/adapters/telegram"
	httpapi "telegram-link-shortener/internal/infra/http"
	"telegram-link-shortener/internal/infra/i18n"
	"telegram-link-shortener/internal/infra/logging"
	"telegram-link-shortener/internal/infra/metrics"
	"telegram-link-shortener/internal/infra/qr"
	"telegram-link-shortener/internal/usecase"
)

// Set via -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "", "path to optional YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted secrets)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Shortener ----
	client, err := shortener.NewAdLinkFlyClient(cfg.AdLinkFly, shortener.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("adlinkfly client")
	}
	logger.Info().
		Str("base_url", cfg.AdLinkFly.BaseURL).
		Str("api_key", logging.Redact(cfg.AdLinkFly.APIKey, cfg.Runtime.Dev)).
		Int("max_attempts", cfg.AdLinkFly.MaxAttempts).
		Float64("rps", cfg.AdLinkFly.RPS).
		Msg("shortener configured")

	// ---- Use cases ----
	shortenUC := usecase.NewShortenUseCase(client, usecase.Policy{
		AllowedUsers:     cfg.Bot.AllowedUserIDs,
		Admins:           cfg.Bot.AdminIDs,
		MaxBatch:         cfg.Bot.MaxBatch,
		WhitelistDomains: cfg.Filters.WhitelistDomains,
		BlacklistDomains: cfg.Filters.BlacklistDomains,
	}, logger)
	if len(cfg.Bot.AllowedUserIDs) == 0 {
		logger.Warn().Msg("ALLOWED_USER_IDS is empty; the bot is open to everyone")
	}

	// ---- Translator ----
	translator, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Language)
	if err != nil {
		logger.Fatal().Err(err).Str("language", cfg.Bot.Language).Msg("i18n")
	}

	// ---- Facade ----
	facade := application.NewBotFacade(shortenUC, translator, qr.Encode, cfg.Bot.InlineMode, logger)

	// ---- Telegram ----
	botAdapter, err := tele.NewRealTelegramBotAdapter(&cfg.Bot, facade, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram")
	}

	// ---- Ops HTTP server ----
	var ops *httpapi.Server
	if cfg.Admin.Addr != "" {
		ops = httpapi.NewServer(cfg.Admin.Addr, logger)
		go func() {
			if err := ops.Start(); err != nil {
				logger.Error().Err(err).Msg("ops http server stopped")
				stop()
			}
		}()
	}

	// ---- Polling (blocks until shutdown) ----
	if err := botAdapter.StartPolling(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("telegram polling stopped")
	}
	logger.Info().Msg("shutdown requested")

	if ops != nil {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ops.Shutdown(shCtx); err != nil {
			logger.Warn().Err(err).Msg("ops http shutdown")
		}
	}
}
