// Command bot runs the Telegram bot backend: webhook ingress, payment
// pipeline, relay bridge, and the posting worker, all over one embedded
// SQLite store.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/juicyfox/juicybot/internal/access"
	"github.com/juicyfox/juicybot/internal/config"
	"github.com/juicyfox/juicybot/internal/dispatch"
	"github.com/juicyfox/juicybot/internal/flows"
	"github.com/juicyfox/juicybot/internal/fsm"
	httpapi "github.com/juicyfox/juicybot/internal/http"
	"github.com/juicyfox/juicybot/internal/http/handlers"
	"github.com/juicyfox/juicybot/internal/observability"
	"github.com/juicyfox/juicybot/internal/payments"
	"github.com/juicyfox/juicybot/internal/posting"
	"github.com/juicyfox/juicybot/internal/relay"
	"github.com/juicyfox/juicybot/internal/repo"
	"github.com/juicyfox/juicybot/internal/sysutil"
	"github.com/juicyfox/juicybot/internal/telegram"
)

// version is stamped at build time via -ldflags.
var version = "dev"

const (
	startupTimeout  = 15 * time.Second
	shutdownTimeout = 20 * time.Second

	// fsmCap bounds the number of concurrent dialog frames kept in memory.
	fsmCap = 4096
)

func main() {
	// Local development convenience; absent .env files are not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	logger := log.With().Str("service", "juicybot").Str("version", version).Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observability.SetupOTel(rootCtx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("database migration failed")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			logger.Warn().Err(err).Msg("gorm tracing plugin failed")
		}
	}
	logger.Info().Str("path", cfg.DBPath).Msg("database ready")

	tg, err := telegram.NewClient(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram client setup failed")
	}

	health := handlers.NewHealth(cfg.BotID, version)
	{
		probeCtx, cancel := context.WithTimeout(rootCtx, startupTimeout)
		botID, err := tg.Probe(probeCtx)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram getMe probe failed")
		}
		if botID != cfg.BotID {
			logger.Fatal().Int64("got", botID).Int64("want", cfg.BotID).Msg("token belongs to a different bot")
		}
		health.SetTelegramReady(true)
		logger.Info().Int64("bot_id", botID).Msg("telegram client verified")
	}

	if cfg.WebhookURL != "" {
		hookCtx, cancel := context.WithTimeout(rootCtx, startupTimeout)
		err := tg.SetWebhook(hookCtx, cfg.WebhookURL)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("url", cfg.WebhookURL).Msg("webhook registration failed")
		}
		logger.Info().Str("url", cfg.WebhookURL).Msg("webhook registered")
	}

	if cfg.LogChannelID != 0 {
		noteCtx, cancel := context.WithTimeout(rootCtx, startupTimeout)
		if _, err := tg.SendMessage(noteCtx, cfg.LogChannelID, "juicybot "+version+" is up"); err != nil {
			logger.Warn().Err(err).Msg("startup notice failed")
		}
		cancel()
	}

	// Domain wiring.
	headers, err := relay.NewHeaderMap(cfg.RelayHeaderCap)
	if err != nil {
		logger.Fatal().Err(err).Msg("header map setup failed")
	}
	relaySvc := relay.NewService(db, cfg, tg, headers, logger)

	payClient := payments.NewClient(cfg, logger)
	converter := payments.NewConverter(payClient)
	granter := access.NewGranter(db, cfg, tg, logger)
	paySvc := payments.NewService(db, cfg, granter, logger)

	queue := posting.NewQueue(db, logger)
	worker := posting.NewWorker(db, tg, cfg.PostWorkerInterval, cfg.PostWorkerBatch, cfg.PostMaxRetries, logger)

	frames := fsm.NewStore(fsmCap, cfg.FSMTTL)
	flowSvc := flows.NewService(db, cfg, tg, frames, payClient, converter, queue, logger)

	dispatcher := dispatch.New(db, cfg, relaySvc, flowSvc, logger)

	// HTTP surface.
	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, cfg, handlers.New(dispatcher, paySvc), health)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(workerCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("termination signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	// Stop taking traffic first, then drain the worker.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}

	cancelWorker()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("timed out waiting for posting worker")
	}

	if err := otelShutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("otel shutdown failed")
	}
	logger.Info().Msg("shutdown complete")
}
