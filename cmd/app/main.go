// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telegram-knowledge-bot/internal/application"
	"telegram-knowledge-bot/internal/config"
	aiAdapters "telegram-knowledge-bot/internal/infra/adapters/ai"
	"telegram-knowledge-bot/internal/infra/adapters/classify"
	"telegram-knowledge-bot/internal/infra/adapters/download"
	tele "telegram-knowledge-bot/internal/infra/adapters/telegram"
	pg "telegram-knowledge-bot/internal/infra/db/postgres"
	"telegram-knowledge-bot/internal/infra/logging"
	"telegram-knowledge-bot/internal/infra/metrics"
	"telegram-knowledge-bot/internal/infra/persist"
	red "telegram-knowledge-bot/internal/infra/redis"
	"telegram-knowledge-bot/internal/infra/sched"
	"telegram-knowledge-bot/internal/infra/state"
	"telegram-knowledge-bot/internal/infra/storage/markdown"
	"telegram-knowledge-bot/internal/infra/web"
	"telegram-knowledge-bot/internal/infra/worker"
	"telegram-knowledge-bot/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, verbose)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		log.Info().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Redis (bot flood protection) ----
	var floodLimiter *red.FloodLimiter
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, bot flood protection disabled")
	} else {
		defer redisClient.Close()
		floodLimiter = red.NewFloodLimiter(redisClient)
	}

	// ---- Postgres (optional knowledge index) ----
	var entryRepo *pg.PostgresEntryRepo
	if cfg.Database.URL != "" {
		pool, err := pg.Connect(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connect failed")
		}
		defer pool.Close()
		entryRepo = pg.NewPostgresEntryRepo(pool)
	} else {
		log.Info().Msg("no database configured, storing markdown only")
	}

	// ---- Storage ----
	files := markdown.NewStore(cfg.Storage.KnowledgeBasePath, log)
	persistor := persist.NewFanout(files, entryRepo, log)

	// ---- Collaborator adapters ----
	downloader := download.NewRailwayClient(&cfg.Downloader, log)
	analyzer, err := aiAdapters.NewGeminiAnalyzer(ctx, &cfg.AI, log)
	if err != nil {
		log.Fatal().Err(err).Msg("gemini analyzer init failed")
	}
	author, err := aiAdapters.NewOpenRouterAuthor(&cfg.AI, log)
	if err != nil {
		log.Fatal().Err(err).Msg("author init failed")
	}
	evaluator, err := aiAdapters.NewOpenRouterEvaluator(&cfg.AI, log)
	if err != nil {
		log.Fatal().Err(err).Msg("image evaluator init failed")
	}
	imageGen, err := aiAdapters.NewOpenRouterImageGen(&cfg.AI, log)
	if err != nil {
		log.Fatal().Err(err).Msg("image generator init failed")
	}
	classifier := classify.NewKeywordClassifier()

	// ---- Core state ----
	sessions := state.NewSessionStore(log)
	rate := state.NewRateLimiter(cfg.Limits.RatePerHour, cfg.Limits.RateWindow)

	pool := worker.NewPool(cfg.Limits.PipelineSlots, log)
	pool.Start(ctx)
	defer pool.Stop()

	pipeline := usecase.NewPipeline(
		downloader, analyzer, author, evaluator, imageGen, persistor,
		cfg.Downloader.Formats, cfg.Images.Enabled, cfg.Images.MaxPerEntry,
		cfg.Timeouts, log,
	)
	gate := usecase.NewApprovalGate(log)

	// ---- Telegram ----
	bot, err := tele.NewRealTelegramBot(&cfg.Bot, floodLimiter, log)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram init failed")
	}

	supervisor := usecase.NewJobSupervisor(
		sessions, rate, pipeline, gate, pool, bot, classifier,
		cfg.Limits.SessionTTL, log,
	)
	app := application.NewApp(supervisor)
	bot.Bind(app)

	go func() {
		if err := bot.StartPolling(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("telegram polling stopped")
		}
	}()

	// ---- Session sweeper ----
	sweeper := sched.NewSessionSweeper(cfg.Limits.SweepInterval, supervisor, log)
	go func() { _ = sweeper.Run(ctx) }()

	// ---- Admin HTTP surface ----
	probes := map[string]web.HealthProbe{
		"downloader": downloader.Healthy,
	}
	if redisClient != nil {
		probes["redis"] = redisClient.Ping
	}
	var entryIndex web.EntryIndex
	if entryRepo != nil {
		entryIndex = entryRepo
	}
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, 30*time.Minute)
	srv := web.NewServer(app, auth, cfg.Admin.APIToken, entryIndex, probes, log)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler: srv.Router(),
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("admin http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	bot.StopPolling()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
