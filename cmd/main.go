package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"restockbot/backend/internal/alerthub"
	"restockbot/backend/internal/api/handler"
	"restockbot/backend/internal/config"
	"restockbot/backend/internal/logger"
	"restockbot/backend/internal/metrics"
	"restockbot/backend/internal/reports"
	"restockbot/backend/internal/rollover"
	"restockbot/backend/internal/session"
	"restockbot/backend/internal/storage"
	"restockbot/backend/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.SetupDefault(os.Stdout, cfg.LogLevel)
	log.Info("starting restock bot backend")

	flush, err := logger.InitSentry(cfg.SentryDSN, os.Getenv("APP_ENV"))
	if err != nil {
		log.Warn("sentry disabled", slog.String("error", err.Error()))
	}
	defer flush()

	if cfg.TelegramToken == "" {
		log.Error("TELEGRAM_BOT_TOKEN is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(registry)

	// 2. Location catalog and report store
	catalog, err := config.LoadLocations(cfg.LocationsFile)
	if err != nil {
		log.Error("failed to load locations", slog.String("error", err.Error()))
		os.Exit(1)
	}
	backend, err := setupBackend(ctx, cfg)
	if err != nil {
		log.Error("failed to set up store backend", slog.String("error", err.Error()))
		os.Exit(1)
	}
	store := storage.New(backend, log.With(slog.String("component", "storage")), rec,
		storage.WithWeek(cfg.RolloverWeekday, cfg.Timezone),
	)
	if err := store.Load(ctx); err != nil {
		log.Error("failed to load store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Sessions and the live alert hub
	hub := alerthub.NewHub(log.With(slog.String("component", "alerthub")))
	var sessions session.Cache
	switch cfg.SessionBackend {
	case "redis":
		rdb, err := setupRedis(ctx, cfg)
		if err != nil {
			log.Error("failed to connect redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rdb.Close()
		sessions = session.NewRedisCache(rdb, config.SessionTTL)

		hub.SetRelay(alerthub.NewRedisRelay(rdb, "", log))
	default:
		mem := session.NewMemoryCache(config.SessionTTL, rec)
		mem.StartSweeper(ctx, config.SessionSweepInterval, log)
		sessions = mem
	}
	go hub.Run(ctx)

	// 4. Telegram and the report service
	bot, err := telegram.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Error("failed to start telegram bot", slog.String("error", err.Error()))
		os.Exit(1)
	}
	alerts := reports.MultiPublisher{hub}
	var recapPublisher reports.RecapPublisher
	if cfg.AlertChatID != 0 {
		tgPublisher := telegram.NewPublisher(bot, cfg.AlertChatID, cfg.Timezone, log)
		alerts = append(alerts, tgPublisher)
		recapPublisher = tgPublisher
	} else {
		log.Warn("ALERT_CHAT_ID not set, alerts go to websocket subscribers only")
	}

	svc := reports.NewService(store, catalog, sessions, alerts, log.With(slog.String("component", "reports")), rec,
		reports.WithSubmitterCooldown(cfg.SubmitterCooldown),
		reports.WithTimezone(cfg.Timezone),
	)
	botService := telegram.NewBotService(bot, svc, cfg.ModeratorChatID, cfg.Timezone, log.With(slog.String("component", "telegram")))

	scheduler := rollover.NewScheduler(store, svc, recapPublisher, rollover.Schedule{
		Weekday:  cfg.RolloverWeekday,
		Hour:     cfg.RolloverHour,
		Location: cfg.Timezone,
	}, log.With(slog.String("component", "rollover")), rec)

	// 5. Background loops
	go botService.Start(ctx, bot)
	go scheduler.Start(ctx, config.SchedulerInterval)

	// 6. HTTP
	gin.SetMode(gin.ReleaseMode)
	if cfg.AdminJWTSecret == "" {
		log.Warn("ADMIN_JWT_SECRET not set, admin API will reject every request")
	}
	h := handler.NewHandler(svc, hub, handler.NewAuthenticator(cfg.AdminJWTSecret), registry, log.With(slog.String("component", "http")))
	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        handler.NewRouter(h),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", slog.String("error", err.Error()))
	}
}

func setupBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	if cfg.StoreBackend != "postgres" {
		return storage.NewFileBackend(cfg.StorePath, cfg.StoreBackupDir), nil
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	backend := storage.NewGormBackend(db, "restocks")
	if err := backend.AutoMigrate(ctx); err != nil {
		return nil, err
	}
	return backend, nil
}

func setupRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}
