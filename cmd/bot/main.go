package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/database"
	"remindbot/internal/events"
	"remindbot/internal/repository"
	"remindbot/shared/reminders"
	"remindbot/shared/timers"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const metricsNamespace = "remindbot"

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("REMINDBOT_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = configureLogger(cfg, logger)

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	var store reminders.Store = db
	if cfg.UsesRedis() {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		store = repository.NewRedisReminderStore(rdb, cfg.Redis.Prefix, logger)
	}
	logger.Info().Str("backend", cfg.Storage.Reminders).Msg("reminder storage selected")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reminderMetrics := reminders.NewMetrics(metricsNamespace, reg)
	timerMetrics := timers.NewMetrics(metricsNamespace, reg)

	api, err := bot.NewAPI(cfg.Telegram.BotToken, cfg.DeliveryTimeout(), cfg.Telegram.UpdateTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram connect error")
	}
	api.Debug = cfg.Telegram.Debug

	scheduler := reminders.NewScheduler(
		schedulerConfig(cfg),
		store,
		bot.NewTelegramChannel(api, logger),
		db,
		reminderMetrics,
		logger,
	)
	tracker := timers.NewTracker(db, timerMetrics, logger)

	bus := events.NewEventBus(logger)
	bus.Subscribe(events.Wildcard, auditHandler(logger))
	scheduler.SetEventPublisher(bus)
	tracker.SetEventPublisher(bus)

	b, err := bot.New(api, cfg.Telegram.UpdateTimeout, bot.Deps{
		Reminders:   scheduler,
		Timers:      tracker,
		DeadLetters: db,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	maintenance, err := startMaintenance(ctx, cfg, db, tracker, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("schedule maintenance error")
	}
	defer func() { <-maintenance.Stop().Done() }()

	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start reminder scheduler error")
	}
	defer scheduler.Stop()

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8080
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, scheduler, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, reg, &logger)
	}

	logger.Info().Str("bot", api.Self.UserName).Msg("reminder bot started")
	b.Start(ctx)
	logger.Info().Msg("shutting down")
}

func configureLogger(cfg *config.Config, logger zerolog.Logger) zerolog.Logger {
	if !cfg.Logging.Pretty {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.Warn().Str("level", cfg.Logging.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func schedulerConfig(cfg *config.Config) reminders.SchedulerConfig {
	sc := reminders.DefaultSchedulerConfig()
	sc.ScanInterval = cfg.ScanInterval()
	sc.MaxConcurrentDeliveries = cfg.MaxConcurrentDeliveries()
	sc.Format = bot.FormatReminder
	sc.Sender.Timeout = cfg.DeliveryTimeout()
	sc.Sender.Retry.MaxRetries = cfg.MaxRetries()
	if delays := cfg.RetryDelays(); delays != nil {
		sc.Sender.Retry.RetryDelays = delays
	}
	if cfg.Reminders.RatePerSecond > 0 {
		sc.Sender.RateLimiter.Rate = cfg.Reminders.RatePerSecond
	}
	if cfg.Reminders.RateBurst > 0 {
		sc.Sender.RateLimiter.Burst = cfg.Reminders.RateBurst
	}
	return sc
}

// startMaintenance schedules timer cleanup and database backups.
func startMaintenance(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	tracker *timers.Tracker,
	logger zerolog.Logger,
) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	retention := cfg.TimerRetention()
	if _, err := c.AddFunc(cfg.Timers.CleanupSchedule, func() {
		if _, err := tracker.Cleanup(ctx, retention); err != nil {
			logger.Error().Err(err).Msg("timer cleanup failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule timer cleanup %q: %w", cfg.Timers.CleanupSchedule, err)
	}

	backup := database.NewBackupService(db, cfg.Backup, logger)
	if err := backup.Register(ctx, c); err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}

func auditHandler(logger zerolog.Logger) events.EventHandler {
	audit := logger.With().Str("component", "audit").Logger()
	return func(ev events.Event) error {
		e := audit.Info().Int64("event_id", ev.ID).Str("type", ev.Type)
		switch p := ev.Payload.(type) {
		case reminders.DeliveryEvent:
			e = e.Int64("reminder_id", p.Reminder.ID).
				Int64("target_id", p.Reminder.TargetID).
				Int("attempts", p.Attempts)
			if p.Reason != "" {
				e = e.Str("reason", string(p.Reason))
			}
		case timers.TimerEvent:
			e = e.Int64("timer_id", p.Timer.ID).
				Int64("owner_id", p.Timer.OwnerID).
				Str("name", p.Timer.Name)
			if p.Elapsed > 0 {
				e = e.Dur("elapsed", p.Elapsed)
			}
		}
		e.Msg("event")
		return nil
	}
}

func startHealthServer(
	ctx context.Context,
	port int,
	db *database.DB,
	rdb *redis.Client,
	scheduler *reminders.Scheduler,
	logger *zerolog.Logger,
) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		if !scheduler.IsRunning() {
			http.Error(w, "scheduler not running", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, reg *prometheus.Registry, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
