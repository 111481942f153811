package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mindhaven/provider-calendar/internal/calendar"
	"github.com/mindhaven/provider-calendar/internal/config"
	"github.com/mindhaven/provider-calendar/internal/db"
	"github.com/mindhaven/provider-calendar/internal/logging"
	redisclient "github.com/mindhaven/provider-calendar/internal/redis"
	"github.com/mindhaven/provider-calendar/internal/storage"
)

// The completion worker sweeps confirmed sessions whose end time has
// passed and marks them completed. Elapsed sessions are a policy
// transition, not a deletion, so the sweep is safe to re-run at any
// cadence.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("completion-worker starting up",
		zap.String("env", cfg.Env), zap.String("schedule", cfg.CompletionSchedule))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	store := storage.NewPgStore(pgPool)
	locker := redisclient.NewProviderLocker(rdb, cfg.LockTTL)
	engine := calendar.NewEngine(store, locker, calendar.SystemClock(), calendar.NewBus(), logger)

	publisher := redisclient.NewEventPublisher(rdb, cfg.EventChannel, logger)
	publisher.Attach(engine.Bus())
	store.AttachEventLog(engine.Bus(), logger)

	// Run once at startup, then on the configured cron schedule.
	sweep(rootCtx, engine, store, logger)

	c := cron.New()
	_, err = c.AddFunc(cfg.CompletionSchedule, func() {
		sweep(rootCtx, engine, store, logger)
	})
	if err != nil {
		logger.Fatal("invalid completion schedule", zap.String("schedule", cfg.CompletionSchedule), zap.Error(err))
	}
	c.Start()

	<-rootCtx.Done()
	logger.Info("shutdown signal received, stopping completion worker")
	<-c.Stop().Done()
}

func sweep(ctx context.Context, engine *calendar.Engine, store *storage.PgStore, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	start := time.Now()

	providerIDs, err := store.ProviderIDs(runCtx)
	if err != nil {
		logger.Error("list providers", zap.Error(err))
		return
	}

	total := 0
	for _, id := range providerIDs {
		n, err := engine.CompleteElapsedSessions(runCtx, id)
		if err != nil {
			logger.Error("completion sweep error", zap.String("provider_id", id), zap.Error(err))
			continue
		}
		total += n
	}

	logger.Info("completion sweep finished",
		zap.Int("providers", len(providerIDs)),
		zap.Int("completed", total),
		zap.Duration("duration", time.Since(start)))
}
