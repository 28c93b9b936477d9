package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/glowdesk/salon-capacity/internal/booking"
	"github.com/glowdesk/salon-capacity/internal/config"
	"github.com/glowdesk/salon-capacity/internal/db"
	redisclient "github.com/glowdesk/salon-capacity/internal/redis"
	"github.com/glowdesk/salon-capacity/internal/settings"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "completion-worker").Logger()
	log.Info().Msg("completion-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	settingsSvc := settings.NewService(settings.NewPgRepository(pgPool), cfg.SettingsCacheTTL)
	locker := redisclient.NewRedisDateLocker(rdb, cfg.LockTTL, cfg.LockAcquireTimeout, cfg.LockRetryInterval)
	svc := booking.NewService(booking.NewPgRepository(pgPool), locker, settingsSvc, cfg.Timezone, log)

	// Run once at startup
	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping completion worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.CompleteFinished(runCtx); err != nil {
		log.Error().Err(err).Msg("completion run error")
		return
	}
	log.Info().Dur("took", time.Since(start)).Msg("completion run complete")
}
