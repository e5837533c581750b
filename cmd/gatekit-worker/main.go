package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/fernandezvara/gatekit/internal/app"
	"github.com/fernandezvara/gatekit/notify"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := app.NewLogger(cfg, "gatekit-worker")

	worker, err := notify.NewWorker(notify.WorkerConfig{
		RedisOpt:    asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Queue:       cfg.NotifyQueue,
		Concurrency: cfg.WorkerConcurrency,
		Deliverer:   notify.LogDeliverer{Logger: log},
		Logger:      log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init worker")
	}

	log.Info().Str("queue", cfg.NotifyQueue).Int("concurrency", cfg.WorkerConcurrency).Msg("worker started")
	if err := worker.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("worker run")
	}
}
