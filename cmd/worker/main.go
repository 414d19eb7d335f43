package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/checkout/internal/bootstrap"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
	infraRedis "github.com/cassiomorais/checkout/internal/infrastructure/redis"
	"github.com/cassiomorais/checkout/internal/postback"
	"github.com/cassiomorais/checkout/internal/repository/postgres"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "checkout-worker", "checkout_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	postbackRepo := postgres.NewPostbackRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)
	streamProducer := infraRedis.NewStreamProducer(app.Redis)

	deliverer := postback.NewDeliverer(
		postback.NewHTTPSender(app.Config.Postback.HTTPTimeout),
		app.Logger,
	)

	// --- Postback stream consumer ---
	workerCfg := app.Config.Worker
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.PostbackStream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group (may already exist)")
	}

	processor := postback.NewProcessor(postback.ProcessorDeps{
		Source:    consumer,
		DLQ:       streamProducer,
		Deliverer: deliverer,
		Repo:      postbackRepo,
		Locks: func(sessionID string) postback.Lock {
			return infraRedis.NewDistributedLock(app.Redis, "postback:"+sessionID, app.Config.Purchase.LockTTL)
		},
		Metrics: app.Metrics,
		Logger:  app.Logger,
		Stream:  infraRedis.PostbackStream,
	})

	app.Logger.Info().
		Str("stream", infraRedis.PostbackStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started, listening for messages...")

	// Signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Postback deliverer (reads from Redis Streams).
	g.Go(func() error {
		return processor.Run(gCtx)
	})

	// 2. Reclaimer: re-runs messages a dead or lock-blocked consumer read
	// but never acked, so a delivery survives worker interruption.
	g.Go(func() error {
		return processor.Reclaim(gCtx, workerCfg.ReclaimInterval, workerCfg.ClaimMinIdle)
	})

	// 3. Outbox processor (polls outbox table and publishes to Redis Streams).
	g.Go(func() error {
		return runOutboxProcessor(gCtx, app.Logger, txManager, outboxRepo, streamProducer, workerCfg.OutboxPollInterval)
	})

	// 4. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

func runOutboxProcessor(
	ctx context.Context,
	logger zerolog.Logger,
	txManager *postgres.TxManager,
	outboxRepo *postgres.OutboxRepository,
	streamProducer *infraRedis.StreamProducer,
	pollInterval time.Duration,
) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		err := txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			entries, err := outboxRepo.GetPending(txCtx, 10)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if err := publishEntry(ctx, streamProducer, entry); err != nil {
					logger.Error().Err(err).Str("outbox_id", entry.ID.String()).Msg("Failed to publish outbox event")
					outboxRepo.MarkFailed(txCtx, entry.ID)
					continue
				}
				outboxRepo.MarkPublished(txCtx, entry.ID)
			}
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("Outbox processor error")
		}
	}
}

func publishEntry(ctx context.Context, producer *infraRedis.StreamProducer, entry *outbox.Entry) error {
	return producer.PublishPostbackEvent(ctx, entry.AggregateID, entry.EventType, entry.Payload)
}
