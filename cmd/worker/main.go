package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sokodigital/storefront-payments/internal/bootstrap"
	"github.com/sokodigital/storefront-payments/internal/gateway"
	"github.com/sokodigital/storefront-payments/internal/infrastructure/observability"
	infraRedis "github.com/sokodigital/storefront-payments/internal/infrastructure/redis"
	"github.com/sokodigital/storefront-payments/internal/repository/postgres"
	"github.com/sokodigital/storefront-payments/internal/service"
	"github.com/sokodigital/storefront-payments/pkg/retry"
	"golang.org/x/sync/errgroup"
)

const sweepLockKey = "reconcile:sweep"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "storefront-payments-worker", "storefront_payments_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	orderRepo := postgres.NewOrderRepository(app.Pool)
	regRepo := postgres.NewRegistrationRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	settingsRepo := postgres.NewSettingsRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)
	streamProducer := infraRedis.NewStreamProducer(app.Redis)

	// --- Gateways ---
	settings := gateway.NewConfigSettingsProvider(app.Config.Gateways, settingsRepo)
	httpTimeout := app.Config.Gateways.HTTPTimeout
	factory := gateway.NewFactory(nil,
		gateway.NewMpesaClient(settings, gateway.WithMpesaHTTPTimeout(httpTimeout)),
		gateway.NewPayPalClient(settings, gateway.WithPayPalHTTPTimeout(httpTimeout)),
		gateway.NewPesapalClient(settings, gateway.WithPesapalHTTPTimeout(httpTimeout)),
	)

	reconcileSvc := service.NewReconcileService(orderRepo, regRepo, outboxRepo, txManager, factory, app.Metrics,
		observability.ComponentLogger(app.Logger, "reconcile"))

	workerCfg := app.Config.Worker
	app.Logger.Info().
		Str("instance", app.Config.InstanceID).
		Dur("outbox_poll_interval", workerCfg.OutboxPollInterval).
		Dur("reconcile_interval", workerCfg.ReconcileInterval).
		Msg("Worker started")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runOutboxPublisher(gCtx, app, outboxRepo, streamProducer)
	})

	g.Go(func() error {
		return runReconcileSweep(gCtx, app, reconcileSvc)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

// runOutboxPublisher drains pending outbox entries into the Redis payment
// event stream. Publishing is at-least-once; consumers dedupe on event id.
func runOutboxPublisher(
	ctx context.Context,
	app *bootstrap.App,
	outboxRepo *postgres.OutboxRepository,
	producer *infraRedis.StreamProducer,
) error {
	logger := observability.ComponentLogger(app.Logger, "outbox")
	cfg := app.Config.Worker

	ticker := time.NewTicker(cfg.OutboxPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		entries, err := outboxRepo.GetPending(ctx, cfg.OutboxBatchSize)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to fetch pending outbox entries")
			continue
		}

		for _, entry := range entries {
			payload, err := json.Marshal(entry.Payload)
			if err != nil {
				logger.Error().Err(err).Str("entry_id", entry.ID.String()).Msg("Unmarshalable outbox payload")
				markFailed(ctx, logger, outboxRepo, entry.ID)
				app.Metrics.OutboxPublished.WithLabelValues("failed").Inc()
				continue
			}

			err = retry.Do(ctx, retry.DefaultConfig(), func() error {
				return producer.PublishPaymentEvent(ctx, entry.ID.String(), entry.EventType, payload)
			})
			if err != nil {
				logger.Error().Err(err).Str("entry_id", entry.ID.String()).Msg("Failed to publish payment event")
				markFailed(ctx, logger, outboxRepo, entry.ID)
				app.Metrics.OutboxPublished.WithLabelValues("failed").Inc()
				continue
			}

			if err := outboxRepo.MarkPublished(ctx, entry.ID); err != nil {
				logger.Error().Err(err).Str("entry_id", entry.ID.String()).Msg("Failed to mark entry published")
				continue
			}
			app.Metrics.OutboxPublished.WithLabelValues("published").Inc()
		}
	}
}

// markFailed is best effort: if it errors the entry stays pending and is
// retried next poll.
func markFailed(ctx context.Context, logger zerolog.Logger, outboxRepo *postgres.OutboxRepository, id uuid.UUID) {
	if err := outboxRepo.MarkFailed(ctx, id); err != nil {
		logger.Error().Err(err).Str("entry_id", id.String()).Msg("Failed to mark entry failed")
	}
}

// runReconcileSweep periodically queries the gateways for payments stuck in
// pending, under a Redis lock so only one worker instance sweeps at a time.
func runReconcileSweep(ctx context.Context, app *bootstrap.App, reconcileSvc *service.ReconcileService) error {
	logger := observability.ComponentLogger(app.Logger, "sweep")
	cfg := app.Config.Worker

	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		err := infraRedis.WithLock(ctx, app.Redis, sweepLockKey, cfg.LockTTL, func(ctx context.Context) error {
			start := time.Now()
			cutoff := time.Now().Add(-cfg.StaleAfter)

			result, err := reconcileSvc.ReconcileStale(ctx, cutoff, cfg.SweepBatchSize)
			if err != nil {
				return err
			}

			app.Metrics.SweepDuration.Observe(time.Since(start).Seconds())
			app.Metrics.StalePendingFound.Set(float64(result.Examined))
			if result.Examined > 0 {
				logger.Info().
					Int("examined", result.Examined).
					Int("settled", result.Settled).
					Msg("Reconciliation sweep finished")
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, infraRedis.ErrLockHeld) {
				logger.Debug().Msg("Sweep lock held by another instance")
				continue
			}
			logger.Error().Err(err).Msg("Reconciliation sweep failed")
		}
	}
}
