package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sokodigital/storefront-payments/internal/bootstrap"
	"github.com/sokodigital/storefront-payments/internal/controller"
	"github.com/sokodigital/storefront-payments/internal/gateway"
	"github.com/sokodigital/storefront-payments/internal/infrastructure/observability"
	"github.com/sokodigital/storefront-payments/internal/repository/postgres"
	"github.com/sokodigital/storefront-payments/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "storefront-payments-api", "storefront_payments")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	orderRepo := postgres.NewOrderRepository(app.Pool)
	regRepo := postgres.NewRegistrationRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	settingsRepo := postgres.NewSettingsRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Gateways ---
	settings := gateway.NewConfigSettingsProvider(app.Config.Gateways, settingsRepo)
	httpTimeout := app.Config.Gateways.HTTPTimeout
	factory := gateway.NewFactory(nil,
		gateway.NewMpesaClient(settings, gateway.WithMpesaHTTPTimeout(httpTimeout)),
		gateway.NewPayPalClient(settings, gateway.WithPayPalHTTPTimeout(httpTimeout)),
		gateway.NewPesapalClient(settings, gateway.WithPesapalHTTPTimeout(httpTimeout)),
	)

	// --- Services ---
	checkoutSvc := service.NewCheckoutService(orderRepo, regRepo,
		observability.ComponentLogger(app.Logger, "checkout"))
	initiationSvc := service.NewInitiationService(orderRepo, regRepo, factory, app.Metrics,
		observability.ComponentLogger(app.Logger, "initiation"))
	reconcileSvc := service.NewReconcileService(orderRepo, regRepo, outboxRepo, txManager, factory, app.Metrics,
		observability.ComponentLogger(app.Logger, "reconcile"))

	router := controller.NewRouter(controller.RouterDeps{
		Pool:            app.Pool,
		RedisClient:     app.Redis,
		CheckoutService: checkoutSvc,
		Initiation:      initiationSvc,
		Reconcile:       reconcileSvc,
		IdempotencyRepo: idempotencyRepo,
		IdempotencyTTL:  app.Config.Worker.IdempotencyTTL,
		Metrics:         app.Metrics,
		ServerConfig:    app.Config.Server,
		Logger:          observability.ComponentLogger(app.Logger, "http"),
	})

	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
