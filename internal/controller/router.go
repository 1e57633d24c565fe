package controller

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sokodigital/storefront-payments/internal/infrastructure/config"
	"github.com/sokodigital/storefront-payments/internal/infrastructure/observability"
	customMW "github.com/sokodigital/storefront-payments/internal/middleware"
	"github.com/sokodigital/storefront-payments/internal/repository/postgres"
	"github.com/sokodigital/storefront-payments/internal/service"
)

type RouterDeps struct {
	Pool            *pgxpool.Pool
	RedisClient     *redis.Client
	CheckoutService *service.CheckoutService
	Initiation      *service.InitiationService
	Reconcile       *service.ReconcileService
	IdempotencyRepo *postgres.IdempotencyRepository
	IdempotencyTTL  time.Duration
	Metrics         *observability.Metrics
	ServerConfig    config.ServerConfig
	Logger          zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.ServerConfig.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link", "X-Idempotency-Replayed"},
		AllowCredentials: deps.ServerConfig.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	checkoutH := NewCheckoutController(deps.CheckoutService)
	paymentH := NewPaymentController(
		deps.Initiation,
		deps.Reconcile,
		deps.ServerConfig.CheckoutSuccessURL,
		deps.ServerConfig.CheckoutErrorURL,
		deps.Logger,
	)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Idempotency middleware for endpoints that must not run twice.
		idempotencyMW := customMW.Idempotency(deps.IdempotencyRepo, deps.IdempotencyTTL, deps.Logger)

		// Orders
		r.Post("/orders", checkoutH.CreateOrder)
		r.Get("/orders/{id}", checkoutH.GetOrder)

		// Registrations
		r.Post("/registrations", checkoutH.CreateRegistration)
		r.Get("/registrations/{id}", checkoutH.GetRegistration)
		r.Post("/registrations/{id}/refund", checkoutH.RefundRegistration)

		// Payments
		r.With(idempotencyMW).Post("/payments/initiate", paymentH.InitiatePayment)
		r.Get("/payments/{kind}/{id}", paymentH.GetPaymentStatus)
		r.Post("/payments/paypal/capture", paymentH.CapturePayPal)

		// Gateway notification channels. These carry no session and are
		// authenticated by the correlation ids they reference.
		r.Post("/payments/mpesa/callback", paymentH.MpesaCallback)
		r.Get("/payments/pesapal/callback", paymentH.PesapalCallback)
		r.Get("/payments/pesapal/ipn", paymentH.PesapalIPN)
	})

	return r
}
