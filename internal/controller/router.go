package controller

import (
	"time"

	purchaseApp "github.com/cassiomorais/checkout/internal/application/purchase"
	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/checkout/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Initiate    *purchaseApp.InitiateUseCase
	Attempt     *purchaseApp.AttemptUseCase
	ThreeDS     *purchaseApp.AdvanceThreeDSUseCase
	Abort       *purchaseApp.AbortUseCase
	Get         *purchaseApp.GetUseCase
	Metrics     *observability.Metrics
	CORSConfig  config.CORSConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	purchaseH := NewPurchaseController(deps.Initiate, deps.Attempt, deps.ThreeDS, deps.Abort, deps.Get)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/purchases", purchaseH.Create)
		r.Get("/purchases/{sessionID}", purchaseH.Get)
		r.Post("/purchases/{sessionID}/attempt", purchaseH.Attempt)
		r.Post("/purchases/{sessionID}/3ds/{step}", purchaseH.ThreeDS)
		r.Post("/purchases/{sessionID}/abort", purchaseH.Abort)
	})

	return r
}
