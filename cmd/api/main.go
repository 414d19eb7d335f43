package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	purchaseApp "github.com/cassiomorais/checkout/internal/application/purchase"
	"github.com/cassiomorais/checkout/internal/billers"
	"github.com/cassiomorais/checkout/internal/binrouting"
	"github.com/cassiomorais/checkout/internal/bootstrap"
	"github.com/cassiomorais/checkout/internal/callgate"
	"github.com/cassiomorais/checkout/internal/controller"
	"github.com/cassiomorais/checkout/internal/domain/cascade"
	"github.com/cassiomorais/checkout/internal/fraud"
	"github.com/cassiomorais/checkout/internal/repository/postgres"
	"github.com/cassiomorais/checkout/internal/session"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "checkout-api", "checkout")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	sessionRepo := postgres.NewSessionRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Domain services ---
	gate := callgate.New(callgate.Settings{
		FailureThreshold: app.Config.CallGate.FailureThreshold,
		CoolDown:         app.Config.CallGate.CoolDown,
		DefaultTimeout:   app.Config.CallGate.BillerTimeout,
	})
	timeouts := purchaseApp.GateTimeouts{
		Biller:     app.Config.CallGate.BillerTimeout,
		Fraud:      app.Config.CallGate.FraudTimeout,
		BinRouting: app.Config.CallGate.BinRoutingTimeout,
	}

	registry := billers.NewRegistry()
	resolver := binrouting.NewGatedResolver(
		gate,
		binrouting.NewStaticResolver(map[string][]cascade.Candidate{
			"visa":       {{Biller: "netbilling", PaymentMethod: "visa"}, {Biller: "epoch", PaymentMethod: "visa"}},
			"mastercard": {{Biller: "epoch", PaymentMethod: "mastercard"}, {Biller: "netbilling", PaymentMethod: "mastercard"}},
		}),
		timeouts.BinRouting,
	)
	selector := cascade.NewSelector(resolver)
	fraudFactory := fraud.NewFactory(fraud.NewMockScorer())

	sites := purchaseApp.StaticSiteConfigs{
		purchaseApp.DefaultSiteKey: {
			EnabledBillers: registry.Names(),
			DefaultPaymentMethods: map[string]string{
				"cc":  "visa",
				"ach": "ach",
			},
		},
	}

	// --- Use cases ---
	persister := purchaseApp.NewPersister(sessionRepo, session.NewCodec(), txManager, outboxRepo, purchaseApp.PostbackPolicy{
		MaxAttempts: app.Config.Postback.MaxAttempts,
		RetryDelay:  app.Config.Postback.RetryDelay,
	})
	initiateUC := purchaseApp.NewInitiateUseCase(selector, sites, persister)
	attemptUC := purchaseApp.NewAttemptUseCase(persister, registry, fraudFactory, gate, timeouts)
	threeDSUC := purchaseApp.NewAdvanceThreeDSUseCase(persister, registry, gate, timeouts)
	abortUC := purchaseApp.NewAbortUseCase(persister)
	getUC := purchaseApp.NewGetUseCase(persister)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:        app.Pool,
		RedisClient: app.Redis,
		Initiate:    initiateUC,
		Attempt:     attemptUC,
		ThreeDS:     threeDSUC,
		Abort:       abortUC,
		Get:         getUC,
		Metrics:     app.Metrics,
		CORSConfig:  app.Config.Server.CORS,
	})

	// Export breaker states so dashboards see an open circuit before
	// consumers do.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			for dep, state := range gate.States() {
				app.Metrics.CircuitBreakerState.WithLabelValues(dep).Set(float64(state))
			}
		}
	}()

	// --- HTTP server ---
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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
