// Package app wires the loyalty engine together: storage, session store,
// platform client, domain services, HTTP surfaces, and graceful shutdown.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/leatlabs/loyalty-engine/internal/domain/coupon"
	"github.com/leatlabs/loyalty-engine/internal/handler"
	"github.com/leatlabs/loyalty-engine/internal/loyalty"
	"github.com/leatlabs/loyalty-engine/internal/reconcile"
	"github.com/leatlabs/loyalty-engine/internal/repository"
	"github.com/leatlabs/loyalty-engine/internal/session"
	"github.com/leatlabs/loyalty-engine/pkg/health"
	"github.com/leatlabs/loyalty-engine/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis session cart store.
	rdb, err := session.NewClient(cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "create redis client")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			lg.Error("close redis client", zap.Error(err))
		}
	}()
	carts := session.NewStore(rdb, cfg.CartTTL)

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	ruleRepo := repository.NewSpendRuleRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	noteRepo := repository.NewOrderNoteRepository(pool)
	contactRepo := repository.NewContactRepository(pool)
	earnRuleRepo := repository.NewEarnRuleRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Loyalty platform client + domain services.
	platform, err := loyalty.New(loyalty.Config{
		BaseURL: cfg.Platform.BaseURL,
		APIKey:  cfg.Platform.APIKey,
		Timeout: cfg.Platform.Timeout,
	})
	if err != nil {
		return errors.Wrap(err, "create loyalty client")
	}
	bridge := coupon.NewBridge(couponRepo, ruleRepo, productRepo, carts)
	reconciler := reconcile.New(orderRepo, noteRepo, contactRepo, earnRuleRepo, platform, lg.Named("reconcile"))

	// HTTP handlers.
	h := handler.New(
		carts,
		productRepo,
		ruleRepo,
		couponRepo,
		bridge,
		orderRepo,
		noteRepo,
		reconciler,
		apikeyRepo,
		[]byte(cfg.APIKeyPepper),
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(
			otelhttp.NewHandler(mux, "loyalty-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-API-Key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
