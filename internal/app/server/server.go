package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"erpadmin/internal/domain/audit"
	"erpadmin/internal/domain/auth"
	"erpadmin/internal/platform/config"
	"erpadmin/internal/platform/crypto"
	"erpadmin/internal/platform/db"
	"erpadmin/internal/platform/jobs"
	"erpadmin/internal/platform/metrics"
	authhandler "erpadmin/internal/transport/http/handlers/auth"
	systemshandler "erpadmin/internal/transport/http/handlers/systems"
	"erpadmin/internal/transport/http/middleware"
)

// Deps are the collaborators the router is built from.
type Deps struct {
	Config  config.Config
	Auth    *auth.Service
	Metrics *metrics.Collector
	// Audit receives the auth event trail. Nil disables it.
	Audit *audit.Service
	// Ready reports backing store health for /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	if cfg.TrustProxyHeaders {
		router.Use(chimiddleware.RealIP)
	}
	router.Use(middleware.Auth(cfg.JWTSecret, deps.Auth))
	router.Use(middleware.Logger(slog.Default(), deps.Metrics))
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Ready(ctx); err != nil {
				http.Error(w, "store not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled && deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))

		authHandler := authhandler.NewHandler(deps.Auth, deps.Metrics, deps.Audit)
		r.With(middleware.LoginRateLimit(cfg.LoginRatePerMinute, time.Minute)).Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)
		r.With(middleware.RequireUser).Get("/auth/me", authHandler.HandleMe)
		r.With(middleware.RequireUser).Post("/auth/refresh", authHandler.HandleRefresh)

		systemsHandler := systemshandler.NewHandler(nil)
		r.Get("/systems", systemsHandler.HandleList)
	})

	return router
}

// Run wires the store, seeds it and serves until ctx is done.
func Run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	sealer, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption key: %w", err)
	}

	var (
		store auth.StoreAPI
		seed  auth.SeedAPI
		trail audit.Store
		ready func(context.Context) error
	)
	switch cfg.Store {
	case config.StoreMemory:
		mem := auth.NewMemoryStore()
		store, seed, trail = mem, mem, audit.NewMemoryStore()
		slog.Warn("using in-memory store; sessions and users vanish on restart")
	default:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer pool.Close()
		if cfg.RunMigrations {
			if err := db.Migrate(ctx, pool, db.Migrations()); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
		}
		pg := auth.NewStore(pool)
		store, seed, trail, ready = pg, pg, audit.NewPGStore(pool), pool.Ping
	}

	if cfg.RunSeed {
		if err := auth.Seed(ctx, seed, auth.SeedInput{
			CompanyName:        cfg.SeedCompanyName,
			AdminEmail:         cfg.SeedAdminEmail,
			AdminPassword:      cfg.SeedAdminPassword,
			SuperAdminEmail:    cfg.SeedSuperAdminEmail,
			SuperAdminPassword: cfg.SeedSuperAdminPassword,
		}); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	service := auth.NewService(store, cfg.JWTSecret, sealer)
	service.SessionTTL = cfg.SessionTTL
	service.RememberTTL = cfg.RememberTTL
	collector := metrics.New()

	jobCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	runner := jobs.New(slog.Default(), collector, 16)
	runner.Start(jobCtx)
	runner.Every(jobCtx, JobSessionPurge, cfg.SessionSweepInterval, purgeSessions(service, cfg.SessionRetention))

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: NewRouter(Deps{
			Config:  cfg,
			Auth:    service,
			Metrics: collector,
			Audit:   audit.New(trail),
			Ready:   ready,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("auth server listening", "addr", cfg.Addr, "store", cfg.Store, "env", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	slog.Info("shutting down")
	err = srv.Shutdown(shutdownCtx)
	stopJobs()
	runner.Wait()
	return err
}

const JobSessionPurge = "session_purge"

func purgeSessions(service *auth.Service, retain time.Duration) jobs.RunFunc {
	return func(ctx context.Context) (any, error) {
		deleted, err := service.PurgeSessions(ctx, retain)
		return map[string]any{"deleted": deleted}, err
	}
}
