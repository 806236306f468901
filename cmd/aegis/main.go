package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/aegis/pkg/audit"
	"github.com/platinummonkey/aegis/pkg/config"
	"github.com/platinummonkey/aegis/pkg/httputil"
	"github.com/platinummonkey/aegis/pkg/middleware"
	"github.com/platinummonkey/aegis/pkg/observability"
	"github.com/platinummonkey/aegis/pkg/rbac"
	"github.com/platinummonkey/aegis/pkg/rbac/pgstore"
)

func main() {
	seed := flag.Bool("seed", false, "Install default roles and permissions, then continue serving")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	engine := newEngine(cfg)

	var store *pgstore.Store
	if cfg.Snapshot.PostgresURL != "" {
		store, err = pgstore.Open(ctx, cfg.Snapshot.PostgresURL)
		if err != nil {
			logger.WithError(err).Error("failed to open snapshot store")
			os.Exit(1)
		}
		defer store.Close()

		snap, err := store.Load(ctx)
		if err != nil {
			logger.WithError(err).Error("failed to load snapshot")
			os.Exit(1)
		}
		if err := engine.Restore(ctx, snap); err != nil {
			logger.WithError(err).Error("failed to restore snapshot")
			os.Exit(1)
		}
		logger.WithFields(map[string]interface{}{
			"roles":       len(snap.Roles),
			"permissions": len(snap.Permissions),
		}).Info("snapshot restored")
	}

	if *seed || cfg.Snapshot.SeedDefaults {
		if err := rbac.Seed(ctx, engine); err != nil {
			logger.WithError(err).Error("failed to seed defaults")
			os.Exit(1)
		}
		logger.Info("default roles and permissions installed")
	}

	var auditLogger audit.Logger = audit.NopLogger{}
	if cfg.Observability.AuditEnabled {
		auditLogger = audit.NewSlogLogger(logger.Slog())
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// API router
	var gateOpts []rbac.GateOption
	if metrics != nil {
		gateOpts = append(gateOpts, rbac.WithCheckRecorder(metrics))
	}
	handlers := rbac.NewHandlers(engine, auditLogger, gateOpts...)
	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	principal := middleware.NewPrincipalMiddleware(middleware.HeaderPrincipalResolver{
		Header: cfg.Server.PrincipalHeader,
	})

	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
		principal.Handler,
	}

	if metrics != nil {
		chain = append(chain, observability.HTTPMetricsMiddleware(metrics))
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      httputil.Chain(chain...)(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics server on a separate port for probes and scrapers
	healthMux := http.NewServeMux()
	if store != nil {
		observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(store.DB()))
	} else {
		observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(nil))
	}
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	// Background jobs: metrics refresh and periodic snapshot saves
	scheduler := cron.New()
	if metrics != nil {
		if _, err := scheduler.AddFunc("@every 15s", func() {
			stats := engine.CacheStats()
			metrics.UpdateCacheMetrics(observability.CacheCounters{
				Hits:          stats.Hits,
				Misses:        stats.Misses,
				Invalidations: stats.Invalidations,
				Evictions:     stats.Evictions,
				Entries:       stats.Entries,
			})
			metrics.RolesTotal.Set(float64(len(engine.ListRoles(ctx))))
			metrics.PermissionsTotal.Set(float64(len(engine.ListPermissions(ctx))))
		}); err != nil {
			logger.WithError(err).Error("failed to schedule metrics refresh")
			os.Exit(1)
		}
	}
	if store != nil && cfg.Snapshot.SaveInterval > 0 {
		schedule := fmt.Sprintf("@every %s", cfg.Snapshot.SaveInterval)
		if _, err := scheduler.AddFunc(schedule, func() {
			saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := saveSnapshot(saveCtx, engine, store, metrics); err != nil {
				logger.WithError(err).Error("periodic snapshot save failed")
			}
		}); err != nil {
			logger.WithError(err).Error("failed to schedule snapshot saves")
			os.Exit(1)
		}
	}
	scheduler.Start()

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		stopCtx := scheduler.Stop()
		select {
		case <-stopCtx.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if store != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return saveSnapshot(ctx, engine, store, metrics)
		})
	}

	var g errgroup.Group
	g.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(shutdown.WaitForShutdown)

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

// newEngine builds the engine from cache configuration.
func newEngine(cfg *config.Config) *rbac.Engine {
	if !cfg.Cache.Enabled {
		return rbac.NewEngine(rbac.WithCacheDisabled())
	}
	return rbac.NewEngine(
		rbac.WithCacheTTL(cfg.Cache.TTL),
		rbac.WithCacheSize(cfg.Cache.Size),
	)
}

// saveSnapshot persists the engine state and records the outcome.
func saveSnapshot(ctx context.Context, engine *rbac.Engine, store *pgstore.Store, metrics *observability.Metrics) error {
	start := time.Now()
	err := store.Save(ctx, engine.Snapshot(ctx))
	if metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.SnapshotOperationsTotal.WithLabelValues("save", status).Inc()
		metrics.SnapshotOperationSeconds.WithLabelValues("save").Observe(time.Since(start).Seconds())
	}
	return err
}
