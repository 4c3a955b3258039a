package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/gatehouse-io/gatehouse/pkg/audit"
	"github.com/gatehouse-io/gatehouse/pkg/authz"
	"github.com/gatehouse-io/gatehouse/pkg/config"
	"github.com/gatehouse-io/gatehouse/pkg/events"
	"github.com/gatehouse-io/gatehouse/pkg/httputil"
	"github.com/gatehouse-io/gatehouse/pkg/observability"
	"github.com/gatehouse-io/gatehouse/pkg/scopes"
	"github.com/gatehouse-io/gatehouse/pkg/storage"
)

var (
	seedScope = flag.String("seed-scope", os.Getenv("GATEHOUSE_SEED_SCOPE"),
		"Scope to seed system roles into at startup, as TYPE:id (e.g. ORGANIZATION:org-1). Empty skips seeding.")
	migrateOnly = flag.Bool("migrate-only", false, "Run database migrations and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("gatehouse exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	db, err := storage.ConnectPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	if err := authz.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	logger.Info("Database migrations applied")

	if *migrateOnly {
		return nil
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = storage.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		logger.Info("Connected to Redis")
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Stores and hierarchy directory share the primary database.
	catalog := authz.NewCatalogStore(db)
	roles := authz.NewRoleStore(db)
	assignments := authz.NewAssignmentStore(db)
	grants := authz.NewGrantStore(db)
	directory := scopes.NewPostgresDirectory(db)

	var cache authz.ResolutionCache
	switch cfg.Cache.Backend {
	case "redis":
		cache = authz.NewRedisCache(redisClient, cfg.Cache.TTL)
		logger.Info("Using Redis resolution cache")
	default:
		cache = authz.NewMemoryCache(cfg.Cache.Size, cfg.Cache.TTL)
		logger.Info("Using in-memory resolution cache")
	}

	auditLogger, auditDB, err := buildAuditLogger(cfg.Audit, db)
	if err != nil {
		return fmt.Errorf("failed to initialize audit logging: %w", err)
	}
	defer auditLogger.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if redisClient != nil {
		publisher, err = events.NewRedisPublisher(redisClient)
		if err != nil {
			return fmt.Errorf("failed to initialize event publishing: %w", err)
		}
	}
	defer publisher.Close()

	service := authz.NewService(authz.ServiceDeps{
		Catalog:     catalog,
		Roles:       roles,
		Assignments: assignments,
		Grants:      grants,
		Resolver:    authz.NewResolver(assignments, grants, directory, cache, metrics),
		Guard:       authz.NewEscalationGuard(directory, metrics),
		Cache:       cache,
		Audit:       auditLogger,
		Events:      publisher,
		Logger:      logger,
		Metrics:     metrics,
	})

	if *seedScope != "" {
		scope, err := scopes.ParseScope(*seedScope)
		if err != nil {
			return fmt.Errorf("invalid seed scope: %w", err)
		}
		if err := authz.SeedSystemRoles(ctx, catalog, roles, scope); err != nil {
			return fmt.Errorf("failed to seed system roles: %w", err)
		}
		logger.WithField("scope", scope.String()).Info("System roles seeded")
	}

	// API server.
	router := mux.NewRouter()
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.LoggingMiddleware(logger))
	if cfg.Observability.MetricsEnabled {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}
	router.Use(authz.ActorMiddleware)
	authz.NewHandler(service, logger).RegisterRoutes(router)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics server on a separate port so probes and scrapes
	// stay off the API listener.
	healthRouter := mux.NewRouter()
	checker := observability.NewHealthChecker(db, redisClient, cfg.Observability.OTelServiceVersion)
	observability.RegisterHealthRoutes(healthRouter, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthRouter, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthRouter,
	}

	sweeper, err := startSweeper(cfg.Sweeper, assignments, grants, auditDB, metrics, logger)
	if err != nil {
		return err
	}

	poolCtx, stopPoolStats := context.WithCancel(ctx)
	go reportPoolStats(poolCtx, db, metrics)

	sm := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(healthServer.Shutdown)
	sm.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
		stopPoolStats()
		if sweeper != nil {
			select {
			case <-sweeper.Stop().Done():
			case <-shutdownCtx.Done():
				return shutdownCtx.Err()
			}
		}
		return nil
	})
	sm.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
		return observability.ShutdownOTel(shutdownCtx, providers, logger)
	})

	var g errgroup.Group
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("Gatehouse API listening")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Health/metrics server listening")
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(sm.WaitForShutdown)

	return g.Wait()
}

// buildAuditLogger assembles the audit sink stack: database, JSON file, both
// or neither, per configuration. The database sink is also returned directly
// so the sweeper can purge it.
func buildAuditLogger(cfg config.AuditConfig, db *sql.DB) (audit.Logger, *audit.DBLogger, error) {
	var (
		sinks    []audit.Logger
		dbLogger *audit.DBLogger
	)

	if cfg.DatabaseEnabled {
		l, err := audit.NewDBLogger(db)
		if err != nil {
			return nil, nil, err
		}
		dbLogger = l
		sinks = append(sinks, l)
	}
	if cfg.FilePath != "" {
		fileLogger, err := audit.NewFileLogger(cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fileLogger)
	}

	switch len(sinks) {
	case 0:
		return audit.NopLogger{}, nil, nil
	case 1:
		return sinks[0], dbLogger, nil
	default:
		return audit.NewMultiLogger(sinks...), dbLogger, nil
	}
}

// startSweeper schedules the background job that hard-deletes long-expired
// assignments and grants and purges old audit records.
func startSweeper(cfg config.SweeperConfig, assignments *authz.AssignmentStore, grants *authz.GrantStore, auditDB *audit.DBLogger, metrics *observability.Metrics, logger *observability.Logger) (*cron.Cron, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		cutoff := time.Now().UTC().Add(-cfg.Retention)

		if n, err := assignments.SweepExpired(ctx, cutoff); err != nil {
			logger.WithError(err).Error("Assignment sweep failed")
		} else if n > 0 {
			metrics.SweptRecordsTotal.WithLabelValues("assignments").Add(float64(n))
			logger.WithField("count", n).Info("Swept expired role assignments")
		}

		if n, err := grants.SweepExpired(ctx, cutoff); err != nil {
			logger.WithError(err).Error("Grant sweep failed")
		} else if n > 0 {
			metrics.SweptRecordsTotal.WithLabelValues("grants").Add(float64(n))
			logger.WithField("count", n).Info("Swept expired permission grants")
		}

		if auditDB != nil && cfg.AuditRetention > 0 {
			if n, err := auditDB.Purge(ctx, cfg.AuditRetention); err != nil {
				logger.WithError(err).Error("Audit purge failed")
			} else if n > 0 {
				metrics.SweptRecordsTotal.WithLabelValues("audit").Add(float64(n))
				logger.WithField("count", n).Info("Purged old audit records")
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweeper schedule %q: %w", cfg.Schedule, err)
	}

	c.Start()
	logger.WithField("schedule", cfg.Schedule).Info("Sweeper scheduled")
	return c, nil
}

// reportPoolStats mirrors database pool counters into gauges until ctx is
// cancelled.
func reportPoolStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			metrics.DBConnectionsActive.Set(float64(stats.InUse))
			metrics.DBConnectionsIdle.Set(float64(stats.Idle))
		}
	}
}
