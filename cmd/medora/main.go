package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/medora/medora/pkg/accounts"
	"github.com/medora/medora/pkg/api"
	"github.com/medora/medora/pkg/audit"
	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/config"
	"github.com/medora/medora/pkg/database"
	"github.com/medora/medora/pkg/observability"
	"github.com/medora/medora/pkg/rbac"
)

var (
	migrateOnly = flag.Bool("migrate-only", false, "Apply migrations and seed the permission catalog, then exit")
	purgeOnce   = flag.Bool("purge-audit", false, "Purge expired audit events once and exit")
	grantAdmin  = flag.String("grant-platform-admin", "", "Give the account with this email the platform_admin role and exit")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.Fatalf("medora: %v", err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("env", cfg.Env)
	defer observability.RecoverPanic(logger, "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	if cfg.Database.RunMigrations || *migrateOnly {
		if err := database.Migrate(ctx, db, database.Schema(), logger); err != nil {
			return err
		}
	}
	if cfg.Database.SeedCatalog || *migrateOnly {
		catalog, err := rbac.DefaultCatalog()
		if err != nil {
			return err
		}
		if err := rbac.Seed(ctx, db, catalog, logger); err != nil {
			return err
		}
	}
	if *migrateOnly {
		logger.Info("Migrations applied")
		return nil
	}

	if *grantAdmin != "" {
		return grantPlatformAdmin(ctx, db, *grantAdmin, logger)
	}

	if *purgeOnce {
		auditLog, err := audit.NewDBLogger(db, nil)
		if err != nil {
			return err
		}
		return purgeAudit(ctx, auditLog, cfg.Audit.Retention, logger)
	}

	redisClient, err := database.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		logger.WithField("addr", cfg.Redis.Addr).Info("Connected to Redis")
	}

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	if cfg.Auth.DevHeader {
		logger.Warn("Development identity header is enabled")
	}

	srv, err := api.NewServer(api.Deps{
		Config:  cfg,
		DB:      db,
		Redis:   redisClient,
		Logger:  logger,
		Metrics: metrics,
		Tokens:  tokens,
	})
	if err != nil {
		return err
	}

	baseContext := func(net.Listener) context.Context {
		return observability.WithLogger(context.Background(), logger)
	}
	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  baseContext,
	}
	opsServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.OpsPort),
		Handler:           api.NewOpsHandler(observability.NewHealthChecker(db, redisClient), registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	scheduler := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := scheduler.AddFunc(cfg.Audit.PurgeSchedule, func() {
		if err := purgeAudit(ctx, srv.AuditLog(), cfg.Audit.Retention, logger); err != nil {
			logger.WithError(err).Error("Audit purge failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule audit purge: %w", err)
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.AddServer(apiServer)
	shutdown.AddServer(opsServer)
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})
	shutdown.Register("cron", func(context.Context) error {
		<-scheduler.Stop().Done()
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("Starting medora API")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", opsServer.Addr).Info("Starting ops server")
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	if hub := srv.Hub(); hub != nil {
		g.Go(func() error {
			return hub.Run(gctx)
		})
	}

	scheduler.Start()
	logger.WithField("schedule", cfg.Audit.PurgeSchedule).Info("Audit purge scheduled")

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		return shutdown.Shutdown()
	})

	return g.Wait()
}

func purgeAudit(ctx context.Context, auditLog *audit.DBLogger, retention time.Duration, logger *observability.Logger) error {
	n, err := auditLog.Purge(ctx, retention)
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"purged":    n,
		"retention": retention.String(),
	}).Info("Purged expired audit events")
	return nil
}

func grantPlatformAdmin(ctx context.Context, db *sql.DB, email string, logger *observability.Logger) error {
	roleID, err := rbac.NewStore(db).SystemRoleID(ctx, rbac.RolePlatformAdmin)
	if err != nil {
		return err
	}
	if err := accounts.NewStore(db).AssignRoleByEmail(ctx, email, roleID); err != nil {
		return err
	}
	logger.WithField("email", email).Warn("Granted platform administrator role")
	return nil
}
