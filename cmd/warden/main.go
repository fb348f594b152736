package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/warden/pkg/api"
	"github.com/platinummonkey/warden/pkg/async"
	"github.com/platinummonkey/warden/pkg/cache"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/email"
	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/reconcile"
	"github.com/platinummonkey/warden/pkg/storage"
	"github.com/platinummonkey/warden/pkg/users"
)

// dbStatsInterval paces the connection pool gauge refresh.
const dbStatsInterval = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.ParsedLogLevel(), os.Stdout)

	// Component clients (identity, email, cache, async tasks) log through
	// logrus; everything else uses the structured logger above.
	componentLogger := logrus.New()
	componentLogger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel); err == nil {
		componentLogger.SetLevel(level)
	}
	async.SetLogger(componentLogger)

	ctx := context.Background()

	// Database
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	if err := rbac.RunMigrations(ctx, db, cfg.Database.Driver); err != nil {
		log.Fatalf("Failed to run rbac migrations: %v", err)
	}
	if err := users.RunMigrations(ctx, db, cfg.Database.Driver); err != nil {
		log.Fatalf("Failed to run account migrations: %v", err)
	}

	rbacStore := rbac.NewStore(db)
	if _, err := rbac.Seed(ctx, rbacStore, logger); err != nil {
		log.Fatalf("Failed to seed roles and permissions: %v", err)
	}
	accounts := users.NewStore(db)

	// Metrics
	var metrics *observability.Metrics
	var registry *prometheus.Registry
	stopDBStats := func() {}
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
		var pollCtx context.Context
		pollCtx, stopDBStats = context.WithCancel(ctx)
		go metrics.PollDBStats(pollCtx, db, dbStatsInterval)
	}

	// Tracing
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	// Advisory blocked-email cache
	var redisClient *redis.Client
	var blockedCache users.BlockedCache
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		blockedCache = cache.NewBlockedEmailCache(redisClient, cache.DefaultBlockedTTL, componentLogger)
	}

	// Avatar blob store
	blobs, err := storage.New(ctx, cfg.Storage.BlobConfig())
	if err != nil {
		log.Fatalf("Failed to initialize blob storage: %v", err)
	}

	// Identity provider
	verifier, err := identity.NewOIDCVerifier(ctx, cfg.Identity.IssuerURL, cfg.Identity.Audience)
	if err != nil {
		log.Fatalf("Failed to initialize token verifier: %v", err)
	}
	provider := identity.NewClient(identity.ClientConfig{
		BaseURL:      cfg.Identity.BaseURL,
		TokenURL:     cfg.Identity.TokenURL,
		ClientID:     cfg.Identity.ClientID,
		ClientSecret: cfg.Identity.ClientSecret,
		Timeout:      cfg.Identity.Timeout,
	}, componentLogger)

	// Email
	templates, err := email.NewTemplateStore(cfg.Email.TemplateDir, componentLogger)
	if err != nil {
		log.Fatalf("Failed to load email templates: %v", err)
	}
	mailer := email.NewService(templates, email.NewHTTPSender(email.HTTPSenderConfig{
		URL:     cfg.Email.EndpointURL,
		APIKey:  cfg.Email.APIKey,
		From:    cfg.Email.FromAddress,
		Timeout: cfg.Email.Timeout,
	}, componentLogger))

	// Core services
	guard := rbac.NewGuard(rbac.NewResolver(accounts, rbacStore), metrics, logger)
	service := users.NewService(accounts, rbacStore, guard, provider, mailer, blockedCache, metrics, logger)

	auth := middleware.NewAuthMiddleware(verifier,
		middleware.NewGraceTracker(cfg.Identity.GraceWindow), logger)

	server := api.NewServer(api.Config{
		Addr:           net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		HookSecret:     cfg.Server.HookSecret,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		TracingEnabled: cfg.Observability.OTelEnabled,
	}, api.Dependencies{
		Guard:    guard,
		RBAC:     rbac.NewHandler(rbacStore, guard, logger),
		Users:    users.NewHandler(service, guard, logger),
		Service:  service,
		Accounts: accounts,
		Blobs:    blobs,
		Auth:     auth,
		Metrics:  metrics,
		Registry: registry,
		Health:   observability.NewHealthChecker(db, redisClient),
		Logger:   logger,
	})

	shutdown := observability.NewShutdownManager(logger, nil, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(server.Shutdown)
	if cfg.Reconcile.Enabled {
		sweeper := reconcile.NewSweeper(accounts, provider, cfg.Reconcile.Schedule, logger)
		if err := sweeper.Start(); err != nil {
			log.Fatalf("Failed to start blocked-session sweep: %v", err)
		}
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			sweeper.Stop()
			return nil
		})
	}
	shutdown.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
		return otelProviders.Shutdown(shutdownCtx)
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		templates.Close()
		if redisClient != nil {
			return redisClient.Close()
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		stopDBStats()
		return db.Close()
	})

	g, _ := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(shutdown.WaitForShutdown)
	if err := g.Wait(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
