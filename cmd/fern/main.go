package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/pkg/connector"
	"github.com/Ramsey-B/fern/pkg/crypto"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/ratelimit"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/retention"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/syncer"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
	"github.com/Ramsey-B/fern/pkg/upload"
	"github.com/Ramsey-B/fern/pkg/validation"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, sync, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("fern exited with an error")
		sync()
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (ectologger.Logger, func(), error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	zapCfg.Level = level

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), func() { _ = zapLogger.Sync() }, nil
}

func newExporter(ctx context.Context, cfg *config.Config) (sdktrace.SpanExporter, error) {
	if !cfg.OTLPEnabled {
		return &exporters.ConsoleExporter{}, nil
	}
	return exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.OTLPEndpoint,
		Protocol: cfg.OTLPProtocol,
		Insecure: cfg.OTLPInsecure,
	})
}

func run(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}
	shutdownTracing := tracing.Setup(cfg.AppName, exporter)

	var (
		db          database.DB
		redisClient *redis.Client
		publisher   kafka.Publisher = kafka.NoopPublisher{}
	)

	deps := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	deps.AddDependency(&startup.Dependency{
		Name: "postgres",
		OnStart: func(ctx context.Context) error {
			db, err = database.Open(ctx, database.Config{
				Host:            cfg.DatabaseHost,
				Port:            cfg.DatabasePort,
				User:            cfg.DatabaseUserName,
				Password:        cfg.DatabasePassword,
				Name:            cfg.DatabaseName,
				SSLMode:         cfg.DatabaseSSLMode,
				MaxOpenConns:    cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
			}, logger)
			return err
		},
		OnStop: func(context.Context) error {
			if db == nil {
				return nil
			}
			return db.Close()
		},
	})
	deps.AddDependency(&startup.Dependency{
		Name:     "migrations",
		Requires: []string{"postgres"},
		OnStart: func(context.Context) error {
			return database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			}).MigratePostgres(db)
		},
	})
	if cfg.RedisEnabled {
		deps.AddDependency(&startup.Dependency{
			Name: "redis",
			OnStart: func(ctx context.Context) error {
				redisClient, err = redis.NewClient(ctx, redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, logger)
				return err
			},
			OnStop: func(context.Context) error {
				if redisClient == nil {
					return nil
				}
				return redisClient.Close()
			},
		})
	}
	if cfg.KafkaEnabled {
		deps.AddDependency(&startup.Dependency{
			Name: "kafka",
			OnStart: func(context.Context) error {
				publisher = kafka.NewProducer(kafka.ParseConfig(cfg.KafkaBrokers, cfg.KafkaTopic), logger)
				return nil
			},
			OnStop: func(context.Context) error {
				return publisher.Close()
			},
		})
	}

	if err := deps.Start(ctx); err != nil {
		return err
	}

	encryptor, err := crypto.NewAESEncryptor(cfg.EncryptionKey)
	if err != nil {
		return err
	}

	connectorRepo := repositories.NewConnectorRepository(db, logger)
	connectorLogRepo := repositories.NewConnectorLogRepository(db, logger)
	recordRepo := repositories.NewRecordRepository(db, logger)
	lookupRepo := repositories.NewLookupRepository(db, logger)
	referenceRepo := repositories.NewReferenceRepository(db, logger)
	txManager := repositories.NewTxManager(db, logger)

	validator := validation.NewEngine(logger, referenceRepo)

	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter()
	syncOpts := []syncer.Option{syncer.WithValidator(validator), syncer.WithPublisher(publisher)}
	var janitorLocker retention.Locker
	if redisClient != nil {
		limiter = redis.NewRateLimiter(redisClient, "")
		locker := redis.NewLocker(redisClient, "")
		syncOpts = append(syncOpts, syncer.WithLocker(locker))
		janitorLocker = locker
	}

	factory := connector.NewFactory(logger,
		connector.WithHTTPClient(&http.Client{Timeout: cfg.HTTPClientTimeout}),
		connector.WithRateLimiter(limiter),
		connector.WithLogWriter(connectorLogRepo),
	)
	orchestrator := syncer.NewOrchestrator(connectorRepo, recordRepo, encryptor, factory, logger, syncOpts...)
	ingestor := upload.NewIngestor(txManager, recordRepo, lookupRepo, validator, logger,
		upload.WithPublisher(publisher),
		upload.WithReferences(referenceRepo),
	)

	janitor := retention.NewJanitor(connectorLogRepo, janitorLocker, retention.Config{
		Interval:  cfg.ConnectorLogRetentionInterval,
		Retention: cfg.ConnectorLogRetention(),
	}, logger)

	checker := health.NewChecker(cfg.Version).AddDatabase(db)
	if redisClient != nil {
		checker.AddRedis(redisClient.Redis())
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(middleware.Context())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Logger(logger))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	if cfg.AuthEnabled {
		verifier, err := middleware.NewOIDCVerifier(ctx, cfg.AuthIssuerURL, cfg.AuthClientID)
		if err != nil {
			return err
		}
		api.Use(middleware.Authentication(logger, verifier))
	}
	handlers.NewConnectorHandler(connectorRepo, connectorLogRepo, encryptor, orchestrator, logger).RegisterRoutes(api)
	handlers.NewUploadHandler(ingestor, cfg.UploadMaxBytes, logger).RegisterRoutes(api)
	handlers.NewEngineHandler(validator, logger).RegisterRoutes(api)

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		Handler:        e,
		ReadTimeout:    time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:   time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:    time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	if err := janitor.Start(ctx); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	checker.SetReady(true)

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.WithError(err).Error("HTTP server failed")
		}
	}
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shut down HTTP server")
	}
	if err := janitor.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to stop retention janitor")
	}
	if err := deps.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to stop dependencies")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to flush traces")
	}

	logger.Info("Shutdown complete")
	return nil
}
