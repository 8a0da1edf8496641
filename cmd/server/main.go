package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/AzeemWaqarr/wattwise/internal/cfg"
	"github.com/AzeemWaqarr/wattwise/internal/dataset"
	"github.com/AzeemWaqarr/wattwise/internal/forecast"
	"github.com/AzeemWaqarr/wattwise/internal/health"
	"github.com/AzeemWaqarr/wattwise/internal/logging"
	"github.com/AzeemWaqarr/wattwise/internal/middleware"
	"github.com/AzeemWaqarr/wattwise/internal/mongodb"
	"github.com/AzeemWaqarr/wattwise/internal/user"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const healthInterval = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func run() error {
	config, err := cfg.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(config.LogDebug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	mongoClient, err := mongodb.Connect(connectCtx, config.MongoURI, config.MongoDatabase)
	if err != nil {
		return err
	}
	defer func() {
		if err := mongoClient.Close(context.Background()); err != nil {
			logger.Warnw("mongo disconnect error", "error", err)
		}
	}()
	db := mongoClient.Database()

	var redisClient *redis.Client
	if config.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       0,
		})
		if err := redisClient.Ping(connectCtx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
	}

	var events dataset.EventPublisher
	if config.KafkaEnabled() {
		events = dataset.NewKafkaPublisher(config.KafkaBrokers, config.KafkaTopic)
		defer func() {
			if err := events.Close(); err != nil {
				logger.Warnw("event publisher close error", "error", err)
			}
		}()
		logger.Infow("dataset events enabled", "brokers", config.KafkaBrokers, "topic", config.KafkaTopic)
	}

	var archive dataset.ReportArchive
	if config.MinioEnabled() {
		archive, err = dataset.NewMinioArchive(
			config.MinioEndpoint,
			config.MinioAccessKey,
			config.MinioSecretKey,
			config.MinioUseSSL,
			config.MinioBucket,
		)
		if err != nil {
			return fmt.Errorf("init minio: %w", err)
		}
	}

	datasets, err := dataset.NewService(dataset.Dependencies{
		Repo:      dataset.NewRepository(db),
		Events:    events,
		Archive:   archive,
		Logger:    logger.Named("dataset"),
		OpTimeout: config.MongoOpTimeout,
	})
	if err != nil {
		return err
	}

	if err := user.EnsureIndexes(connectCtx, db); err != nil {
		logger.Warnw("create user indexes", "error", err)
	}
	var blacklist user.Blacklist
	var counter middleware.Counter
	if redisClient != nil {
		blacklist = user.NewRedisBlacklist(redisClient)
		counter = middleware.NewRedisCounter(redisClient)
	}
	users, err := user.NewService(user.ServiceConfig{
		Repo:      user.NewRepository(db),
		Blacklist: blacklist,
		Secret:    []byte(config.JWTSecret),
		TokenTTL:  config.JWTTTL,
		Logger:    logger.Named("user"),
	})
	if err != nil {
		return err
	}
	authenticator := user.NewAuthenticator(users)

	catalog, err := forecast.LoadCatalog(config.ScriptCatalog, config.ScriptTimeout)
	if err != nil {
		return err
	}
	runner, err := forecast.NewRunner(forecast.RunnerConfig{
		Python:     config.PythonBin,
		ScriptsDir: config.ScriptsDir,
		WorkDir:    config.WorkDir,
		Catalog:    catalog,
		Logger:     logger.Named("runner"),
	})
	if err != nil {
		return err
	}
	forecasts, err := forecast.NewService(forecast.ServiceConfig{
		Runner:    runner,
		Datasets:  datasets,
		Specs:     forecast.NewModelSpecs(db),
		WorkDir:   runner.WorkDir(),
		OpTimeout: config.MongoOpTimeout,
		Logger:    logger.Named("forecast"),
	})
	if err != nil {
		return err
	}

	datasetHandler, err := dataset.NewHandler(dataset.HandlerConfig{
		Service:         datasets,
		Pinger:          mongoClient,
		AdminOnly:       authenticator.RequireAdmin,
		MaxUploadMemory: config.MaxUploadMemory,
		Logger:          logger.Named("dataset"),
	})
	if err != nil {
		return err
	}

	grpcServer := grpc.NewServer()
	healthServer := health.Register(grpcServer)

	mux := http.NewServeMux()
	datasetHandler.RegisterHandlers(mux)
	forecast.NewHandler(forecasts, logger.Named("forecast")).RegisterHandlers(mux)
	user.NewHandler(users, authenticator, logger.Named("user")).RegisterHandlers(mux)
	mux.Handle("GET /healthz", health.Handler(healthServer))

	gzip, err := middleware.Gzip()
	if err != nil {
		return err
	}
	rateLimiter := middleware.NewRateLimiter(config.RateLimitRequests, config.RateLimitWindow, counter, logger)
	cors := middleware.NewCORS(middleware.CORSOptions{
		AllowedOrigins:   config.AllowedCORSOrigins,
		ExposeHeaders:    []string{"Content-Disposition", "X-Report-Key", middleware.RequestIDHeader},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr: ":" + config.HTTPPort,
		Handler: middleware.Chain(mux,
			middleware.RequestLogger(logger.Named("http")),
			middleware.SecurityHeaders,
			cors,
			rateLimiter.Middleware,
			gzip,
		),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	grpcListener, err := net.Listen("tcp", ":"+config.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		health.Watch(ctx, healthServer, mongoClient, healthInterval)
	}()

	if config.ReconcileInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reconcileLoop(ctx, datasets, config.ReconcileInterval, logger)
		}()
	}

	go func() {
		logger.Infow("HTTP server listening", "port", config.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		logger.Infow("gRPC server listening", "port", config.GRPCPort)
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Errorw("server failed", "error", runErr)
		stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownGracePeriod)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("http shutdown error", "error", err)
	}
	grpcServer.GracefulStop()
	wg.Wait()

	return runErr
}

func reconcileLoop(ctx context.Context, datasets dataset.Service, interval time.Duration, logger *zap.SugaredLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := datasets.Reconcile(ctx)
			if err != nil {
				logger.Warnw("scheduled reconcile failed", "error", err)
				continue
			}
			logger.Infow("scheduled reconcile finished",
				"orphan_metadata", res.OrphanMetadata,
				"orphan_blobs", res.OrphanBlobs,
			)
		}
	}
}
