// Command server runs the UrbanEase REST and gRPC APIs together with the
// thumbnail worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PaulBabatuyi/urbanease/internal/config"
	"github.com/PaulBabatuyi/urbanease/internal/database"
	"github.com/PaulBabatuyi/urbanease/internal/httpapi"
	"github.com/PaulBabatuyi/urbanease/internal/observability"
	"github.com/PaulBabatuyi/urbanease/internal/rpc"
	"github.com/PaulBabatuyi/urbanease/internal/service"
	"github.com/PaulBabatuyi/urbanease/internal/session"
	"github.com/PaulBabatuyi/urbanease/internal/storage"
	"github.com/PaulBabatuyi/urbanease/internal/upload"
	"github.com/PaulBabatuyi/urbanease/internal/worker"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// store is everything the server needs from persistence; both the
// Postgres and in-memory databases satisfy it.
type store interface {
	service.PortfolioStore
	service.MessageStore
	worker.JobStore
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.InitLogger(cfg.Dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no database configured, using in-memory store")
		return database.NewMemoryDB(), nil
	}
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("connected to postgres")
	return db, nil
}

func openObjects(ctx context.Context, cfg config.Config) (storage.ObjectStore, http.FileSystem, error) {
	switch cfg.Storage.Backend {
	case config.StorageS3:
		s, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			Endpoint:  cfg.Storage.Endpoint,
			PublicURL: cfg.Storage.PublicURL,
		})
		return s, nil, err
	default:
		s, err := storage.NewFilesystemStore(cfg.Storage.Path, cfg.FilesURL())
		if err != nil {
			return nil, nil, err
		}
		return s, http.Dir(cfg.Storage.Path), nil
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tp *trace.TracerProvider
	if cfg.Tracing {
		var err error
		tp, err = observability.InitTracerProvider(ctx, os.Stdout, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			observability.ShutdownTracerProvider(shutdownCtx, tp, logger)
		}()
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	observability.StartMetricsServer(ctx, cfg.MetricsAddr, metrics, logger)

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	objects, files, err := openObjects(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	issuer := session.NewIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	portfolio := service.NewPortfolioService(db, objects, service.PortfolioConfig{
		PutConcurrency: cfg.Upload.Concurrency,
		JobMaxRetries:  cfg.Worker.MaxRetries,
	}, metrics, logger)
	messages := service.NewMessageService(db, logger)

	thumbs := worker.NewProcessingWorker(&worker.WorkerConfig{
		DB:           db,
		Processor:    worker.NewImageProcessor(objects),
		Outcomes:     metrics,
		Logger:       logger,
		PollInterval: cfg.Worker.PollInterval,
	})
	thumbs.Start(ctx)
	defer thumbs.Stop()

	grpcServer, health := rpc.NewServer(rpc.Options{
		Messages: messages,
		Verifier: issuer,
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tp,
	})
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Config{
			Portfolio:  portfolio,
			Messages:   messages,
			Gatekeeper: upload.NewGatekeeper(cfg.UploadPolicy()),
			Verifier:   issuer,
			Logger:     logger,
			Metrics:    metrics,
			Files:      files,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", zap.Error(serr))
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}

	return err
}
