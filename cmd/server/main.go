package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/paylane/billflow/internal/approval"
	"github.com/paylane/billflow/internal/config"
	"github.com/paylane/billflow/internal/export"
	"github.com/paylane/billflow/internal/ingest"
	httpiface "github.com/paylane/billflow/internal/interfaces/http"
	"github.com/paylane/billflow/internal/processor"
	"github.com/paylane/billflow/internal/reconcile"
	"github.com/paylane/billflow/internal/repository"
	"github.com/paylane/billflow/internal/scheduler"
	"github.com/paylane/billflow/internal/worker"
	"github.com/paylane/billflow/pkg/database"
	"github.com/paylane/billflow/pkg/utils"
)

func main() {
	_ = gotenv.Load()

	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting bill payment workflow engine",
		zap.Int("port", cfg.Server.Port))

	// Initialize database
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(ctx, cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories
	vendorRepo := repository.NewVendorRepository(db.DB, logger)
	billRepo := repository.NewBillRepository(db.DB, logger)
	workflowRepo := repository.NewWorkflowRepository(db.DB, logger)
	approvalRepo := repository.NewApprovalRepository(db.DB, logger)
	paymentRepo := repository.NewPaymentRepository(db.DB, logger)
	documentRepo := repository.NewDocumentRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)

	// Initialize the approval engine
	engine := approval.NewEngine(
		billRepo,
		vendorRepo,
		workflowRepo,
		approvalRepo,
		paymentRepo,
		auditRepo,
		logger,
	)

	// Initialize the payment processor. The sandbox stands in for a real
	// processor integration; outcomes arrive via webhook or polling.
	proc := processor.NewSandbox()

	// Initialize the payment scheduler and its scan worker
	sched := scheduler.NewScheduler(billRepo, vendorRepo, paymentRepo, auditRepo, logger)
	scanWorker := scheduler.NewScanWorker(
		sched,
		billRepo,
		vendorRepo,
		paymentRepo,
		auditRepo,
		proc,
		cfg.Scheduler.ScanInterval,
		scheduler.RetryConfig{
			MaxAttempts: cfg.Scheduler.MaxSubmitAttempts,
			BaseBackoff: cfg.Scheduler.BaseBackoff,
			MaxBackoff:  cfg.Scheduler.MaxBackoff,
		},
		logger,
	)

	// Initialize the reconciliation listener
	listener := reconcile.NewListener(billRepo, paymentRepo, auditRepo, logger)

	// Initialize document ingestion and export
	ingestor := ingest.NewService(
		documentRepo,
		vendorRepo,
		billRepo,
		engine,
		cfg.Ingestion.ConfidenceThreshold,
		logger,
	)
	exporter := export.NewExporter(billRepo, vendorRepo, paymentRepo)

	// Start background workers
	workers := worker.NewManager(logger)
	workers.Register(scanWorker)
	if cfg.Reconciler.PollEnabled {
		workers.Register(reconcile.NewPollWorker(listener, proc, cfg.Reconciler.PollInterval, logger))
	}
	if err := workers.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	// Initialize HTTP server
	handlers := httpiface.NewHandlers(
		engine,
		ingestor,
		listener,
		exporter,
		billRepo,
		paymentRepo,
		auditRepo,
		logger,
	)
	srv := httpiface.NewServer(httpiface.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handlers, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("Server error", zap.Error(err))
	case sig := <-quit:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	workers.StopAll()

	logger.Info("Server stopped")
}
