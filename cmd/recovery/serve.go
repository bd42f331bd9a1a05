package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/application/services"
	"github.com/DanielPopoola/payment-recovery-engine/internal/config"
	"github.com/DanielPopoola/payment-recovery-engine/internal/infrastructure/directory"
	"github.com/DanielPopoola/payment-recovery-engine/internal/infrastructure/persistence/memory"
	"github.com/DanielPopoola/payment-recovery-engine/internal/infrastructure/persistence/postgres"
	"github.com/DanielPopoola/payment-recovery-engine/internal/infrastructure/policyfile"
	"github.com/DanielPopoola/payment-recovery-engine/internal/infrastructure/servicing"
	"github.com/DanielPopoola/payment-recovery-engine/internal/interfaces/rest/handlers"
	"github.com/DanielPopoola/payment-recovery-engine/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the retry scheduler and suspense matcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger := cfg.Logger.NewLogger()
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

type repositories struct {
	policies application.PolicyRepository
	attempts application.AttemptRepository
	failures application.FailureQueueRepository
	suspense application.SuspenseRepository
	batches  application.BatchRepository
	tx       application.TransactionCoordinator
	close    func()
}

func openRepositories(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*repositories, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		logger.Warn("using in-memory storage, state is lost on restart")
		attempts := memory.NewAttemptRepository()
		failures := memory.NewFailureQueueRepository()
		return &repositories{
			policies: memory.NewPolicyRepository(),
			attempts: attempts,
			failures: failures,
			suspense: memory.NewSuspenseRepository(),
			batches:  memory.NewBatchRepository(),
			tx:       memory.NewTransactionCoordinator(attempts, failures),
			close:    func() {},
		}, nil
	}

	db, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &repositories{
		policies: postgres.NewPolicyRepository(db),
		attempts: postgres.NewAttemptRepository(db),
		failures: postgres.NewFailureQueueRepository(db),
		suspense: postgres.NewSuspenseRepository(db),
		batches:  postgres.NewBatchRepository(db),
		tx:       postgres.NewTransactionCoordinator(db),
		close:    db.Close,
	}, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting recovery engine",
		"env", cfg.Primary.Env,
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Driver,
		"log_level", cfg.Logger.Level,
	)

	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repos.close()

	// loanDirectory stays a nil interface when no directory is configured.
	var loanDirectory application.LoanDirectory
	if cfg.Directory.Path != "" {
		store, err := directory.Open(cfg.Directory.Path,
			directory.WithAmountTolerance(cfg.Matching.AmountTolerance),
			directory.WithMaxResults(cfg.Directory.MaxResults))
		if err != nil {
			return fmt.Errorf("failed to open loan directory: %w", err)
		}
		defer store.Close()
		loanDirectory = store
	} else {
		logger.Warn("no loan directory configured, loan lookups and suspense matching are disabled")
	}

	servicingClient := servicing.NewRetryClient(servicing.NewClient(cfg.Servicing), cfg.Retry)
	notifier := servicing.NewWebhookNotifier(cfg.Servicing, logger)

	policyService := services.NewPolicyService(repos.policies, logger)
	if cfg.Policies.File != "" {
		policies, err := policyfile.LoadFile(cfg.Policies.File)
		if err != nil {
			return fmt.Errorf("failed to load retry policies: %w", err)
		}
		seeded, err := policyService.Seed(ctx, policies)
		if err != nil {
			return fmt.Errorf("failed to seed retry policies: %w", err)
		}
		logger.Info("retry policies loaded", "file", cfg.Policies.File, "seeded", seeded)
	}

	retryService := services.NewRetryService(
		repos.attempts, repos.failures, repos.tx, policyService, servicingClient, notifier, logger)
	failureQueueService := services.NewFailureQueueService(
		repos.failures, repos.attempts, repos.tx, policyService, logger)
	reconciliationService := services.NewReconciliationService(
		repos.suspense, loanDirectory, servicingClient, servicingClient, notifier,
		cfg.Matching.Weights(), logger)

	rules := services.DefaultValidationRules()
	rules.MaxAmountCents = cfg.Batch.MaxRecordAmountCents
	rules.RejectDuplicates = cfg.Batch.RejectDuplicates
	validator := services.NewBatchValidator(rules, loanDirectory, logger)
	executor := services.NewBatchExecutor(servicingClient, repos.batches, cfg.Batch.Workers, logger)
	batchService := services.NewBatchService(repos.batches, validator, executor, notifier, logger)

	h := handlers.NewHandlers(
		retryService,
		policyService,
		failureQueueService,
		reconciliationService,
		batchService,
		logger,
	)
	router, err := handlers.NewRouter(ctx, h, handlers.RouterConfig{
		Timeout:          cfg.Server.WriteTimeout,
		ValidateRequests: cfg.Server.ValidateRequests,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if n, err := batchService.RecoverInterrupted(ctx); err != nil {
		logger.Error("failed to recover interrupted batches", "error", err)
	} else if n > 0 {
		logger.Info("interrupted batches restarted", "count", n)
	}

	g, gctx := errgroup.WithContext(ctx)

	scheduler := worker.NewRetryScheduler(retryService, cfg.Scheduler.Interval, cfg.Scheduler.BatchSize, logger).
		WithStaleAfter(cfg.Scheduler.StaleAfter)
	g.Go(func() error {
		scheduler.Start(gctx)
		return nil
	})
	if loanDirectory != nil {
		matcher := worker.NewSuspenseMatcher(reconciliationService, cfg.Reconciler.Interval, cfg.Reconciler.BatchSize, logger)
		g.Go(func() error {
			matcher.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", "error", err)
		}
		if err := batchService.Shutdown(shutdownCtx); err != nil {
			logger.Error("batch runs did not drain", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("server exited")
	return err
}
