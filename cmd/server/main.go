package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tuanngo/crm-pipeline/internal/assignment"
	"github.com/tuanngo/crm-pipeline/internal/config"
	"github.com/tuanngo/crm-pipeline/internal/dispatcher"
	httpserver "github.com/tuanngo/crm-pipeline/internal/interfaces/http"
	"github.com/tuanngo/crm-pipeline/internal/pipeline"
	"github.com/tuanngo/crm-pipeline/internal/report"
	"github.com/tuanngo/crm-pipeline/internal/repository"
	"github.com/tuanngo/crm-pipeline/internal/schedule"
	"github.com/tuanngo/crm-pipeline/internal/subflow"
	"github.com/tuanngo/crm-pipeline/migrations"
	"github.com/tuanngo/crm-pipeline/pkg/database"
	"github.com/tuanngo/crm-pipeline/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

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

	logger.Info("Starting CRM pipeline service",
		zap.Int("port", cfg.Server.Port))

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

	migrator := database.NewMigrator(db, logger)
	if err := migrator.Run(migrations.FS); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	customerRepo := repository.NewCustomerRepository(db.DB, logger)
	activityRepo := repository.NewActivityRepository(db.DB, logger)
	ownerRepo := repository.NewOwnerRepository(db.DB, logger)
	templateRepo := repository.NewTemplateRepository(db.DB, logger)
	stateRepo := repository.NewSubWorkflowStateRepository(db.DB, logger)
	scheduleRepo := repository.NewScheduleRepository(db.DB, logger)
	settingsRepo := repository.NewSettingsRepository(db.DB, logger)
	staffRepo := repository.NewStaffRepository(db.DB, logger)
	serviceRepo := repository.NewServiceRepository(db.DB, logger)

	// Core components
	tracker := pipeline.NewTracker(db, customerRepo, activityRepo, logger)
	store := schedule.NewStore(scheduleRepo, logger)
	manager := subflow.NewManager(templateRepo, stateRepo, activityRepo, customerRepo, store, cfg.Pipeline.StartGrace, logger)
	resolver := assignment.NewResolver(db, staffRepo, settingsRepo, serviceRepo, ownerRepo, customerRepo, tracker, logger)
	pipelineReport := report.NewPipelineReport(customerRepo, logger)

	if cfg.Pipeline.DefaultGroup != "" {
		if err := settingsRepo.Set(assignment.DefaultGroupKey, cfg.Pipeline.DefaultGroup); err != nil {
			logger.Warn("Failed to seed default assignment group", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Job dispatcher
	workers := dispatcher.NewManager(logger)
	if cfg.Dispatcher.Enabled {
		executor := dispatcher.NewActivityExecutor(activityRepo, templateRepo, logger)
		poller := dispatcher.NewPoller(
			store, scheduleRepo, stateRepo, templateRepo, customerRepo,
			executor, cfg.Dispatcher.PollInterval, cfg.Dispatcher.BatchSize, logger,
		)
		workers.Register(poller)

		if err := workers.StartAll(ctx); err != nil {
			logger.Fatal("Failed to start workers", zap.Error(err))
		}
	}

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, tracker, manager, store, resolver, pipelineReport, logger.Sugar())

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server exited with error", zap.Error(err))
		}
	}

	cancel()
	if cfg.Dispatcher.Enabled {
		if err := workers.StopAll(); err != nil {
			logger.Error("Failed to stop workers", zap.Error(err))
		}
	}
	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop server", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
