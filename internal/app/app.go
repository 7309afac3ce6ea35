// -----------------------------------------------------------------------
// App - Component wiring and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/common"
	"github.com/ternarybob/curo/internal/handlers"
	"github.com/ternarybob/curo/internal/interfaces"
	"github.com/ternarybob/curo/internal/services/batches"
	"github.com/ternarybob/curo/internal/services/events"
	jobsvc "github.com/ternarybob/curo/internal/services/jobs"
	"github.com/ternarybob/curo/internal/services/processing"
	"github.com/ternarybob/curo/internal/services/retention"
	"github.com/ternarybob/curo/internal/services/scheduler"
	"github.com/ternarybob/curo/internal/services/sessions"
	badgerstore "github.com/ternarybob/curo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	EventService     interfaces.EventService
	Aggregator       *batches.Aggregator
	SessionManager   *sessions.Manager
	Scheduler        *scheduler.Scheduler
	JobService       *jobsvc.Service
	RetentionService *retention.Service

	APIHandler         *handlers.APIHandler
	SessionHandler     *handlers.SessionHandler
	BatchHandler       *handlers.BatchHandler
	JobHandler         *handlers.JobHandler
	MaintenanceHandler *handlers.MaintenanceHandler
	WSHandler          *handlers.WebSocketHandler
}

// New initializes the application with all dependencies. The processor is
// injected so callers can bind any operation; cmd/curo binds the
// command-based one when configured.
func New(cfg *common.Config, logger arbor.ILogger, processor interfaces.Processor) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badgerstore.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}
	app.StorageManager = storageManager
	logger.Debug().
		Str("storage", "badger").
		Str("path", cfg.Storage.Badger.Path).
		Msg("Storage layer initialized")

	app.EventService = events.NewService(logger)

	app.Aggregator = batches.NewAggregator(
		storageManager.JobStorage(),
		storageManager.BatchStorage(),
		app.EventService,
		logger,
	)

	app.SessionManager = sessions.NewManager(
		storageManager.BatchStorage(),
		cfg.Sessions.WindowDuration(),
		cfg.Sessions.PruneAgeDuration(),
		logger,
	)

	if processor == nil {
		processor, err = processing.NewCommandProcessor(cfg.Processing, logger)
		if err != nil {
			storageManager.Close()
			return nil, fmt.Errorf("failed to create processor: %w", err)
		}
	}

	app.Scheduler = scheduler.New(
		storageManager.JobStorage(),
		app.Aggregator,
		app.EventService,
		processor,
		cfg.Scheduler.MaxConcurrent,
		logger,
	)

	app.JobService = jobsvc.NewService(
		storageManager,
		app.SessionManager,
		app.Scheduler,
		app.Aggregator,
		logger,
	)

	app.RetentionService = retention.NewService(
		storageManager.JobStorage(),
		storageManager.BatchStorage(),
		&cfg.Retention,
		logger,
	)
	app.RetentionService.SetSessionPruner(app.SessionManager.Prune)

	app.initHandlers()

	logger.Info().
		Int("max_concurrent", cfg.Scheduler.MaxConcurrent).
		Dur("session_window", cfg.Sessions.WindowDuration()).
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.SessionHandler = handlers.NewSessionHandler(a.SessionManager, a.Logger)
	a.BatchHandler = handlers.NewBatchHandler(a.JobService, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.JobService, a.Logger)
	a.MaintenanceHandler = handlers.NewMaintenanceHandler(a.RetentionService, a.Config.Retention.MaxAgeDays, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, &a.Config.WebSocket)
}

// Start recovers orphaned work from a previous run, then starts the
// scheduler and the retention sweep
func (a *App) Start(ctx context.Context) error {
	if err := a.JobService.RecoverOrphans(ctx); err != nil {
		return fmt.Errorf("failed to recover orphaned jobs: %w", err)
	}

	a.Scheduler.Start()

	if err := a.RetentionService.Start(); err != nil {
		return fmt.Errorf("failed to start retention service: %w", err)
	}

	return nil
}

// Close shuts down all components in reverse dependency order
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application...")

	a.RetentionService.Stop()
	a.Scheduler.Stop()
	a.WSHandler.Close()
	a.EventService.Close()

	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("Failed to close storage")
		return err
	}

	a.Logger.Info().Msg("Application stopped")
	return nil
}
