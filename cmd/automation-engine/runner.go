package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beaconcrm/automation/pkg/cmd"
	"github.com/beaconcrm/automation/pkg/conditions"
	"github.com/beaconcrm/automation/pkg/engine"
	"github.com/beaconcrm/automation/pkg/eventbus"
	"github.com/beaconcrm/automation/pkg/events"
	"github.com/beaconcrm/automation/pkg/otelhelper"
	"github.com/beaconcrm/automation/pkg/persistence"
	"github.com/beaconcrm/automation/pkg/services"
	"github.com/beaconcrm/automation/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
)

type Config struct {
	EngineID        string
	DatabaseURL     string
	EventBus        string
	KafkaBrokers    string
	RedisURL        string
	Port            int
	ActionTimeout   time.Duration
	WorkflowTimeout time.Duration
	Tracing         bool
}

// Runner owns the engine process: the event bus subscription feeding the
// trigger router and the management HTTP API.
type Runner struct {
	logger      *slog.Logger
	config      Config
	persistence persistence.Persistence
	bus         eventbus.EventBus
	deliveryBus eventbus.EventBus
	executor    *engine.Executor
	automation  *services.AutomationService
	app         *fiber.App
}

func NewRunner(ctx context.Context, logger *slog.Logger, config Config) (*Runner, error) {
	persist, err := cmd.NewPersistence(ctx, logger, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create persistence: %w", err)
	}

	checkpoints, err := cmd.NewCheckpointStore(ctx, logger, persist, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	governor, err := cmd.NewRateGovernor(ctx, config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate governor: %w", err)
	}

	bus, err := cmd.NewEventBus(config.EventBus, config.KafkaBrokers, "automation-engine", logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	deliveryBus, err := cmd.NewDeliveryBus(config.EventBus, config.KafkaBrokers, "automation-engine", logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery bus: %w", err)
	}

	dispatcher, err := cmd.NewDispatcher(logger, deliveryBus)
	if err != nil {
		return nil, fmt.Errorf("failed to create action dispatcher: %w", err)
	}

	executorOpts := []engine.ExecutorOption{
		engine.WithActionTimeout(config.ActionTimeout),
		engine.WithWorkflowTimeout(config.WorkflowTimeout),
	}

	if config.Tracing {
		tracer, err := otelhelper.NewTracer(ctx, "automation-engine")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		executorOpts = append(executorOpts, engine.WithTracer(tracer))
	}

	executor := engine.NewExecutor(
		logger,
		persist.WorkflowRepository(),
		persist.ExecutionRepository(),
		checkpoints,
		dispatcher,
		bus,
		executorOpts...,
	)

	router := engine.NewTriggerRouter(
		logger,
		persist.WorkflowRepository(),
		conditions.NewEvaluator(logger),
		governor,
		executor,
	)

	automation := services.NewAutomationService(logger, router, executor, checkpoints)
	workflows := services.NewWorkflowService(persist)

	runner := &Runner{
		logger:      logger,
		config:      config,
		persistence: persist,
		bus:         bus,
		deliveryBus: deliveryBus,
		executor:    executor,
		automation:  automation,
	}
	runner.app = runner.buildApp(workflows)

	return runner, nil
}

func (r *Runner) buildApp(workflows *services.WorkflowService) *fiber.App {
	handlers := web.NewAPIHandlers(workflows, r.automation, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Automation Engine API")
	})

	w := app.Group("/workflows")
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Get("/:id/executions", handlers.ListWorkflowExecutions)

	app.Post("/triggers", handlers.ProcessTrigger)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)
	e.Get("/:id/checkpoints", handlers.ListExecutionCheckpoints)

	app.Post("/checkpoints/cleanup", handlers.CleanupCheckpoints)

	app.Get("/health", handlers.HealthCheck)

	return app
}

// Start subscribes to trigger events, serves the HTTP API and blocks until
// the process receives SIGINT or SIGTERM.
func (r *Runner) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := r.bus.Handle(events.TriggerReceivedEvent, r.handleTriggerReceived)
	if err != nil {
		return fmt.Errorf("failed to register trigger handler: %w", err)
	}

	if err := r.bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	go func() {
		if err := r.app.Listen(fmt.Sprintf(":%d", r.config.Port)); err != nil {
			r.logger.ErrorContext(ctx, "HTTP API stopped", "error", err)
		}
	}()

	r.logger.InfoContext(ctx, "Automation engine started", "port", r.config.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	r.logger.InfoContext(ctx, "Shutting down automation engine")
	cancel()

	return r.shutdown()
}

func (r *Runner) handleTriggerReceived(ctx context.Context, event any) error {
	trigger, ok := event.(*events.TriggerReceived)
	if !ok {
		r.logger.ErrorContext(ctx, "Invalid event type for TriggerReceived")

		return nil
	}

	r.logger.InfoContext(ctx, "Processing trigger event",
		"event_id", trigger.ID,
		"organization_id", trigger.OrganizationID,
		"trigger_type", trigger.TriggerType,
	)

	started, err := r.automation.ProcessTrigger(ctx, trigger.OrganizationID, trigger.TriggerType, trigger.Payload)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to process trigger", "event_id", trigger.ID, "error", err)

		return err
	}

	r.logger.InfoContext(ctx, "Trigger processed", "event_id", trigger.ID, "executions_started", len(started))

	return nil
}

func (r *Runner) shutdown() error {
	if err := r.app.Shutdown(); err != nil {
		r.logger.Error("Failed to shut down HTTP API", "error", err)
	}

	// Stop execution workers at their next step boundary; checkpoints make
	// the interrupted executions resumable.
	r.executor.Shutdown()

	if err := r.bus.Close(); err != nil {
		r.logger.Error("Failed to close event bus", "error", err)
	}

	if err := r.deliveryBus.Close(); err != nil {
		r.logger.Error("Failed to close delivery bus", "error", err)
	}

	return r.persistence.Close(context.Background())
}
