package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beaconcrm/automation/pkg/eventbus"
	"github.com/beaconcrm/automation/pkg/events"
	"github.com/beaconcrm/automation/pkg/models"
	"github.com/beaconcrm/automation/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// Scheduler polls active schedule-triggered workflows and publishes a pinned
// trigger event whenever one is due. Cron expressions live in the workflow's
// trigger configuration under the "cron" key, standard 5-field format.
type Scheduler struct {
	logger          *slog.Logger
	workflows       persistence.WorkflowRepository
	publisher       eventbus.EventPublisher
	pollingInterval time.Duration
	parser          cron.Parser

	// nextDue tracks the precomputed next firing per workflow, so one poll
	// pass needs no cron math for schedules that are not due.
	nextDue map[string]time.Time
}

func NewScheduler(
	logger *slog.Logger,
	workflows persistence.WorkflowRepository,
	publisher eventbus.EventPublisher,
	pollingInterval time.Duration,
) *Scheduler {
	return &Scheduler{
		logger:          logger,
		workflows:       workflows,
		publisher:       publisher,
		pollingInterval: pollingInterval,
		parser:          cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		nextDue:         make(map[string]time.Time),
	}
}

// Start polls until the context is cancelled or the process receives SIGINT
// or SIGTERM.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(s.pollingInterval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "Scheduler started", "polling_interval", s.pollingInterval)

	s.poll(ctx, time.Now().UTC())

	for {
		select {
		case <-sigChan:
			s.logger.InfoContext(ctx, "Shutting down scheduler")

			return nil
		case <-ctx.Done():
			return ctx.Err()
		case tick := <-ticker.C:
			s.poll(ctx, tick.UTC())
		}
	}
}

// poll fires every due schedule once and recomputes its next firing.
func (s *Scheduler) poll(ctx context.Context, now time.Time) {
	workflows, err := s.workflows.ListActiveByTriggerType(ctx, models.TriggerSchedule)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list scheduled workflows", "error", err)

		return
	}

	seen := make(map[string]bool, len(workflows))

	for _, workflow := range workflows {
		seen[workflow.ID] = true

		expression, ok := workflow.TriggerConfig["cron"].(string)
		if !ok || expression == "" {
			s.logger.WarnContext(ctx, "Scheduled workflow has no cron expression", "workflow_id", workflow.ID)

			continue
		}

		schedule, err := s.parser.Parse(expression)
		if err != nil {
			s.logger.WarnContext(ctx, "Invalid cron expression",
				"workflow_id", workflow.ID, "cron", expression, "error", err)

			continue
		}

		due, known := s.nextDue[workflow.ID]
		if !known {
			// First sighting: arm the schedule without firing, so restarts
			// do not replay past occurrences.
			s.nextDue[workflow.ID] = schedule.Next(now)

			continue
		}

		if due.After(now) {
			continue
		}

		s.fire(ctx, workflow, due)
		s.nextDue[workflow.ID] = schedule.Next(now)
	}

	// Forget workflows that were deactivated or deleted.
	for id := range s.nextDue {
		if !seen[id] {
			delete(s.nextDue, id)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, workflow *models.Workflow, scheduledAt time.Time) {
	event := &events.TriggerReceived{
		BaseEvent:      events.NewBaseEvent(events.TriggerReceivedEvent, workflow.ID),
		TriggerType:    models.TriggerSchedule,
		OrganizationID: workflow.OrganizationID,
		Payload: map[string]any{
			"workflow_id":  workflow.ID,
			"scheduled_at": scheduledAt.Format(time.RFC3339),
		},
	}

	if err := s.publisher.Publish(ctx, workflow.ID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish schedule trigger",
			"workflow_id", workflow.ID, "error", err)

		return
	}

	s.logger.InfoContext(ctx, "Schedule fired",
		"workflow_id", workflow.ID,
		"organization_id", workflow.OrganizationID,
		"scheduled_at", scheduledAt,
	)
}
