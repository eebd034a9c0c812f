// Package main provides the automation scheduler binary, which fires
// schedule-triggered workflows by publishing trigger events.
package main

import (
	"context"
	"os"
	"time"

	"github.com/beaconcrm/automation/pkg/cmd"
	"github.com/beaconcrm/automation/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "automation-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Fire schedule-triggered workflows as trigger events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "scheduler-id",
				Aliases: []string{"id"},
				Usage:   "Custom scheduler ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("SCHEDULER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres:// or a file path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list (required for the kafka event bus)",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.DurationFlag{
				Name:    "polling-interval",
				Usage:   "How often due schedules are checked",
				Value:   time.Minute,
				Sources: cli.EnvVars("POLLING_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			schedulerID := command.String("scheduler-id")
			if schedulerID == "" {
				schedulerID = "scheduler-" + uuid.New().String()[:8]
			}

			logger := log.ForService("automation-scheduler", schedulerID)

			logger.InfoContext(ctx, "Initializing automation scheduler")

			persist, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persist.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			bus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "automation-scheduler", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			scheduler := NewScheduler(
				logger,
				persist.WorkflowRepository(),
				bus,
				command.Duration("polling-interval"),
			)

			return scheduler.Start(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
