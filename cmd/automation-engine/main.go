// Package main provides the automation engine binary: trigger routing,
// workflow execution and the management API.
package main

import (
	"context"
	"os"
	"time"

	"github.com/beaconcrm/automation/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "automation-engine",
		EnableShellCompletion: true,
		Usage:                 "Route trigger events and execute automation workflows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "engine-id",
				Aliases: []string{"id"},
				Usage:   "Custom engine ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ENGINE_ID"),
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
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list (required for the kafka event bus)",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the shared rate governor (in-memory when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "HTTP API port",
				Value:   9091,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.DurationFlag{
				Name:    "action-timeout",
				Usage:   "Timeout for a single action dispatch",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("ACTION_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "workflow-timeout",
				Usage:   "Timeout for a whole workflow execution",
				Value:   15 * time.Minute,
				Sources: cli.EnvVars("WORKFLOW_TIMEOUT"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing",
				Sources: cli.EnvVars("OTEL_ENABLED"),
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

			engineID := command.String("engine-id")
			if engineID == "" {
				engineID = "engine-" + uuid.New().String()[:8]
			}

			logger := log.ForService("automation-engine", engineID)

			logger.InfoContext(ctx, "Initializing automation engine")

			runner, err := NewRunner(ctx, logger, Config{
				EngineID:        engineID,
				DatabaseURL:     command.String("database-url"),
				EventBus:        command.String("event-bus"),
				KafkaBrokers:    command.String("kafka-brokers"),
				RedisURL:        command.String("redis-url"),
				Port:            command.Int("port"),
				ActionTimeout:   command.Duration("action-timeout"),
				WorkflowTimeout: command.Duration("workflow-timeout"),
				Tracing:         command.Bool("tracing"),
			})
			if err != nil {
				return err
			}

			return runner.Start(ctx)
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
