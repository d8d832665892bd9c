package cmd

import (
	"time"

	"github.com/urfave/cli/v3"
)

func LogFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

func DatabaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (postgres://... or file://...)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
	}
}

func ConfigFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Usage:    "Path to the orchestration YAML file",
			Required: true,
			Sources:  cli.EnvVars("ORCHESTRATION_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "skip-list",
			Usage:   `Extra steps to skip as JSON, e.g. {"global":["DRAGEN_WTS_STEP"]}`,
			Sources: cli.EnvVars("STEP_SKIP_LIST"),
		},
	}
}

func WESFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "wes-url",
			Usage:    "Base URL of the workflow execution service",
			Required: true,
			Sources:  cli.EnvVars("WES_URL"),
		},
		&cli.StringFlag{
			Name:    "wes-token",
			Usage:   "Bearer token for the workflow execution service",
			Sources: cli.EnvVars("WES_TOKEN"),
		},
		&cli.DurationFlag{
			Name:    "wes-timeout",
			Usage:   "Timeout of one request to the workflow execution service",
			Value:   30 * time.Second,
			Sources: cli.EnvVars("WES_TIMEOUT"),
		},
	}
}

func NotificationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "Slack incoming webhook; notifications are logged when empty",
			Sources: cli.EnvVars("SLACK_WEBHOOK_URL"),
		},
		&cli.StringFlag{
			Name:    "slack-channel",
			Usage:   "Slack channel override",
			Sources: cli.EnvVars("SLACK_CHANNEL"),
		},
	}
}

func TransportFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "pubsub",
			Usage:   "Pub/sub provider (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("PUBSUB_PROVIDER"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "job-backend",
			Usage:   "Where jobs are queued (pubsub, redis)",
			Value:   JobBackendPubSub,
			Sources: cli.EnvVars("JOB_BACKEND"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the redis job backend",
			Value:   "redis://localhost:6379/0",
			Sources: cli.EnvVars("REDIS_URL"),
		},
	}
}

func TracingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}

// Flags concatenates flag groups.
func Flags(groups ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, group := range groups {
		flags = append(flags, group...)
	}

	return flags
}
