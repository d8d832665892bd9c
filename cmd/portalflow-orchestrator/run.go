package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/portalflow/pkg/cmd"
	"github.com/dukex/portalflow/pkg/log"
	"github.com/urfave/cli/v3"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Consume event batches from the events topic",
		Flags: cmd.Flags(
			cmd.LogFlags(),
			cmd.DatabaseFlags(),
			cmd.ConfigFlags(),
			cmd.WESFlags(),
			cmd.NotificationFlags(),
			cmd.TransportFlags(),
			cmd.TracingFlags(),
			[]cli.Flag{
				&cli.StringFlag{
					Name:    "events-topic",
					Usage:   "Topic carrying event batches",
					Value:   "portalflow.events",
					Sources: cli.EnvVars("EVENTS_TOPIC"),
				},
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("portalflow-orchestrator")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := cmd.NewRuntime(ctx, command, "portalflow-orchestrator", logger)
			if err != nil {
				return err
			}
			defer rt.Close(context.WithoutCancel(ctx))

			topic := command.String("events-topic")

			logger.InfoContext(ctx, "Starting orchestrator", "topic", topic, "pubsub", command.String("pubsub"))

			return rt.Ingress.Subscribe(ctx, rt.Subscriber, topic)
		},
	}
}
