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

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run the API server",
		Flags: cmd.Flags(
			[]cli.Flag{
				&cli.IntFlag{
					Name:    "port",
					Aliases: []string{"p"},
					Usage:   "Port to run the API server on",
					Value:   defaultPort,
					Sources: cli.EnvVars("PORT"),
				},
			},
			cmd.LogFlags(),
			cmd.DatabaseFlags(),
			cmd.ConfigFlags(),
			cmd.WESFlags(),
			cmd.NotificationFlags(),
			cmd.TransportFlags(),
			cmd.TracingFlags(),
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Portalflow API")

			rt, err := cmd.NewRuntime(ctx, command, "portalflow-api", logger)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			api := NewAPI(logger, rt.Persistence, rt.Ingress)

			return api.Start(ctx, command.Int("port"))
		},
	}
}
