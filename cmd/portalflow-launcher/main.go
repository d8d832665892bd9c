// Package main runs the launcher: it consumes the job queues of the downstream workflow types
// and launches one workflow run per job.
package main

import (
	"context"
	"os"

	"github.com/dukex/portalflow/pkg/cmd"
	"github.com/dukex/portalflow/pkg/log"
	"github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "portalflow-launcher",
		Usage:                 "Launch workflow runs for dispatched jobs",
		EnableShellCompletion: true,
		Flags: cmd.Flags(
			cmd.LogFlags(),
			cmd.DatabaseFlags(),
			cmd.ConfigFlags(),
			cmd.WESFlags(),
			cmd.NotificationFlags(),
			cmd.TransportFlags(),
			cmd.TracingFlags(),
			[]cli.Flag{
				&cli.StringSliceFlag{
					Name:    "types",
					Usage:   "Workflow types to consume jobs for",
					Value:   []string{"GERMLINE", "DRAGEN_TSO_CTDNA", "DRAGEN_WTS", "TUMOR_NORMAL"},
					Sources: cli.EnvVars("LAUNCHER_TYPES"),
				},
				&cli.StringFlag{
					Name:    "consumer-group",
					Usage:   "Redis consumer group",
					Value:   "portalflow-launcher",
					Sources: cli.EnvVars("CONSUMER_GROUP"),
				},
				&cli.StringFlag{
					Name:    "consumer-id",
					Aliases: []string{"id"},
					Usage:   "Consumer name (auto-generated if not provided)",
					Sources: cli.EnvVars("CONSUMER_ID"),
				},
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			return run(ctx, command)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
