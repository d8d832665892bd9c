// Package main runs the stuck batch run reporter.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/portalflow/pkg/cmd"
	"github.com/dukex/portalflow/pkg/log"
	"github.com/dukex/portalflow/pkg/services"
	"github.com/dukex/portalflow/pkg/sweeper"
	"github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "portalflow-sweeper",
		Usage:                 "Report batch runs left running without workflows",
		EnableShellCompletion: true,
		Flags: cmd.Flags(
			cmd.LogFlags(),
			cmd.DatabaseFlags(),
			cmd.NotificationFlags(),
			[]cli.Flag{
				&cli.StringFlag{
					Name:    "schedule",
					Usage:   "Cron expression of the sweep",
					Value:   sweeper.DefaultSchedule,
					Sources: cli.EnvVars("SWEEP_SCHEDULE"),
				},
				&cli.DurationFlag{
					Name:    "idle-for",
					Usage:   "How long a batch run must be unchanged to be reported",
					Value:   sweeper.DefaultIdleFor,
					Sources: cli.EnvVars("SWEEP_IDLE_FOR"),
				},
				&cli.BoolFlag{
					Name:  "once",
					Usage: "Sweep once and exit",
				},
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("portalflow-sweeper")

			p, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := p.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			notifier := cmd.NewNotifier(p, command.String("slack-webhook-url"), command.String("slack-channel"), logger)

			s, err := sweeper.New(command.String("schedule"), command.Duration("idle-for"), services.NewBatch(p), notifier, logger)
			if err != nil {
				return err
			}

			if command.Bool("once") {
				found, err := s.Sweep(ctx)
				if err != nil {
					return err
				}

				logger.InfoContext(ctx, "Sweep finished", "stuck", found)

				return nil
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = s.Start(ctx)
			if err != nil {
				return err
			}

			<-ctx.Done()
			s.Stop(context.WithoutCancel(ctx))

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
