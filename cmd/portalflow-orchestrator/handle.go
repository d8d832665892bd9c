package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dukex/portalflow/pkg/cmd"
	"github.com/dukex/portalflow/pkg/config"
	"github.com/dukex/portalflow/pkg/log"
	"github.com/dukex/portalflow/pkg/orchestrator"
	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v3"
)

// NewHandleCommand runs the orchestration of one workflow by hand, e.g. after a step was
// fixed or a batch run was reset.
func NewHandleCommand() *cli.Command {
	return &cli.Command{
		Name:  "handle",
		Usage: "Orchestrate one workflow run and print the step results",
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
					Name:     "wfr-id",
					Usage:    "Workflow run id",
					Required: true,
				},
				&cli.StringFlag{
					Name:     "wfv-id",
					Usage:    "Workflow version id",
					Required: true,
				},
				&cli.StringFlag{
					Name:  "skip",
					Usage: `Steps to skip for this call as JSON, e.g. {"global":["UPDATE_STEP"]}`,
				},
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("portalflow-orchestrator")

			skip, err := config.ParseSkipList(command.String("skip"))
			if err != nil {
				return fmt.Errorf("invalid skip list: %w", err)
			}

			req := orchestrator.Request{
				RunID:     command.String("wfr-id"),
				VersionID: command.String("wfv-id"),
				Skip:      skip,
			}

			err = validator.New(validator.WithRequiredStructEnabled()).Struct(req)
			if err != nil {
				return err
			}

			rt, err := cmd.NewRuntime(ctx, command, "portalflow-orchestrator", logger)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			results, err := rt.Orchestrator.HandleRequest(ctx, req)

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")

			encodeErr := encoder.Encode(results)
			if encodeErr != nil {
				logger.ErrorContext(ctx, "Failed to print step results", "error", encodeErr)
			}

			return err
		},
	}
}
