package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dukex/portalflow/pkg/cmd"
	"github.com/dukex/portalflow/pkg/log"
	"github.com/dukex/portalflow/pkg/metadata"
	"github.com/urfave/cli/v3"
)

func NewImportMetadataCommand() *cli.Command {
	return &cli.Command{
		Name:  "import-metadata",
		Usage: "Import a lab metadata CSV sheet",
		Flags: cmd.Flags(
			[]cli.Flag{
				&cli.StringFlag{
					Name:     "file",
					Aliases:  []string{"f"},
					Usage:    "Path to the metadata CSV",
					Required: true,
				},
			},
			cmd.LogFlags(),
			cmd.DatabaseFlags(),
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("import-metadata")

			file, err := os.Open(command.String("file"))
			if err != nil {
				return fmt.Errorf("failed to open metadata sheet: %w", err)
			}

			defer func() {
				_ = file.Close()
			}()

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

			result, err := metadata.NewImporter(p.LabMetadataRepository(), logger).Import(ctx, file)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Lab metadata imported", "imported", result.Imported, "skipped", result.Skipped)

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")

			return encoder.Encode(result)
		},
	}
}
