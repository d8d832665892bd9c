package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "portalflow-api",
		Usage:                 "Inspect and remediate batch runs, and accept event batches over HTTP",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewServeCommand(),
			NewImportMetadataCommand(),
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
