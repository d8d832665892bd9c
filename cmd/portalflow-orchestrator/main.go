// Package main runs the orchestrator: it consumes lifecycle event batches and routes
// succeeded workflows to their follow-on steps.
package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "portalflow-orchestrator",
		Usage:                 "Route workflow lifecycle events to follow-on steps",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRunCommand(),
			NewHandleCommand(),
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
