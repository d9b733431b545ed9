// Command taskport serves task runners over WebSocket and sends task batches
// to a running server.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "taskport",
		Usage:   "Dispatch named tasks and stream their results",
		Version: version,
		Commands: []*cli.Command{
			ServeCommand(),
			SendCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
