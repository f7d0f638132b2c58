// Command offload exercises the offload bridge: it resolves host names from
// coroutines through the worker pool, benchmarks joins, and manages the
// configuration file.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "offload",
		Usage: "run blocking calls from coroutines on dedicated worker threads",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the config file",
				EnvVars: []string{"OFFLOAD_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			ResolveCommand(),
			BenchCommand(),
			ConfigCommand(),
		},
	}
}
