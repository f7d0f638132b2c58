package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	offload "github.com/Swind/go-offload"
	"github.com/Swind/go-offload/core"
)

// lookupFunc is the blocking resolver call; tests replace it.
var lookupFunc = net.LookupHost

func ResolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "resolve host names from coroutines, offloading each lookup",
		ArgsUsage: "HOST [HOST...]",

		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "schedulers",
				Aliases: []string{"s"},
				Value:   2,
				Usage:   "number of coroutine schedulers to spread the hosts over",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Second,
				Usage:   "give up waiting for a single lookup after this long",
			},
		},

		Action: ResolveAction,
	}
}

type resolveResult struct {
	host  string
	addrs []string
	err   error
}

func ResolveAction(c *cli.Context) error {
	hosts := c.Args().Slice()
	if len(hosts) == 0 {
		return cli.Exit("at least one host is required", 1)
	}
	schedulers := c.Int("schedulers")
	if schedulers < 1 {
		return cli.Exit("schedulers must be at least 1", 1)
	}

	rt, err := setup(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	defer rt.Close()

	results, err := resolveAll(c.Context, rt, hosts, schedulers, c.Duration("timeout"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	failed := printResults(c.App.Writer, results)
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d lookups failed", failed, len(hosts)), 2)
	}
	return nil
}

// resolveAll spreads hosts round-robin over n schedulers, one coroutine per host.
func resolveAll(ctx context.Context, rt *session, hosts []string, n int, timeout time.Duration) ([]resolveResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]resolveResult, len(hosts))

	g, gctx := errgroup.WithContext(ctx)
	for si := 0; si < n && si < len(hosts); si++ {
		sched := rt.newScheduler(fmt.Sprintf("resolve-%d", si))
		g.Go(func() error {
			defer sched.Stop()
			for i := si; i < len(hosts); i += n {
				_, err := sched.Go(func(cctx context.Context) {
					cctx, cancel := context.WithTimeout(cctx, timeout)
					defer cancel()

					host := hosts[i]
					addrs, err := offload.JoinNamed(cctx, rt.pool, "lookup "+host, func() ([]string, error) {
						return lookupFunc(host)
					})
					results[i] = resolveResult{host: host, addrs: addrs, err: err}
				})
				if err != nil {
					return err
				}
			}
			return sched.Wait(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rt.logger.Debug("resolve finished", core.F("hosts", len(hosts)), core.F("schedulers", n))
	return results, nil
}

func printResults(w io.Writer, results []resolveResult) int {
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(w, "✗ %s: %v\n", r.host, r.err)
			continue
		}
		fmt.Fprintf(w, "✓ %s: %s\n", r.host, strings.Join(r.addrs, ", "))
	}
	return failed
}
