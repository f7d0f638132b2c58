package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	offload "github.com/Swind/go-offload"
)

func BenchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "join many sleeping closures and report how well they overlap",

		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "tasks",
				Aliases: []string{"n"},
				Value:   1000,
				Usage:   "number of joins",
			},
			&cli.DurationFlag{
				Name:  "sleep",
				Value: 10 * time.Millisecond,
				Usage: "how long each closure blocks its worker thread",
			},
			&cli.IntFlag{
				Name:    "schedulers",
				Aliases: []string{"s"},
				Value:   1,
				Usage:   "number of coroutine schedulers issuing joins",
			},
		},

		Action: BenchAction,
	}
}

type benchReport struct {
	Tasks     int
	Completed int64
	Failed    int64
	Elapsed   time.Duration
	Workers   int
	Switches  uint64
}

func BenchAction(c *cli.Context) error {
	tasks := c.Int("tasks")
	if tasks < 1 {
		return cli.Exit("tasks must be at least 1", 1)
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

	report, err := runBench(c.Context, rt, tasks, schedulers, c.Duration("sleep"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "joins:      %d (%d failed)\n", report.Completed, report.Failed)
	fmt.Fprintf(w, "elapsed:    %v\n", report.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "throughput: %.0f joins/s\n", float64(report.Completed)/report.Elapsed.Seconds())
	fmt.Fprintf(w, "workers:    %d (max %d)\n", report.Workers, rt.pool.Config().MaxWorkers)
	fmt.Fprintf(w, "switches:   %d\n", report.Switches)
	return nil
}

func runBench(ctx context.Context, rt *session, tasks, schedulers int, sleep time.Duration) (benchReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		completed atomic.Int64
		failed    atomic.Int64
		switches  atomic.Uint64
		peak      atomic.Int64
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for si := 0; si < schedulers; si++ {
		sched := rt.newScheduler(fmt.Sprintf("bench-%d", si))
		g.Go(func() error {
			defer sched.Stop()
			for i := si; i < tasks; i += schedulers {
				if _, err := sched.Go(func(cctx context.Context) {
					benchJoin(cctx, rt.pool, sleep, &completed, &failed)
					storeMax(&peak, int64(rt.pool.WorkerCount()))
				}); err != nil {
					return err
				}
			}
			err := sched.Wait(gctx)
			switches.Add(sched.Stats().Switches)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return benchReport{}, err
	}

	return benchReport{
		Tasks:     tasks,
		Completed: completed.Load(),
		Failed:    failed.Load(),
		Elapsed:   time.Since(start),
		Workers:   int(peak.Load()),
		Switches:  switches.Load(),
	}, nil
}

func benchJoin(ctx context.Context, pool *offload.ThreadPool, sleep time.Duration, completed, failed *atomic.Int64) {
	_, err := offload.JoinOn(ctx, pool, func() struct{} {
		time.Sleep(sleep)
		return struct{}{}
	})
	if err != nil {
		failed.Add(1)
		return
	}
	completed.Add(1)
}

func storeMax(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n <= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}
