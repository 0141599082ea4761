package main

import (
	"context"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/urfave/cli/v2"

	"spread-arb-go/config"
	"spread-arb-go/internal/container"
	"spread-arb-go/sim"
	"spread-arb-go/strategy"
)

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "configs/config.yaml",
		Usage:   "配置文件路径",
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "启动全部价差实例，直到收到 SIGINT/SIGTERM",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "replay", Usage: "启动后回放的 CSV 行情文件"},
			&cli.Float64Flag{Name: "speed", Usage: "回放倍速，0 为尽快回放"},
		},
		Action: func(c *cli.Context) error {
			ctr, err := container.New(c.String("config"))
			if err != nil {
				return err
			}
			if err := ctr.Build(); err != nil {
				return err
			}
			ctx, cancel := ossignal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := ctr.Start(ctx); err != nil {
				return err
			}
			// 非 systemd 环境下 SdNotify 返回 false
			_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

			if path := c.String("replay"); path != "" {
				go func() {
					r := sim.Replayer{Dispatch: ctr.Dispatch, Speed: c.Float64("speed")}
					stats, err := r.ReplayFile(ctx, path)
					if err != nil {
						fmt.Fprintf(os.Stderr, "replay stopped: %v\n", err)
						return
					}
					fmt.Fprintf(os.Stderr, "replay finished: %d rows, %d dispatched, %d skipped\n", stats.Rows, stats.Dispatched, stats.Skipped)
				}()
			}

			<-ctx.Done()
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			return ctr.Stop()
		},
	}
}

func replayCommand() *cli.Command {
	return &cli.Command{
		Name:  "replay",
		Usage: "回放 CSV 行情并打印各价差实例的最终状态",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "ticks", Aliases: []string{"t"}, Required: true, Usage: "CSV 行情文件"},
			&cli.BoolFlag{Name: "strict", Usage: "遇到坏行立即失败"},
			&cli.DurationFlag{Name: "timeout", Value: time.Minute, Usage: "等待回报处理完毕的最长时间"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadWithEnvOverrides(c.String("config"))
			if err != nil {
				return err
			}
			ctr := container.NewFromConfig(cfg, container.Options{NoMetrics: true, NoWatch: true})
			if err := ctr.Build(); err != nil {
				return err
			}
			if err := ctr.Start(c.Context); err != nil {
				return err
			}
			defer ctr.Stop()

			r := sim.Replayer{Dispatch: ctr.Dispatch, Strict: c.Bool("strict")}
			stats, err := r.ReplayFile(c.Context, c.String("ticks"))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			if err := ctr.WaitIdle(ctx); err != nil {
				return fmt.Errorf("wait for fills: %w", err)
			}
			sums, err := ctr.Summaries(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "rows=%d dispatched=%d skipped=%d\n", stats.Rows, stats.Dispatched, stats.Skipped)
			printSummaries(c.App.Writer, sums)
			return nil
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "校验配置文件",
		Flags: []cli.Flag{configFlag()},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadWithEnvOverrides(c.String("config"))
			if err != nil {
				return err
			}
			for _, name := range cfg.SpreadNames() {
				sc := cfg.Spreads[name]
				legs, coefs, _ := sc.ResolveLegs()
				fmt.Fprintf(c.App.Writer, "%s\t%s\tlegs=%v\tcoefficients=%v\n", name, sc.Kind(), legs, coefs)
			}
			fmt.Fprintln(c.App.Writer, "config ok")
			return nil
		},
	}
}

func printSummaries(w io.Writer, sums []strategy.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SPREAD\tKIND\tREADY\tBASIS\tSTATE\tNET\tIMBALANCE\tFILLED\tREALIZED\tUNREALIZED")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%.4f\t%s\t%.4f\t%.4f\t%v\t%.4f\t%.4f\n",
			s.Name, s.Kind, s.Ready, s.Basis, s.State, s.Net, s.Imbalance, s.Filled, s.Realized, s.Unrealized)
	}
	_ = tw.Flush()
}
