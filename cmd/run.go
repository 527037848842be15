package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sockbench/internal/cli"
	"sockbench/internal/conn"
	"sockbench/internal/logger"
	"sockbench/internal/pool"
	"sockbench/internal/runner"
	"sockbench/internal/stats"
	"sockbench/internal/storage"
	"sockbench/internal/tui"
)

var runKeys = map[string]string{
	"run.mode":     "mode",
	"run.target":   "target",
	"run.message":  "message",
	"run.rate":     "rate",
	"run.duration": "duration",
	"run.pacing":   "pacing",
	"run.timeout":  "timeout",
	"run.out":      "out",
	"run.tui":      "tui",
	"run.history":  "history",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Issue a constant-rate load run",
	Long: `Issue rate x duration requests, one batch per second, and wait for every
request to finish before reporting. Ctrl+C stops issuing; requests already in
flight still complete and are counted.

In socket mode requests go straight to --target (host:port) over a pool of
retrying connections. In http mode --target is the base URL of a sockbench
gateway and each request is GET /exchange?message=...`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd.Flags(), runKeys)
		bindFlags(cmd.Flags(), connKeys)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoad(cmd.Context())
	},
}

func init() {
	fs := runCmd.Flags()
	fs.StringP("mode", "m", runner.ModeSocket, "socket or http")
	fs.StringP("target", "t", "127.0.0.1:9000", "host:port (socket) or gateway base URL (http)")
	fs.StringP("message", "b", runner.DefaultMessage, "message template sent on every request")
	fs.IntP("rate", "r", 10, "requests per second")
	fs.DurationP("duration", "d", 10*time.Second, "run duration")
	fs.Float64("pacing", runner.DefaultPacingFraction, "fraction of 1/rate between issuances within a tick")
	fs.Duration("timeout", 10*time.Second, "HTTP request timeout (http mode)")
	fs.StringP("out", "o", "", "output filename prefix for csv/json reports")
	fs.Bool("tui", false, "show the terminal dashboard")
	fs.Bool("history", true, "record the run in the history database")
	addConnFlags(fs)
}

func runConfig() runner.Config {
	return runner.Config{
		Message:           viper.GetString("run.message"),
		RequestsPerSecond: viper.GetInt("run.rate"),
		Duration:          viper.GetDuration("run.duration"),
		PacingFraction:    viper.GetFloat64("run.pacing"),
		Mode:              viper.GetString("run.mode"),
		Target:            viper.GetString("run.target"),
		PoolSize:          viper.GetInt("pool.size"),
		Timeout:           viper.GetDuration("run.timeout"),
		OutPrefix:         viper.GetString("run.out"),
	}
}

// buildTarget returns the request target and a cleanup func.
func buildTarget(cfg runner.Config) (runner.Target, func(), error) {
	switch cfg.Mode {
	case runner.ModeSocket:
		ep, err := conn.ParseEndpoint(cfg.Target)
		if err != nil {
			return nil, nil, err
		}
		p := pool.NewForEndpoint(ep, connOptions(), pool.Config{MaxSize: cfg.PoolSize})
		return runner.PoolTarget{Pool: p}, func() { p.Close() }, nil
	case runner.ModeHTTP:
		return runner.NewHTTPTarget(cfg.Target, cfg.Timeout), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown mode %q (want %s or %s)", cfg.Mode, runner.ModeSocket, runner.ModeHTTP)
	}
}

func runLoad(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg := runConfig()
	target, cleanup, err := buildTarget(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	updates := make(runner.StatsUpdateChan, 100)
	r, err := runner.New(cfg, target, updates)
	if err != nil {
		return err
	}

	var store *storage.Store
	if viper.GetBool("run.history") {
		store, err = openHistory()
		if err != nil {
			logger.Warn("history disabled", "error", err)
		} else {
			defer store.Close()
		}
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsCtx, stopMetrics := context.WithCancel(parent)
	defer stopMetrics()
	startMetrics(metricsCtx)

	var summary stats.Summary
	if viper.GetBool("run.tui") {
		summary, err = tui.Run(ctx, r)
		if err != nil {
			return err
		}
	} else {
		summary = cli.Start(ctx, r, os.Stdout)
	}

	logger.Info("run finished",
		"sent", summary.TotalSent, "succeeded", summary.TotalSucceeded, "cancelled", ctx.Err() != nil)
	return cli.Finish(os.Stdout, r, summary, store)
}

func openHistory() (*storage.Store, error) {
	path, err := storage.DefaultPath()
	if err != nil {
		return nil, err
	}
	return storage.Open(path)
}
