package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"sockbench/internal/conn"
	"sockbench/internal/logger"
	"sockbench/internal/metrics"
)

// connKeys are shared by run and serve, so each command binds them in PreRunE;
// a viper key holds only one flag binding.
var connKeys = map[string]string{
	"conn.attempts":      "attempts",
	"conn.initial-delay": "initial-delay",
	"conn.max-delay":     "max-delay",
	"conn.multiplier":    "multiplier",
	"conn.dial-timeout":  "dial-timeout",
	"conn.io-timeout":    "io-timeout",
	"pool.size":          "pool-size",
}

// bindFlags maps viper keys to flag names.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, flag := range keys {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func addConnFlags(fs *pflag.FlagSet) {
	def := conn.DefaultOptions()
	fs.Int("attempts", def.Policy.MaxAttempts, "attempts per exchange, first try included")
	fs.Duration("initial-delay", def.Policy.InitialDelay, "backoff before the second attempt")
	fs.Duration("max-delay", def.Policy.MaxDelay, "backoff cap")
	fs.Float64("multiplier", def.Policy.Multiplier, "backoff growth factor")
	fs.Duration("dial-timeout", def.DialTimeout, "TCP connect timeout per attempt")
	fs.Duration("io-timeout", def.IOTimeout, "write+read deadline per attempt (0 disables)")
	fs.Int("pool-size", 0, "max concurrent connections (0 = unbounded)")
}

func connOptions() conn.Options {
	opts := conn.DefaultOptions()
	opts.Policy = conn.RetryPolicy{
		MaxAttempts:  viper.GetInt("conn.attempts"),
		InitialDelay: viper.GetDuration("conn.initial-delay"),
		MaxDelay:     viper.GetDuration("conn.max-delay"),
		Multiplier:   viper.GetFloat64("conn.multiplier"),
	}
	opts.DialTimeout = viper.GetDuration("conn.dial-timeout")
	opts.IOTimeout = viper.GetDuration("conn.io-timeout")
	return opts
}

// startMetrics serves /metrics on metrics.addr until ctx is done. It is a no-op
// when the address is empty.
func startMetrics(ctx context.Context) {
	addr := viper.GetString("metrics.addr")
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()
}
