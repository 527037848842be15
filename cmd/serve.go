package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"sockbench/internal/conn"
	"sockbench/internal/echo"
	"sockbench/internal/gateway"
	"sockbench/internal/logger"
	"sockbench/internal/pool"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway in front of a socket backend",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd.Flags(), map[string]string{
			"serve.addr":    "addr",
			"serve.backend": "backend",
			"serve.echo":    "echo",
		})
		bindFlags(cmd.Flags(), connKeys)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		backend := viper.GetString("serve.backend")
		g, ctx := errgroup.WithContext(ctx)

		if viper.GetBool("serve.echo") {
			srv, err := echo.Listen(echo.ServerConfig{Addr: backend})
			if err != nil {
				return fmt.Errorf("start echo backend: %w", err)
			}
			backend = srv.Addr()
			g.Go(func() error { return srv.Run(ctx) })
		}

		ep, err := conn.ParseEndpoint(backend)
		if err != nil {
			return err
		}
		p := pool.NewForEndpoint(ep, connOptions(), pool.Config{MaxSize: viper.GetInt("pool.size")})
		defer p.Close()

		gw := &gateway.Server{
			Addr:    viper.GetString("serve.addr"),
			Handler: gateway.NewHandler(p, nil),
		}
		g.Go(func() error { return gw.Run(ctx) })
		startMetrics(ctx)

		logger.Info("gateway started", "addr", gw.Addr, "backend", ep.String())
		return g.Wait()
	},
}

func init() {
	fs := serveCmd.Flags()
	fs.String("addr", ":8080", "gateway listen address")
	fs.String("backend", "127.0.0.1:9000", "socket backend host:port")
	fs.Bool("echo", false, "also run an in-process echo server as the backend")
	addConnFlags(fs)
}
