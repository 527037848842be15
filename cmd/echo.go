package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sockbench/internal/echo"
	"sockbench/internal/logger"
)

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Run a TCP echo server",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd.Flags(), map[string]string{"echo.addr": "addr", "echo.delay": "delay"})
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := echo.Listen(echo.ServerConfig{
			Addr:  viper.GetString("echo.addr"),
			Delay: viper.GetDuration("echo.delay"),
		})
		if err != nil {
			return err
		}
		startMetrics(ctx)
		err = srv.Run(ctx)
		logger.Info("echo server stopped", "accepted", srv.Accepted(), "echoed", srv.Echoed())
		return err
	},
}

func init() {
	echoCmd.Flags().StringP("addr", "a", ":9000", "listen address")
	echoCmd.Flags().Duration("delay", 0, "delay before each echo")
}
