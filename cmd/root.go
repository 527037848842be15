package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sockbench/internal/banner"
	"sockbench/internal/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sockbench",
	Short: "sockbench - rate-paced load runs against socket endpoints",
	Long: `
sockbench drives a fixed number of requests per second at a text-over-TCP
endpoint, either directly over a pool of retrying connections or through its
HTTP gateway, and reports latency and success rate.

Commands:
  run      issue a load run (headless, or --tui for the dashboard)
  serve    run the HTTP gateway in front of a socket backend
  echo     run a TCP echo server to test against
  history  list recorded runs`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configureLogging()
	},
}

func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(runCmd, serveCmd, echoCmd, historyCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sockbench.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"log.level":    "log-level",
		"log.format":   "log-format",
		"metrics.addr": "metrics-addr",
	})
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".sockbench")
		}
	}

	viper.SetEnvPrefix("SOCKBENCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
		}
	}
}

// configureLogging layers the log.* keys over LOG_LEVEL / LOG_FORMAT.
func configureLogging() error {
	cfg := logger.LoadConfig()

	if viper.IsSet("log.level") || os.Getenv("LOG_LEVEL") == "" {
		level, ok := logger.ParseLevel(viper.GetString("log.level"))
		if !ok {
			return fmt.Errorf("invalid log level %q", viper.GetString("log.level"))
		}
		cfg.Level = level
	}
	if viper.IsSet("log.format") || os.Getenv("LOG_FORMAT") == "" {
		switch f := viper.GetString("log.format"); f {
		case "text", "json":
			cfg.Format = f
		default:
			return fmt.Errorf("invalid log format %q", f)
		}
	}

	logger.Configure(cfg)
	return nil
}
