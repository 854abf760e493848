package main

import (
	"fmt"
	"os"

	"verisurebridge/internal/config"
	"verisurebridge/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "verisure-bridge",
	Short: "Mirror Verisure smart plugs and climate sensors into a local device registry",
	Long: `verisure-bridge polls a Verisure installation, mirrors its smart plugs and
climate sensors as local devices and forwards switch commands back to Verisure.
Without a subcommand it runs the bridge.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBridge,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file (env vars override it)")
	rootCmd.AddCommand(runCmd, overviewCmd, plugCmd)
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	if err := rootCmd.Execute(); err != nil {
		l, logErr := logger.New(logger.Config{Level: "debug", Format: "console"})
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// setup loads and validates the configuration and builds the logger
func setup() (*config.Config, *zap.Logger, error) {
	bootstrap, err := logger.New(logger.Config{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")})
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(configPath, bootstrap)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
