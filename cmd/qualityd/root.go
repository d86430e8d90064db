package main

import (
	"fmt"

	"telemed/pkg/config"
	"telemed/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// version is stamped into archives.
const version = "0.3.0"

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:          "qualityd",
		Short:        "qualityd monitors and adapts WebRTC call quality",
		Long:         `Connection quality monitoring, scoring and video adaptation for telemedicine calls`,
		Version:      version,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "configs/config.yaml", "config file (defaults apply when it does not exist)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newArchiveCmd())
}

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return zapLogger, nil
}
