// Package cmd holds the docrag command line: serve, migrate, sweep and token.
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"docrag/internal/config"
)

var envFile string

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "docrag",
		Short:         "Scope-aware document retrieval service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env.dev", "dotenv file loaded before reading the environment")
	root.AddCommand(serveCMD(), migrateCMD(), sweepCMD(), tokenCMD())
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRoot().Execute(); err != nil {
		logrus.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies the logging settings.
func loadConfig() (*config.Config, error) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(cfg.Level())
	return cfg, nil
}
