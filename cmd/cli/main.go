package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petnica-meteor-group/meteornet-server/pkg/config"
	"github.com/petnica-meteor-group/meteornet-server/pkg/logger"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "meteornet",
	Short: "MeteorNet - Meteor Station Network Server",
	Long: `MeteorNet collects telemetry from remote meteor observation stations,
reconciles it into a station graph and classifies the health of every
station, notifying maintainers when a station degrades.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := logger.Init(loaded.Log); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
