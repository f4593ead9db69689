package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/orion-triage/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "orion",
	Short: "Hybrid clinical triage engine",
	Long:  "Classifies patient cases by urgency using protocol rules cross-validated against an AI classifier, with vital-sign overrides, diversion optimization, fairness auditing, and continuous feedback.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
