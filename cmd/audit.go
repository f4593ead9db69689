package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/orion-triage/internal/store"
	"github.com/sells-group/orion-triage/internal/vpp"
)

var auditImpactHours int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run the fairness audit and capacity impact report",
	Long:  "Computes per-group classification rates over the configured lookback window, flags disparities, delivers webhook alerts when configured, and summarizes the diversion capacity gained.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		now := time.Now().UTC()

		report, err := env.Auditor.Report(ctx, now)
		if err != nil {
			return err
		}

		alerts := env.Alerter.Evaluate(report)
		sent := env.Alerter.SendAlerts(ctx, alerts)
		if len(alerts) > 0 {
			zap.L().Info("audit: disparity alerts",
				zap.Int("flagged", len(alerts)),
				zap.Int("sent", sent),
			)
		}

		decisions, err := env.Store.ListDecisions(ctx, store.DecisionFilter{
			Since: now.Add(-time.Duration(auditImpactHours) * time.Hour),
			Until: now,
		})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(map[string]any{
			"fairness": report,
			"impact":   vpp.Impact(decisions),
		}, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal audit output")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	auditCmd.Flags().IntVar(&auditImpactHours, "impact-hours", 24, "window for the capacity impact summary")
	rootCmd.AddCommand(auditCmd)
}
