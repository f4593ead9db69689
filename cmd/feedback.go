package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/orion-triage/internal/model"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <decision-id> <actual-code>",
	Short: "Record the clinician-confirmed outcome for a decision",
	Long:  "Records the ground-truth urgency code for a stored decision. The record feeds the retraining buffer; a full buffer triggers a retraining cycle.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		actual, err := model.ParseUrgencyCode(args[1])
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		fr, err := env.Engine.RecordFeedback(ctx, args[0], actual)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(map[string]any{
			"feedback":     fr,
			"buffer_depth": env.Loop.Len(),
		}, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal feedback output")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
}
