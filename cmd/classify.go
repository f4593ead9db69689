package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/orion-triage/internal/model"
)

var (
	classifyFile          string
	classifyComplaint     string
	classifyAnswers       map[string]string
	classifyWaitTolerance int
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a single case and print the decision",
	Long:  "Runs one case through the full pipeline: protocol rules, AI cross-validation, vital-sign override, fusion, and diversion evaluation. Reads the case bundle from --file, or builds one from --complaint and --answer flags.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		c, err := buildCase()
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := env.Engine.Triage(ctx, c)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal decision")
		}
		fmt.Println(string(out))
		return nil
	},
}

// buildCase assembles the case bundle from flags or a JSON file. The file
// wins when both are given.
func buildCase() (model.Case, error) {
	if classifyFile != "" {
		data, err := os.ReadFile(classifyFile)
		if err != nil {
			return model.Case{}, eris.Wrapf(err, "read case file %s", classifyFile)
		}
		var c model.Case
		if err := json.Unmarshal(data, &c); err != nil {
			return model.Case{}, eris.Wrapf(err, "parse case file %s", classifyFile)
		}
		return c, nil
	}

	if classifyComplaint == "" {
		return model.Case{}, eris.New("either --file or --complaint is required")
	}

	return model.Case{
		Complaint:         classifyComplaint,
		Answers:           classifyAnswers,
		WaitToleranceMins: classifyWaitTolerance,
		ReceivedAt:        time.Now().UTC(),
	}, nil
}

func init() {
	classifyCmd.Flags().StringVarP(&classifyFile, "file", "f", "", "JSON file with the full case bundle")
	classifyCmd.Flags().StringVarP(&classifyComplaint, "complaint", "c", "", "chief complaint text")
	classifyCmd.Flags().StringToStringVarP(&classifyAnswers, "answer", "a", nil, "intake answer as question_id=value (repeatable)")
	classifyCmd.Flags().IntVar(&classifyWaitTolerance, "wait-tolerance", 0, "patient wait tolerance in minutes")
	rootCmd.AddCommand(classifyCmd)
}
