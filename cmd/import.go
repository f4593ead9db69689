package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/orion-triage/internal/db"
	"github.com/sells-group/orion-triage/internal/model"
	"github.com/sells-group/orion-triage/internal/store"
)

var (
	importFile      string
	importBatchSize int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load historical decisions from a JSON file",
	Long:  "Loads an exported decision archive into the store so the fairness audit and impact reports have history to work from. On postgres the load is an idempotent bulk upsert; re-running over an overlapping archive is safe.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(importFile)
		if err != nil {
			return eris.Wrapf(err, "read archive %s", importFile)
		}
		var decisions []model.Decision
		if err := json.Unmarshal(data, &decisions); err != nil {
			return eris.Wrapf(err, "parse archive %s", importFile)
		}
		if len(decisions) == 0 {
			zap.L().Warn("archive is empty", zap.String("file", importFile))
			return nil
		}

		for i := range decisions {
			if decisions[i].ID == "" {
				decisions[i].ID = uuid.New().String()
			}
			if decisions[i].CreatedAt.IsZero() {
				decisions[i].CreatedAt = time.Now().UTC()
			}
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		var loaded int64
		if pg, ok := st.(*store.PostgresStore); ok {
			loaded, err = importPostgres(ctx, pg, decisions)
		} else {
			loaded, err = importSequential(ctx, st, decisions)
		}
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.Int64("loaded", loaded),
		)
		return nil
	},
}

// importPostgres bulk-upserts decisions in batches keyed on the decision ID.
func importPostgres(ctx context.Context, pg *store.PostgresStore, decisions []model.Decision) (int64, error) {
	upsertCfg := db.UpsertConfig{
		Table:        "decisions",
		Columns:      []string{"id", "case_id", "subject_hash", "final_code", "requires_review", "payload", "created_at"},
		ConflictKeys: []string{"id"},
	}

	var total int64
	for start := 0; start < len(decisions); start += importBatchSize {
		end := start + importBatchSize
		if end > len(decisions) {
			end = len(decisions)
		}

		rows := make([][]any, 0, end-start)
		for _, d := range decisions[start:end] {
			payload, err := json.Marshal(d)
			if err != nil {
				return total, eris.Wrapf(err, "marshal decision %s", d.ID)
			}
			rows = append(rows, []any{
				d.ID, d.CaseID, d.SubjectHash, string(d.FinalCode), d.RequiresReview, payload, d.CreatedAt,
			})
		}

		n, err := db.BulkUpsert(ctx, pg.Pool(), upsertCfg, rows)
		if err != nil {
			return total, err
		}
		total += n

		zap.L().Debug("import batch loaded",
			zap.Int("batch_start", start),
			zap.Int64("rows", n),
		)
	}
	return total, nil
}

// importSequential loads one decision at a time for backends without a
// bulk path.
func importSequential(ctx context.Context, st store.Store, decisions []model.Decision) (int64, error) {
	var total int64
	for i := range decisions {
		if err := st.SaveDecision(ctx, &decisions[i]); err != nil {
			return total, eris.Wrapf(err, "save decision %s", decisions[i].ID)
		}
		total++
	}
	return total, nil
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "JSON archive of decisions (required)")
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 500, "rows per bulk upsert batch")
	importCmd.MarkFlagRequired("file") //nolint:errcheck
	rootCmd.AddCommand(importCmd)
}
