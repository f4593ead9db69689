package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/orion-triage/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS decisions (
	id              TEXT PRIMARY KEY,
	case_id         TEXT NOT NULL,
	subject_hash    TEXT NOT NULL,
	final_code      TEXT NOT NULL,
	requires_review INTEGER NOT NULL DEFAULT 0,
	payload         TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS feedback (
	id             TEXT PRIMARY KEY,
	decision_id    TEXT NOT NULL REFERENCES decisions(id),
	predicted_code TEXT NOT NULL,
	actual_code    TEXT NOT NULL,
	mismatch       INTEGER NOT NULL DEFAULT 0,
	recorded_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at);
CREATE INDEX IF NOT EXISTS idx_decisions_final_code ON decisions(final_code);
CREATE INDEX IF NOT EXISTS idx_decisions_case_id ON decisions(case_id);
CREATE INDEX IF NOT EXISTS idx_feedback_decision_id ON feedback(decision_id);
CREATE INDEX IF NOT EXISTS idx_feedback_recorded_at ON feedback(recorded_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveDecision(ctx context.Context, d *model.Decision) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal decision")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, case_id, subject_hash, final_code, requires_review, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.CaseID, d.SubjectHash, string(d.FinalCode), boolToInt(d.RequiresReview), string(payload), d.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert decision")
}

func (s *SQLiteStore) GetDecision(ctx context.Context, decisionID string) (*model.Decision, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM decisions WHERE id = ?`,
		decisionID,
	)

	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("decision not found: %s", decisionID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get decision")
	}

	var d model.Decision
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal decision")
	}
	return &d, nil
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.Decision, error) {
	query := `SELECT payload FROM decisions WHERE 1=1`
	var args []any

	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, filter.Until.UTC())
	}
	if filter.Code != "" {
		query += ` AND final_code = ?`
		args = append(args, string(filter.Code))
	}
	if filter.ReviewOnly {
		query += ` AND requires_review = 1`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list decisions")
	}
	defer rows.Close()

	var decisions []model.Decision
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision")
		}
		var d model.Decision
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal decision")
		}
		decisions = append(decisions, d)
	}
	return decisions, eris.Wrap(rows.Err(), "sqlite: list decisions iterate")
}

func (s *SQLiteStore) SaveFeedback(ctx context.Context, fr *model.FeedbackRecord) error {
	if fr.ID == "" {
		fr.ID = uuid.New().String()
	}
	if fr.RecordedAt.IsZero() {
		fr.RecordedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, decision_id, predicted_code, actual_code, mismatch, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		fr.ID, fr.DecisionID, string(fr.PredictedCode), string(fr.ActualCode), boolToInt(fr.Mismatch), fr.RecordedAt,
	)
	return eris.Wrap(err, "sqlite: insert feedback")
}

func (s *SQLiteStore) ListFeedback(ctx context.Context, since time.Time, limit int) ([]model.FeedbackRecord, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, decision_id, predicted_code, actual_code, mismatch, recorded_at
		 FROM feedback WHERE recorded_at >= ? ORDER BY recorded_at DESC LIMIT ?`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feedback")
	}
	defer rows.Close()

	var records []model.FeedbackRecord
	for rows.Next() {
		var fr model.FeedbackRecord
		var mismatch int
		if err := rows.Scan(&fr.ID, &fr.DecisionID, &fr.PredictedCode, &fr.ActualCode, &mismatch, &fr.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feedback")
		}
		fr.Mismatch = mismatch != 0
		records = append(records, fr)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list feedback iterate")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
