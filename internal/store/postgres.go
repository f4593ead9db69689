package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/orion-triage/internal/db"
	"github.com/sells-group/orion-triage/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hot path: one insert and one lookup per triaged case.
var preparedStatements = map[string]string{
	"insert_decision": `INSERT INTO decisions (id, case_id, subject_hash, final_code, requires_review, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"get_decision":    `SELECT payload FROM decisions WHERE id = $1`,
	"insert_feedback": `INSERT INTO feedback (id, decision_id, predicted_code, actual_code, mismatch, recorded_at) VALUES ($1, $2, $3, $4, $5, $6)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests and the
// historical import, which share one pool across subsystems.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., bulk decision import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS decisions (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	case_id         TEXT NOT NULL,
	subject_hash    TEXT NOT NULL,
	final_code      TEXT NOT NULL,
	requires_review BOOLEAN NOT NULL DEFAULT false,
	payload         JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS feedback (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	decision_id    TEXT NOT NULL REFERENCES decisions(id),
	predicted_code TEXT NOT NULL,
	actual_code    TEXT NOT NULL,
	mismatch       BOOLEAN NOT NULL DEFAULT false,
	recorded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at);
CREATE INDEX IF NOT EXISTS idx_decisions_final_code ON decisions(final_code);
CREATE INDEX IF NOT EXISTS idx_decisions_case_id ON decisions(case_id);
CREATE INDEX IF NOT EXISTS idx_decisions_code_created ON decisions(final_code, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_feedback_decision_id ON feedback(decision_id);
CREATE INDEX IF NOT EXISTS idx_feedback_recorded_at ON feedback(recorded_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveDecision(ctx context.Context, d *model.Decision) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal decision")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO decisions (id, case_id, subject_hash, final_code, requires_review, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.CaseID, d.SubjectHash, string(d.FinalCode), d.RequiresReview, payload, d.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert decision")
}

func (s *PostgresStore) GetDecision(ctx context.Context, decisionID string) (*model.Decision, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM decisions WHERE id = $1`,
		decisionID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("decision not found: %s", decisionID)
		}
		return nil, eris.Wrapf(err, "postgres: get decision %s", decisionID)
	}

	var d model.Decision
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal decision")
	}
	return &d, nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.Decision, error) {
	query := `SELECT payload FROM decisions WHERE true`
	args := []any{}
	argIdx := 1

	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	if !filter.Until.IsZero() {
		query += fmt.Sprintf(` AND created_at < $%d`, argIdx)
		args = append(args, filter.Until.UTC())
		argIdx++
	}
	if filter.Code != "" {
		query += fmt.Sprintf(` AND final_code = $%d`, argIdx)
		args = append(args, string(filter.Code))
		argIdx++
	}
	if filter.ReviewOnly {
		query += ` AND requires_review`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list decisions")
	}
	defer rows.Close()

	var decisions []model.Decision
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		var d model.Decision
		if err := json.Unmarshal(payload, &d); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal decision")
		}
		decisions = append(decisions, d)
	}
	return decisions, eris.Wrap(rows.Err(), "postgres: list decisions iterate")
}

func (s *PostgresStore) SaveFeedback(ctx context.Context, fr *model.FeedbackRecord) error {
	if fr.ID == "" {
		fr.ID = uuid.New().String()
	}
	if fr.RecordedAt.IsZero() {
		fr.RecordedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO feedback (id, decision_id, predicted_code, actual_code, mismatch, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		fr.ID, fr.DecisionID, string(fr.PredictedCode), string(fr.ActualCode), fr.Mismatch, fr.RecordedAt,
	)
	return eris.Wrap(err, "postgres: insert feedback")
}

func (s *PostgresStore) ListFeedback(ctx context.Context, since time.Time, limit int) ([]model.FeedbackRecord, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, decision_id, predicted_code, actual_code, mismatch, recorded_at
		 FROM feedback WHERE recorded_at >= $1 ORDER BY recorded_at DESC LIMIT $2`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feedback")
	}
	defer rows.Close()

	var records []model.FeedbackRecord
	for rows.Next() {
		var fr model.FeedbackRecord
		if err := rows.Scan(&fr.ID, &fr.DecisionID, &fr.PredictedCode, &fr.ActualCode, &fr.Mismatch, &fr.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback")
		}
		records = append(records, fr)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list feedback iterate")
}
