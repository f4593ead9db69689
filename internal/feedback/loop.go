// Package feedback implements the continuous-learning loop: a serialized
// buffer of ground-truth-vs-prediction records that triggers a background
// retraining cycle at a volume threshold and decides whether the candidate
// model is deployed or discarded.
package feedback

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orion-triage/internal/config"
	"github.com/sells-group/orion-triage/internal/model"
	"github.com/sells-group/orion-triage/internal/store"
)

// ValidationMetrics summarizes a candidate model's held-out performance.
type ValidationMetrics struct {
	Accuracy    float64 `json:"accuracy"`
	Sensitivity float64 `json:"sensitivity"`
	Specificity float64 `json:"specificity"`
}

// Retrainer delegates model training to the external AI service. This
// loop only decides when a cycle starts and whether its candidate is kept.
type Retrainer interface {
	// Retrain trains a candidate on the batch and returns its held-out
	// validation metrics.
	Retrain(ctx context.Context, records []model.FeedbackRecord) (*ValidationMetrics, error)
	// Deploy promotes the current candidate to serving.
	Deploy(ctx context.Context) error
	// Discard drops the current candidate, keeping the prior model.
	Discard(ctx context.Context) error
}

// CycleOutcome records the result of the most recent retraining cycle.
type CycleOutcome struct {
	Deployed   bool               `json:"deployed"`
	Reason     string             `json:"reason"`
	Metrics    *ValidationMetrics `json:"metrics,omitempty"`
	BatchSize  int                `json:"batch_size"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Loop is the process-scoped feedback accumulator. Appends are serialized
// under one mutex, the threshold check-and-drain is atomic with the append
// that crosses it, and the buffer is cleared only after a deploy decision —
// a failed or discarded cycle keeps every record for the next attempt.
type Loop struct {
	cfg       config.FeedbackConfig
	retrainer Retrainer
	store     store.Store

	mu       sync.Mutex
	buffer   []model.FeedbackRecord
	inFlight bool
	cancel   context.CancelFunc
	last     *CycleOutcome

	wg sync.WaitGroup
}

// NewLoop creates the feedback loop. The store may be nil in tests; when
// set, every record is also persisted for audit before buffering.
func NewLoop(cfg config.FeedbackConfig, retrainer Retrainer, st store.Store) *Loop {
	return &Loop{cfg: cfg, retrainer: retrainer, store: st}
}

// Append records one ground-truth confirmation. When the append crosses
// the volume threshold and no cycle is running, a background retraining
// cycle starts on a snapshot of the buffer.
func (l *Loop) Append(ctx context.Context, fr model.FeedbackRecord) error {
	if fr.RecordedAt.IsZero() {
		fr.RecordedAt = time.Now().UTC()
	}
	fr.Mismatch = fr.PredictedCode != fr.ActualCode

	if l.store != nil {
		if err := l.store.SaveFeedback(ctx, &fr); err != nil {
			return eris.Wrap(err, "feedback: persist record")
		}
	}

	l.mu.Lock()
	l.buffer = append(l.buffer, fr)
	size := len(l.buffer)
	trigger := size >= l.cfg.BufferSize && !l.inFlight && l.retrainer != nil
	var batch []model.FeedbackRecord
	if trigger {
		batch = make([]model.FeedbackRecord, size)
		copy(batch, l.buffer)
		l.inFlight = true
	}
	l.mu.Unlock()

	if trigger {
		l.startCycle(batch)
	}
	return nil
}

// Len returns the current buffer depth.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffer)
}

// LastOutcome returns the most recent cycle result, or nil if none has run.
func (l *Loop) LastOutcome() *CycleOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Cancel aborts a running retraining cycle. Operator action only; the
// aborted cycle counts as discarded and the buffer is kept.
func (l *Loop) Cancel() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until any in-flight cycle finishes. Used at shutdown.
func (l *Loop) Wait() {
	l.wg.Wait()
}

func (l *Loop) startCycle(batch []model.FeedbackRecord) {
	timeout := time.Duration(l.cfg.RetrainTimeoutMin) * time.Minute
	if timeout <= 0 {
		timeout = time.Hour
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	zap.L().Info("feedback: retraining cycle started",
		zap.Int("batch_size", len(batch)),
	)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer cancel()
		l.runCycle(ctx, batch)
	}()
}

func (l *Loop) runCycle(ctx context.Context, batch []model.FeedbackRecord) {
	outcome := &CycleOutcome{BatchSize: len(batch)}

	metrics, err := l.retrainer.Retrain(ctx, batch)
	switch {
	case err != nil:
		outcome.Reason = "retraining failed: " + err.Error()
	case !l.meetsTargets(metrics):
		outcome.Metrics = metrics
		outcome.Reason = "validation targets not met"
	default:
		outcome.Metrics = metrics
		if err := l.retrainer.Deploy(ctx); err != nil {
			outcome.Reason = "deploy failed: " + err.Error()
		} else {
			outcome.Deployed = true
			outcome.Reason = "validation targets met"
		}
	}

	if !outcome.Deployed {
		// Best effort; the prior model stays serving either way.
		if err := l.retrainer.Discard(context.WithoutCancel(ctx)); err != nil {
			zap.L().Warn("feedback: discard candidate", zap.Error(err))
		}
	}

	outcome.FinishedAt = time.Now().UTC()
	l.finishCycle(batch, outcome)
}

// finishCycle clears the drained batch only on deploy. On any other
// outcome the records stay buffered for the next cycle.
func (l *Loop) finishCycle(batch []model.FeedbackRecord, outcome *CycleOutcome) {
	l.mu.Lock()
	if outcome.Deployed {
		// Appends during the cycle land after the snapshot, so the batch
		// is always the buffer's prefix.
		l.buffer = l.buffer[len(batch):]
	}
	l.inFlight = false
	l.cancel = nil
	l.last = outcome
	remaining := len(l.buffer)
	l.mu.Unlock()

	if outcome.Deployed {
		zap.L().Info("feedback: candidate deployed",
			zap.Int("batch_size", outcome.BatchSize),
			zap.Int("buffer_remaining", remaining),
			zap.Float64("accuracy", outcome.Metrics.Accuracy),
			zap.Float64("sensitivity", outcome.Metrics.Sensitivity),
			zap.Float64("specificity", outcome.Metrics.Specificity),
		)
	} else {
		zap.L().Warn("feedback: candidate discarded",
			zap.Int("batch_size", outcome.BatchSize),
			zap.Int("buffer_remaining", remaining),
			zap.String("reason", outcome.Reason),
		)
	}
}

func (l *Loop) meetsTargets(m *ValidationMetrics) bool {
	if m == nil {
		return false
	}
	return m.Accuracy >= l.cfg.MinAccuracy &&
		m.Sensitivity >= l.cfg.MinSensitivity &&
		m.Specificity >= l.cfg.MinSpecificity
}
