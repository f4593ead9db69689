package feedback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/orion-triage/internal/config"
	"github.com/sells-group/orion-triage/internal/model"
)

type fakeRetrainer struct {
	mu        sync.Mutex
	metrics   *ValidationMetrics
	err       error
	deployErr error
	block     chan struct{}

	retrainCalls int
	deployCalls  int
	discardCalls int
	gotBatch     []model.FeedbackRecord
}

func (f *fakeRetrainer) Retrain(ctx context.Context, records []model.FeedbackRecord) (*ValidationMetrics, error) {
	f.mu.Lock()
	f.retrainCalls++
	f.gotBatch = records
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.metrics, nil
}

func (f *fakeRetrainer) Deploy(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deployCalls++
	return f.deployErr
}

func (f *fakeRetrainer) Discard(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discardCalls++
	return nil
}

func testFeedbackConfig(bufferSize int) config.FeedbackConfig {
	return config.FeedbackConfig{
		BufferSize:        bufferSize,
		MinAccuracy:       0.85,
		MinSensitivity:    0.90,
		MinSpecificity:    0.80,
		RetrainTimeoutMin: 1,
	}
}

func record(predicted, actual model.UrgencyCode) model.FeedbackRecord {
	return model.FeedbackRecord{
		DecisionID:    "dec-1",
		PredictedCode: predicted,
		ActualCode:    actual,
	}
}

func fill(t *testing.T, l *Loop, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, l.Append(context.Background(), record(model.CodeUrgency, model.CodeUrgency)))
	}
}

func TestLoopAppendSetsMismatch(t *testing.T) {
	l := NewLoop(testFeedbackConfig(100), nil, nil)

	require.NoError(t, l.Append(context.Background(), record(model.CodeUrgency, model.CodeEmergency)))
	require.NoError(t, l.Append(context.Background(), record(model.CodeConsult, model.CodeConsult)))
	assert.Equal(t, 2, l.Len())
}

func TestLoopTriggersAtThresholdAndDeploys(t *testing.T) {
	rt := &fakeRetrainer{metrics: &ValidationMetrics{Accuracy: 0.9, Sensitivity: 0.95, Specificity: 0.85}}
	l := NewLoop(testFeedbackConfig(3), rt, nil)

	fill(t, l, 3)
	l.Wait()

	assert.Equal(t, 1, rt.retrainCalls)
	assert.Len(t, rt.gotBatch, 3)
	assert.Equal(t, 1, rt.deployCalls)
	assert.Equal(t, 0, rt.discardCalls)

	// Deploy clears the drained batch.
	assert.Equal(t, 0, l.Len())

	outcome := l.LastOutcome()
	require.NotNil(t, outcome)
	assert.True(t, outcome.Deployed)
	assert.Equal(t, 3, outcome.BatchSize)
}

func TestLoopKeepsBufferWhenTargetsNotMet(t *testing.T) {
	rt := &fakeRetrainer{metrics: &ValidationMetrics{Accuracy: 0.80, Sensitivity: 0.95, Specificity: 0.85}}
	l := NewLoop(testFeedbackConfig(3), rt, nil)

	fill(t, l, 3)
	l.Wait()

	assert.Equal(t, 1, rt.retrainCalls)
	assert.Equal(t, 0, rt.deployCalls)
	assert.Equal(t, 1, rt.discardCalls)

	// Discarded cycle keeps every record for the next attempt.
	assert.Equal(t, 3, l.Len())

	outcome := l.LastOutcome()
	require.NotNil(t, outcome)
	assert.False(t, outcome.Deployed)
	assert.Equal(t, "validation targets not met", outcome.Reason)
}

func TestLoopKeepsBufferOnRetrainError(t *testing.T) {
	rt := &fakeRetrainer{err: eris.New("training service down")}
	l := NewLoop(testFeedbackConfig(2), rt, nil)

	fill(t, l, 2)
	l.Wait()

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 1, rt.discardCalls)
	outcome := l.LastOutcome()
	require.NotNil(t, outcome)
	assert.False(t, outcome.Deployed)
	assert.Contains(t, outcome.Reason, "retraining failed")
}

func TestLoopNoDoubleTrigger(t *testing.T) {
	rt := &fakeRetrainer{
		metrics: &ValidationMetrics{Accuracy: 0.9, Sensitivity: 0.95, Specificity: 0.85},
		block:   make(chan struct{}),
	}
	l := NewLoop(testFeedbackConfig(2), rt, nil)

	// Crossing the threshold starts one cycle; further appends while it
	// runs must not start another.
	fill(t, l, 2)
	fill(t, l, 2)

	// The cycle runs on a goroutine; wait for it to reach Retrain before
	// checking that only one cycle was started.
	require.Eventually(t, func() bool {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		return rt.retrainCalls > 0
	}, time.Second, time.Millisecond)
	rt.mu.Lock()
	calls := rt.retrainCalls
	rt.mu.Unlock()
	assert.Equal(t, 1, calls)

	close(rt.block)
	l.Wait()

	// Only the snapshot batch is cleared; appends during the cycle remain.
	assert.Equal(t, 2, l.Len())
}

func TestLoopOperatorCancel(t *testing.T) {
	rt := &fakeRetrainer{
		metrics: &ValidationMetrics{Accuracy: 0.9, Sensitivity: 0.95, Specificity: 0.85},
		block:   make(chan struct{}),
	}
	l := NewLoop(testFeedbackConfig(2), rt, nil)

	fill(t, l, 2)
	l.Cancel()
	l.Wait()

	assert.Equal(t, 0, rt.deployCalls)
	assert.Equal(t, 2, l.Len())
	outcome := l.LastOutcome()
	require.NotNil(t, outcome)
	assert.False(t, outcome.Deployed)
}

func TestLoopDeployFailureKeepsBuffer(t *testing.T) {
	rt := &fakeRetrainer{
		metrics:   &ValidationMetrics{Accuracy: 0.9, Sensitivity: 0.95, Specificity: 0.85},
		deployErr: eris.New("registry unreachable"),
	}
	l := NewLoop(testFeedbackConfig(2), rt, nil)

	fill(t, l, 2)
	l.Wait()

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 1, rt.discardCalls)
}

func TestLoopConcurrentAppends(t *testing.T) {
	l := NewLoop(testFeedbackConfig(1000), nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = l.Append(context.Background(), record(model.CodeUrgency, model.CodeUrgency))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, l.Len())
}

func TestLoopAppendStampsRecordedAt(t *testing.T) {
	l := NewLoop(testFeedbackConfig(100), nil, nil)
	before := time.Now().UTC()

	fr := record(model.CodeUrgency, model.CodeEmergency)
	require.NoError(t, l.Append(context.Background(), fr))

	l.mu.Lock()
	stored := l.buffer[0]
	l.mu.Unlock()
	assert.True(t, stored.Mismatch)
	assert.False(t, stored.RecordedAt.Before(before))
}
