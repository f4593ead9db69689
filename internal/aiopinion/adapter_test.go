package aiopinion

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/orion-triage/internal/config"
	"github.com/sells-group/orion-triage/internal/model"
)

type fakeClassifier struct {
	resp  *RawOpinion
	err   error
	calls int
	delay time.Duration
}

func (f *fakeClassifier) Classify(ctx context.Context, req Request) (*RawOpinion, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func testAIConfig() config.AIConfig {
	return config.AIConfig{
		Provider:    "medgemma",
		TimeoutSecs: 2,
		RatePerSec:  100,
		RateBurst:   100,
	}
}

func TestAdapterOpinionSuccess(t *testing.T) {
	fake := &fakeClassifier{resp: &RawOpinion{
		Code:          "D1",
		Confidence:    0.92,
		Reasoning:     "chest pain with radiation",
		Differentials: []string{"acute coronary syndrome"},
	}}
	adapter := NewAdapter(fake, testAIConfig())

	op, err := adapter.Opinion(context.Background(), model.Case{ID: "case-1", Complaint: "dolor toracico"})
	require.NoError(t, err)
	require.NotNil(t, op)

	assert.Equal(t, model.SourceAI, op.Source)
	assert.Equal(t, model.CodeEmergency, op.Code)
	assert.InDelta(t, 0.92, op.Confidence, 1e-9)
	assert.Equal(t, "chest pain with radiation", op.Rationale)
	assert.Equal(t, []string{"acute coronary syndrome"}, op.Causes)
	assert.False(t, op.Clamped)
}

func TestAdapterOpinionInvalidCodeIsUnavailable(t *testing.T) {
	fake := &fakeClassifier{resp: &RawOpinion{Code: "D9", Confidence: 0.8}}
	adapter := NewAdapter(fake, testAIConfig())

	op, err := adapter.Opinion(context.Background(), model.Case{ID: "case-2"})
	require.Error(t, err)
	assert.Nil(t, op)
	assert.True(t, IsUnavailable(err))
}

func TestAdapterOpinionClampsConfidence(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{name: "above one", in: 1.4, want: 1.0},
		{name: "below zero", in: -0.2, want: 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeClassifier{resp: &RawOpinion{Code: "D2", Confidence: tt.in}}
			adapter := NewAdapter(fake, testAIConfig())

			op, err := adapter.Opinion(context.Background(), model.Case{ID: "case-3"})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, op.Confidence, 1e-9)
			assert.True(t, op.Clamped)
		})
	}
}

func TestAdapterOpinionTransportErrorIsUnavailable(t *testing.T) {
	fake := &fakeClassifier{err: eris.New("connection refused")}
	adapter := NewAdapter(fake, testAIConfig())

	op, err := adapter.Opinion(context.Background(), model.Case{ID: "case-4"})
	require.Error(t, err)
	assert.Nil(t, op)
	assert.True(t, IsUnavailable(err))
}

func TestAdapterOpinionTimeoutIsUnavailable(t *testing.T) {
	cfg := testAIConfig()
	cfg.TimeoutSecs = 1
	fake := &fakeClassifier{
		resp:  &RawOpinion{Code: "D2", Confidence: 0.7},
		delay: 2 * time.Second,
	}
	adapter := NewAdapter(fake, cfg)

	start := time.Now()
	op, err := adapter.Opinion(context.Background(), model.Case{ID: "case-5"})
	require.Error(t, err)
	assert.Nil(t, op)
	assert.True(t, IsUnavailable(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAdapterNilClassifierIsUnavailable(t *testing.T) {
	adapter := &Adapter{}
	op, err := adapter.Opinion(context.Background(), model.Case{ID: "case-6"})
	require.Error(t, err)
	assert.Nil(t, op)
	assert.True(t, IsUnavailable(err))
}

func TestBuildCaseTextIncludesSections(t *testing.T) {
	hr := 130
	spo2 := 88.0
	audio := 0.75
	text := buildCaseText(Request{
		Complaint: "difficulty breathing",
		Answers:   map[string]string{"onset_sudden": "si"},
		Vitals:    &model.VitalSigns{HeartRate: &hr, OxygenSaturation: &spo2},
		Features:  &model.MultimodalFeatures{AudioUrgencyScore: &audio},
	})

	assert.Contains(t, text, "Chief complaint: difficulty breathing")
	assert.Contains(t, text, "onset_sudden: si")
	assert.Contains(t, text, "heart_rate: 130")
	assert.Contains(t, text, "oxygen_saturation: 88")
	assert.Contains(t, text, "audio_urgency_score: 0.75")
}

func TestParseClassifyJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "bare object",
			in:   `{"code":"D1","confidence":0.9,"reasoning":"x"}`,
			want: "D1",
		},
		{
			name: "markdown fenced",
			in:   "```json\n{\"code\":\"D7\",\"confidence\":0.6}\n```",
			want: "D7",
		},
		{
			name: "prose wrapped",
			in:   "Here is the classification: {\"code\":\"D3\",\"confidence\":0.5} as requested.",
			want: "D3",
		},
		{
			name:    "no json",
			in:      "I cannot classify this case.",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseClassifyJSON(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Code)
		})
	}
}

func TestVitalsMapSkipsMissingReadings(t *testing.T) {
	assert.Nil(t, vitalsMap(nil))
	assert.Nil(t, vitalsMap(&model.VitalSigns{}))

	sbp := 85
	m := vitalsMap(&model.VitalSigns{SystolicBP: &sbp})
	require.Len(t, m, 1)
	assert.Equal(t, 85.0, m["systolic_bp"])
}
