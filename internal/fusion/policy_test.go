package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/orion-triage/internal/config"
	"github.com/sells-group/orion-triage/internal/model"
	"github.com/sells-group/orion-triage/internal/vitals"
)

func testPolicy() *Policy {
	return NewPolicy(config.FusionConfig{
		RuleWeight:             0.5,
		AIWeight:               0.5,
		DistancePenalty:        0.1,
		MajorDiscordanceFactor: 0.7,
		ReviewDistance:         2,
	})
}

func opinion(source model.OpinionSource, code model.UrgencyCode, conf float64) model.Opinion {
	return model.Opinion{Source: source, Code: code, Confidence: conf, Rationale: "r"}
}

func testCase() model.Case {
	return model.Case{
		ID:         "case-1",
		Complaint:  "dolor toracico",
		PatientRef: "MRN-1",
		ReceivedAt: time.Now().UTC(),
	}
}

func TestFuseConcordant(t *testing.T) {
	rule := opinion(model.SourceRules, model.CodeEmergency, 0.9)
	ai := opinion(model.SourceAI, model.CodeEmergency, 0.95)

	d := testPolicy().Fuse(testCase(), rule, &ai, vitals.Override{})

	assert.Equal(t, model.CodeEmergency, d.FinalCode)
	assert.Equal(t, "EMERGENCY", d.Category)
	assert.InDelta(t, 0.925, d.Confidence, 1e-9)
	assert.True(t, d.Concordant)
	assert.Equal(t, 0, d.Discordance)
	assert.Equal(t, model.AlertNone, d.AlertLevel)
	assert.False(t, d.RequiresReview)
	assert.True(t, d.AIAvailable)
	assert.NotEmpty(t, d.ID)
	assert.NotEmpty(t, d.SubjectHash)
}

func TestFuseMinorDiscordanceEscalates(t *testing.T) {
	rule := opinion(model.SourceRules, model.CodeUrgency, 0.8)
	ai := opinion(model.SourceAI, model.CodeEmergency, 0.9)

	d := testPolicy().Fuse(testCase(), rule, &ai, vitals.Override{})

	assert.Equal(t, model.CodeEmergency, d.FinalCode, "escalates to the worse code")
	assert.Equal(t, 1, d.Discordance)
	assert.InDelta(t, 0.85*0.9, d.Confidence, 1e-9)
	assert.False(t, d.Concordant)
	assert.Equal(t, model.AlertLow, d.AlertLevel)
	assert.False(t, d.RequiresReview)
}

func TestFuseMinorDiscordanceNeverDowngrades(t *testing.T) {
	rule := opinion(model.SourceRules, model.CodeEmergency, 0.9)
	ai := opinion(model.SourceAI, model.CodeUrgency, 0.8)

	d := testPolicy().Fuse(testCase(), rule, &ai, vitals.Override{})
	assert.Equal(t, model.CodeEmergency, d.FinalCode)
}

func TestFuseMajorDiscordance(t *testing.T) {
	rule := opinion(model.SourceRules, model.CodeConsult, 0.8)
	ai := opinion(model.SourceAI, model.CodeEmergency, 0.6)

	d := testPolicy().Fuse(testCase(), rule, &ai, vitals.Override{})

	assert.Equal(t, model.CodeEmergency, d.FinalCode)
	assert.Equal(t, 3, d.Discordance)
	assert.InDelta(t, 0.6*0.7, d.Confidence, 1e-9, "min confidence scaled by the discordance factor")
	assert.Equal(t, model.AlertHigh, d.AlertLevel)
	assert.True(t, d.RequiresReview)
	assert.Contains(t, d.Rationale, "Systems disagree")
}

func TestFuseRuleOnly(t *testing.T) {
	rule := opinion(model.SourceRules, model.CodeUrgency, 0.8)

	d := testPolicy().Fuse(testCase(), rule, nil, vitals.Override{})

	assert.Equal(t, model.CodeUrgency, d.FinalCode)
	assert.Equal(t, 0.8, d.Confidence)
	assert.True(t, d.Concordant)
	assert.False(t, d.AIAvailable)
	assert.Nil(t, d.AIOpinion)
	assert.Equal(t, model.AlertNone, d.AlertLevel)
	assert.Contains(t, d.Rationale, "AI classifier unavailable")
}

func TestFuseOverrideEscalatesAfterFusion(t *testing.T) {
	rule := opinion(model.SourceRules, model.CodeConsult, 0.8)
	ai := opinion(model.SourceAI, model.CodeConsult, 0.8)
	ov := vitals.Override{Fired: true, Code: model.CodeEmergency, Reason: "vital-sign override: hypoxia"}

	d := testPolicy().Fuse(testCase(), rule, &ai, ov)

	assert.Equal(t, model.CodeEmergency, d.FinalCode)
	assert.True(t, d.OverrideFired)
	assert.True(t, d.RequiresReview)
	assert.Equal(t, model.AlertLow, d.AlertLevel)
	assert.Contains(t, d.EscalationReason, "hypoxia")
	// Concordance reflects the opinions, not the override.
	assert.True(t, d.Concordant)
}

func TestFuseOverrideNeverDowngrades(t *testing.T) {
	rule := opinion(model.SourceRules, model.CodeEmergency, 0.9)
	ov := vitals.Override{Fired: true, Code: model.CodeEmergency, Reason: "tachycardia"}

	d := testPolicy().Fuse(testCase(), rule, nil, ov)
	assert.Equal(t, model.CodeEmergency, d.FinalCode)
}

func TestFuseOverrideKeepsHighAlert(t *testing.T) {
	rule := opinion(model.SourceRules, model.CodeConsult, 0.8)
	ai := opinion(model.SourceAI, model.CodeEmergency, 0.6)
	ov := vitals.Override{Fired: true, Code: model.CodeEmergency, Reason: "hypoxia"}

	d := testPolicy().Fuse(testCase(), rule, &ai, ov)
	assert.Equal(t, model.AlertHigh, d.AlertLevel, "override must not dilute a discordance alert")
}

func TestFuseConfidenceClamped(t *testing.T) {
	p := NewPolicy(config.FusionConfig{
		RuleWeight: 0.5, AIWeight: 0.5,
		DistancePenalty: 0.1, MajorDiscordanceFactor: 0.7, ReviewDistance: 2,
	})
	rule := opinion(model.SourceRules, model.CodeEmergency, 1.0)
	ai := opinion(model.SourceAI, model.CodeEmergency, 1.0)

	d := p.Fuse(testCase(), rule, &ai, vitals.Override{})
	require.LessOrEqual(t, d.Confidence, 1.0)
}

func TestFuseCarriesOpinionsVerbatim(t *testing.T) {
	rule := opinion(model.SourceRules, model.CodeConsult, 0.8)
	ai := opinion(model.SourceAI, model.CodeEmergency, 0.6)
	ai.Causes = []string{"sepsis"}

	d := testPolicy().Fuse(testCase(), rule, &ai, vitals.Override{})

	assert.Equal(t, rule, d.RuleOpinion)
	require.NotNil(t, d.AIOpinion)
	assert.Equal(t, ai, *d.AIOpinion)
	assert.Contains(t, d.Rationale, "sepsis")
}
