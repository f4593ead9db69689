// Package fusion combines the rule-based and AI opinions into one
// auditable decision and applies the escalation policy.
package fusion

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/orion-triage/internal/config"
	"github.com/sells-group/orion-triage/internal/model"
	"github.com/sells-group/orion-triage/internal/vitals"
)

// Policy is the decision state machine. It is deterministic: identical
// inputs always produce an identical decision (modulo ID and timestamp),
// which audit replay depends on.
type Policy struct {
	cfg config.FusionConfig
}

// NewPolicy creates a fusion policy with validated configuration.
func NewPolicy(cfg config.FusionConfig) *Policy {
	return &Policy{cfg: cfg}
}

// Fuse merges the rule opinion, the AI opinion (nil when unavailable), and
// the vital-sign override into a single Decision.
func (p *Policy) Fuse(c model.Case, rule model.Opinion, ai *model.Opinion, ov vitals.Override) model.Decision {
	d := model.Decision{
		ID:           uuid.New().String(),
		CaseID:       c.ID,
		SubjectHash:  c.SubjectHash(),
		Complaint:    c.Complaint,
		RuleOpinion:  rule,
		AIOpinion:    ai,
		AIAvailable:  ai != nil,
		Demographics: c.Demographics,
		CreatedAt:    time.Now().UTC(),
	}

	if ai == nil {
		// Rule-only fallback: trivially concordant, no discordance alert.
		d.FinalCode = rule.Code
		d.Confidence = rule.Confidence
		d.Concordant = true
		d.AlertLevel = model.AlertNone
		d.Rationale = rulesOnlyRationale(rule)
	} else {
		p.crossValidate(&d, rule, *ai)
	}

	// The override runs last and can only raise urgency, never lower it.
	if ov.Fired {
		d.OverrideFired = true
		d.EscalationReason = ov.Reason
		d.FinalCode = model.MoreUrgent(d.FinalCode, ov.Code)
		d.RequiresReview = true
		if d.AlertLevel == model.AlertNone {
			d.AlertLevel = model.AlertLow
		}
	}

	d.Category = d.FinalCode.Category()

	zap.L().Info("fusion: decision",
		zap.String("decision_id", d.ID),
		zap.String("final_code", string(d.FinalCode)),
		zap.Bool("concordant", d.Concordant),
		zap.Int("discordance", d.Discordance),
		zap.String("alert_level", string(d.AlertLevel)),
		zap.Bool("requires_review", d.RequiresReview),
		zap.Bool("override_fired", d.OverrideFired),
	)

	return d
}

// crossValidate applies the distance-based discordance policy.
func (p *Policy) crossValidate(d *model.Decision, rule, ai model.Opinion) {
	dist := model.Distance(rule.Code, ai.Code)
	d.Discordance = dist
	blend := p.cfg.RuleWeight*rule.Confidence + p.cfg.AIWeight*ai.Confidence

	switch {
	case dist == 0:
		d.FinalCode = rule.Code
		d.Confidence = clamp01(blend)
		d.Concordant = true
		d.AlertLevel = model.AlertNone

	case dist < p.cfg.ReviewDistance:
		// Minor discordance: escalate to the worse code, never the better.
		d.FinalCode = model.MoreUrgent(rule.Code, ai.Code)
		d.Confidence = clamp01(blend * (1 - p.cfg.DistancePenalty*float64(dist)))
		d.AlertLevel = model.AlertLow

	default:
		// Major discordance: mandatory human review. Both opinions are
		// carried verbatim on the decision for the reviewer.
		d.FinalCode = model.MoreUrgent(rule.Code, ai.Code)
		d.Confidence = clamp01(math.Min(rule.Confidence, ai.Confidence) * p.cfg.MajorDiscordanceFactor)
		d.AlertLevel = model.AlertHigh
		d.RequiresReview = true
	}

	d.Rationale = combinedRationale(rule, ai, d.Concordant, d.FinalCode)
}

// rulesOnlyRationale explains a decision taken without the AI opinion.
func rulesOnlyRationale(rule model.Opinion) string {
	var b strings.Builder
	b.WriteString("Classification based on clinical protocol rules only (AI classifier unavailable).\n")
	fmt.Fprintf(&b, "Rules: code %s, confidence %.0f%%. %s", rule.Code, rule.Confidence*100, rule.Rationale)
	return b.String()
}

// combinedRationale builds the dual-analysis explanation carried on every
// hybrid decision.
func combinedRationale(rule, ai model.Opinion, concordant bool, final model.UrgencyCode) string {
	var b strings.Builder
	b.WriteString("Dual analysis.\n")
	fmt.Fprintf(&b, "Rules: code %s, confidence %.0f%%. %s\n", rule.Code, rule.Confidence*100, rule.Rationale)
	fmt.Fprintf(&b, "AI: code %s, confidence %.0f%%. %s\n", ai.Code, ai.Confidence*100, ai.Rationale)
	if len(ai.Causes) > 0 {
		fmt.Fprintf(&b, "Differentials: %s\n", strings.Join(ai.Causes, ", "))
	}
	if concordant {
		b.WriteString("Both systems agree; high confidence in the classification.")
	} else {
		fmt.Fprintf(&b, "Systems disagree; escalated to %s. Additional medical evaluation recommended.", final)
	}
	return b.String()
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
