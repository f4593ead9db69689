package model

import "time"

// AlertLevel grades the discordance between the two opinions.
type AlertLevel string

const (
	AlertNone AlertLevel = "none"
	AlertLow  AlertLevel = "low"
	AlertHigh AlertLevel = "high"
)

// Diversion is the optimizer's recommendation attached to a low-acuity
// Decision. It annotates; it never changes the final code.
type Diversion struct {
	Recommended    bool     `json:"recommended"`
	FailedCriteria []string `json:"failed_criteria,omitempty"`
	WaitMinutesMin int      `json:"wait_minutes_min,omitempty"`
	WaitMinutesMax int      `json:"wait_minutes_max,omitempty"`
	// MinutesSaved is the estimated critical-track capacity gained by
	// diverting this one case.
	MinutesSaved float64 `json:"minutes_saved,omitempty"`
}

// Decision is the fused, auditable outcome for one case. Created exactly
// once per case by the fusion policy and immutable thereafter.
type Decision struct {
	ID          string      `json:"id"`
	CaseID      string      `json:"case_id"`
	SubjectHash string      `json:"subject_hash"`
	Complaint   string      `json:"complaint"`
	FinalCode   UrgencyCode `json:"final_code"`
	Category    string      `json:"category"`
	Confidence  float64     `json:"confidence"`

	RuleOpinion Opinion  `json:"rule_opinion"`
	AIOpinion   *Opinion `json:"ai_opinion,omitempty"`
	AIAvailable bool     `json:"ai_available"`

	Concordant       bool       `json:"concordant"`
	Discordance      int        `json:"discordance"`
	AlertLevel       AlertLevel `json:"alert_level"`
	RequiresReview   bool       `json:"requires_review"`
	OverrideFired    bool       `json:"override_fired"`
	EscalationReason string     `json:"escalation_reason,omitempty"`

	Diversion *Diversion `json:"diversion,omitempty"`

	Rationale string `json:"rationale"`

	Demographics *Demographics `json:"demographics,omitempty"`
	LatencyMS    int64         `json:"latency_ms"`
	CreatedAt    time.Time     `json:"created_at"`
}

// FeedbackRecord pairs a past decision with a later-confirmed ground truth.
// Appended once, never mutated, drained in batches at retraining time.
type FeedbackRecord struct {
	ID            string      `json:"id"`
	DecisionID    string      `json:"decision_id"`
	PredictedCode UrgencyCode `json:"predicted_code"`
	ActualCode    UrgencyCode `json:"actual_code"`
	Mismatch      bool        `json:"mismatch"`
	RecordedAt    time.Time   `json:"recorded_at"`
}

// GroupStats holds per-group aggregates for one protected attribute value.
type GroupStats struct {
	Group        string                  `json:"group"`
	Total        int                     `json:"total"`
	CodeRates    map[UrgencyCode]float64 `json:"code_rates"`
	AvgLatencyMS float64                 `json:"avg_latency_ms"`
}

// Disparity flags a rate gap above the audit threshold for one attribute.
type Disparity struct {
	Attribute string      `json:"attribute"`
	Code      UrgencyCode `json:"code"`
	MaxGroup  string      `json:"max_group"`
	MinGroup  string      `json:"min_group"`
	Gap       float64     `json:"gap"`
	Threshold float64     `json:"threshold"`
}

// FairnessReport is the output of one audit run, recomputed from scratch
// over a decision window.
type FairnessReport struct {
	WindowStart time.Time               `json:"window_start"`
	WindowEnd   time.Time               `json:"window_end"`
	Decisions   int                     `json:"decisions"`
	Groups      map[string][]GroupStats `json:"groups"`
	Disparities []Disparity             `json:"disparities"`
	GeneratedAt time.Time               `json:"generated_at"`
}
