package model

// OpinionSource identifies which classifier produced an Opinion.
type OpinionSource string

const (
	SourceRules OpinionSource = "rules"
	SourceAI    OpinionSource = "ai"
)

// Opinion is the output of one classifier for one case. Immutable once
// produced; the fusion policy reads it but never rewrites it.
type Opinion struct {
	Source      OpinionSource `json:"source"`
	Code        UrgencyCode   `json:"code"`
	Confidence  float64       `json:"confidence"`
	Rationale   string        `json:"rationale"`
	Causes      []string      `json:"causes,omitempty"`
	Instruction string        `json:"instruction,omitempty"`
	// Clamped marks an opinion whose confidence or code needed repair on
	// ingestion. Treated as low-trust by the audit trail.
	Clamped bool `json:"clamped,omitempty"`
}
