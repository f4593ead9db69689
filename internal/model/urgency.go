package model

import "github.com/rotisserie/eris"

// UrgencyCode is one of the fixed triage categories. The set and its
// ordering are frozen: reordering is a data migration, not a config change.
type UrgencyCode string

const (
	// CodeEmergency is immediate life risk — attention in under 5 minutes.
	CodeEmergency UrgencyCode = "D1"
	// CodeUrgency is a serious condition — attention in under 30 minutes.
	CodeUrgency UrgencyCode = "D2"
	// CodeLowComplexity requires care but carries no immediate risk.
	CodeLowComplexity UrgencyCode = "D7"
	// CodeConsult needs medical evaluation but can wait.
	CodeConsult UrgencyCode = "D3"
)

// codePriority defines the total order: higher value = more urgent.
// There are no ties.
var codePriority = map[UrgencyCode]int{
	CodeEmergency:     4,
	CodeUrgency:       3,
	CodeLowComplexity: 2,
	CodeConsult:       1,
}

// codeCategory holds the human-readable category per code.
var codeCategory = map[UrgencyCode]string{
	CodeEmergency:     "EMERGENCY",
	CodeUrgency:       "URGENCY",
	CodeLowComplexity: "LOW COMPLEXITY URGENCY",
	CodeConsult:       "PRIORITY CONSULT",
}

// AllCodes lists every urgency code, most urgent first.
func AllCodes() []UrgencyCode {
	return []UrgencyCode{CodeEmergency, CodeUrgency, CodeLowComplexity, CodeConsult}
}

// ParseUrgencyCode validates a raw string against the enumeration.
func ParseUrgencyCode(s string) (UrgencyCode, error) {
	c := UrgencyCode(s)
	if _, ok := codePriority[c]; !ok {
		return "", eris.Errorf("model: unknown urgency code %q", s)
	}
	return c, nil
}

// Valid reports whether the code is a member of the enumeration.
func (c UrgencyCode) Valid() bool {
	_, ok := codePriority[c]
	return ok
}

// Priority returns the numeric rank of the code (higher = more urgent).
// Unknown codes rank below every valid code.
func (c UrgencyCode) Priority() int {
	return codePriority[c]
}

// Category returns the human-readable category for the code.
func (c UrgencyCode) Category() string {
	if cat, ok := codeCategory[c]; ok {
		return cat
	}
	return "UNCLASSIFIED"
}

// MoreUrgentThan reports whether c outranks other.
func (c UrgencyCode) MoreUrgentThan(other UrgencyCode) bool {
	return c.Priority() > other.Priority()
}

// Distance returns the ordinal distance between two codes, the basis for
// the discordance thresholds in the fusion policy.
func Distance(a, b UrgencyCode) int {
	d := a.Priority() - b.Priority()
	if d < 0 {
		d = -d
	}
	return d
}

// MoreUrgent returns whichever of the two codes outranks the other.
func MoreUrgent(a, b UrgencyCode) UrgencyCode {
	if a.Priority() > b.Priority() {
		return a
	}
	return b
}

// LowAcuityCodes returns the subset of codes eligible for diversion.
func LowAcuityCodes() []UrgencyCode {
	return []UrgencyCode{CodeLowComplexity, CodeConsult}
}

// IsLowAcuity reports whether the code is in the low-acuity subset.
func (c UrgencyCode) IsLowAcuity() bool {
	return c == CodeLowComplexity || c == CodeConsult
}
