package protocol

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/orion-triage/internal/model"
)

// NoProtocolError reports that no protocol exists for a complaint. The
// caller presents a generic fallback; this is never a crash.
type NoProtocolError struct {
	Complaint string
}

func (e *NoProtocolError) Error() string {
	return fmt.Sprintf("protocol: no protocol found for complaint %q", e.Complaint)
}

// IsNoProtocol reports whether err is a NoProtocolError.
func IsNoProtocol(err error) bool {
	var npe *NoProtocolError
	return errors.As(err, &npe)
}

// Evaluator matches complaints and answers against the knowledge base and
// produces deterministic rule-based opinions.
type Evaluator struct {
	index map[string]*Protocol
	keys  []string
}

// NewEvaluator builds the complaint index over the loaded protocols.
// Aliases index to the same protocol as the canonical key.
func NewEvaluator(protocols []Protocol) *Evaluator {
	ev := &Evaluator{index: make(map[string]*Protocol, len(protocols))}
	for i := range protocols {
		p := &protocols[i]
		ev.index[normalizeKey(p.ComplaintKey)] = p
		for _, alias := range p.Aliases {
			ev.index[normalizeKey(alias)] = p
		}
	}
	for k := range ev.index {
		ev.keys = append(ev.keys, k)
	}
	// Longest keys first so "dolor toracico opresivo" beats "dolor".
	sort.Slice(ev.keys, func(i, j int) bool { return len(ev.keys[i]) > len(ev.keys[j]) })
	return ev
}

// Complaints lists the canonical complaint keys in the knowledge base.
func (ev *Evaluator) Complaints() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range ev.index {
		if !seen[p.ComplaintKey] {
			seen[p.ComplaintKey] = true
			out = append(out, p.ComplaintKey)
		}
	}
	sort.Strings(out)
	return out
}

// DetectComplaint finds the protocol key mentioned in free text. Exact
// containment wins; a keyword fallback catches partial mentions. Returns
// "" when nothing matches.
func (ev *Evaluator) DetectComplaint(text string) string {
	t := normalizeKey(text)
	for _, key := range ev.keys {
		if strings.Contains(t, key) {
			return ev.index[key].ComplaintKey
		}
	}
	for _, key := range ev.keys {
		for _, word := range strings.Fields(key) {
			if len(word) > 3 && strings.Contains(t, word) {
				return ev.index[key].ComplaintKey
			}
		}
	}
	return ""
}

// Questions returns the protocol's key questions for a complaint.
func (ev *Evaluator) Questions(complaint string) ([]Question, error) {
	p, ok := ev.index[normalizeKey(complaint)]
	if !ok {
		return nil, &NoProtocolError{Complaint: complaint}
	}
	return p.Questions, nil
}

// Evaluate applies the protocol's classification rules to the answers and
// returns the rule-based opinion. When several rules match, the most
// urgent code wins; matches are never averaged. When no rule matches, the
// least urgent code is assigned with reduced confidence.
func (ev *Evaluator) Evaluate(complaint string, answers map[string]string) (model.Opinion, error) {
	p, ok := ev.index[normalizeKey(complaint)]
	if !ok {
		return model.Opinion{}, &NoProtocolError{Complaint: complaint}
	}

	var matched *Rule
	var matchedCriteria []string
	for i := range p.Rules {
		r := &p.Rules[i]
		criteria, ok := ruleMatches(r, answers)
		if !ok {
			continue
		}
		if matched == nil || r.Code.MoreUrgentThan(matched.Code) {
			matched = r
			matchedCriteria = criteria
		}
	}

	if matched == nil {
		rationale := p.DefaultRationale
		if rationale == "" {
			rationale = "No classification rule matched; medical evaluation needed."
		}
		return model.Opinion{
			Source:      model.SourceRules,
			Code:        model.CodeConsult,
			Confidence:  0.5,
			Rationale:   rationale,
			Causes:      []string{"requires clinical evaluation"},
			Instruction: "Schedule priority medical evaluation",
		}, nil
	}

	zap.L().Debug("protocol: rule matched",
		zap.String("complaint", p.ComplaintKey),
		zap.String("code", string(matched.Code)),
		zap.Strings("criteria", matchedCriteria),
	)

	return model.Opinion{
		Source:      model.SourceRules,
		Code:        matched.Code,
		Confidence:  p.BaseConfidence,
		Rationale:   fmt.Sprintf("Matched criteria: %s", strings.Join(matchedCriteria, "; ")),
		Causes:      matched.Causes,
		Instruction: matched.Instruction,
	}, nil
}

// ruleMatches checks every condition of the rule against the answers and
// returns the matched criteria descriptions.
func ruleMatches(r *Rule, answers map[string]string) ([]string, bool) {
	criteria := make([]string, 0, len(r.Conditions))
	for _, cond := range r.Conditions {
		answer, ok := lookupAnswer(answers, cond.QuestionID)
		if !ok || !answerMatches(cond.Expected, answer) {
			return nil, false
		}
		criteria = append(criteria, fmt.Sprintf("%s=%s", cond.QuestionID, cond.Expected))
	}
	return criteria, true
}

// lookupAnswer finds the answer for a question ID, tolerating key casing.
func lookupAnswer(answers map[string]string, questionID string) (string, bool) {
	if v, ok := answers[questionID]; ok {
		return v, true
	}
	want := normalizeKey(questionID)
	for k, v := range answers {
		if normalizeKey(k) == want {
			return v, true
		}
	}
	return "", false
}

// answerMatches compares an expected value against an actual answer.
// Affirmative and negative spellings are equivalence classes; anything
// else matches by containment.
func answerMatches(expected, actual string) bool {
	exp := normalizeKey(expected)
	act := normalizeKey(actual)

	switch exp {
	case "si", "yes", "true", "1":
		return act == "si" || act == "yes" || act == "true" || act == "1"
	case "no", "false", "0":
		return act == "no" || act == "false" || act == "0"
	default:
		return strings.Contains(act, exp)
	}
}
