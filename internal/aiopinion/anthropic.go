package aiopinion

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orion-triage/pkg/anthropic"
)

const classifySystemPrompt = `You are a clinical triage classifier. Given a patient case, assign exactly one urgency code:
  D1 - emergency, immediate attention required
  D2 - urgent, same-day attention required
  D7 - low complexity urgency, suitable for fast-track
  D3 - priority consultation, can be scheduled

Respond with a single JSON object and nothing else:
{"code": "<D1|D2|D7|D3>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>", "differentials": ["<condition>", ...]}`

// anthropicClassifier prompts a general LLM into the classifier contract.
// Used when no dedicated classification service is deployed.
type anthropicClassifier struct {
	client anthropic.Client
	model  string
}

// NewAnthropicClassifier wraps an Anthropic client as a Classifier backend.
func NewAnthropicClassifier(client anthropic.Client, modelName string) Classifier {
	if modelName == "" {
		modelName = "claude-sonnet-4-5"
	}
	return &anthropicClassifier{client: client, model: modelName}
}

func (a *anthropicClassifier) Classify(ctx context.Context, req Request) (*RawOpinion, error) {
	temp := 0.0
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   1024,
		System:      classifySystemPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildCaseText(req)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "aiopinion: anthropic classify")
	}

	return parseClassifyJSON(resp.Text)
}

// buildCaseText renders the case as a plain-text clinical summary.
func buildCaseText(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Chief complaint: %s\n", req.Complaint)

	if len(req.Answers) > 0 {
		b.WriteString("\nIntake answers:\n")
		keys := make([]string, 0, len(req.Answers))
		for k := range req.Answers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, req.Answers[k])
		}
	}

	if vm := vitalsMap(req.Vitals); len(vm) > 0 {
		b.WriteString("\nVital signs:\n")
		keys := make([]string, 0, len(vm))
		for k := range vm {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %g\n", k, vm[k])
		}
	}

	if fm := featuresMap(req.Features); len(fm) > 0 {
		b.WriteString("\nMultimodal signals:\n")
		keys := make([]string, 0, len(fm))
		for k := range fm {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %g\n", k, fm[k])
		}
	}

	return b.String()
}

// parseClassifyJSON extracts the JSON object from the model response,
// tolerating markdown fences around it.
func parseClassifyJSON(text string) (*RawOpinion, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	// Some responses wrap the object in prose; cut to the outermost braces.
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}

	var parsed struct {
		Code          string   `json:"code"`
		Confidence    float64  `json:"confidence"`
		Reasoning     string   `json:"reasoning"`
		Differentials []string `json:"differentials"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, eris.Wrap(err, "aiopinion: parse classifier response")
	}

	return &RawOpinion{
		Code:          parsed.Code,
		Confidence:    parsed.Confidence,
		Reasoning:     parsed.Reasoning,
		Differentials: parsed.Differentials,
	}, nil
}
