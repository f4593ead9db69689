// Package protocol loads the clinical knowledge base and evaluates
// protocol rules against reported answers.
package protocol

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/orion-triage/internal/model"
)

// Question is one key question the protocol requires an answer for.
type Question struct {
	ID         string `yaml:"id" json:"id"`
	Text       string `yaml:"text" json:"text"`
	AnswerType string `yaml:"answer_type" json:"answer_type"` // "bool", "text", "numeric"
}

// Condition matches one answer against an expected value. Boolean answers
// accept the usual yes/no spellings; other answers match by containment.
type Condition struct {
	QuestionID string `yaml:"question_id" json:"question_id"`
	Expected   string `yaml:"expected" json:"expected"`
}

// Rule maps a conjunction of conditions to an urgency code.
type Rule struct {
	Conditions  []Condition       `yaml:"conditions" json:"conditions"`
	Code        model.UrgencyCode `yaml:"code" json:"code"`
	Instruction string            `yaml:"instruction" json:"instruction"`
	Causes      []string          `yaml:"causes" json:"causes"`
}

// Protocol is one complaint's entry in the knowledge base, produced by the
// external ETL. Read-only at runtime.
type Protocol struct {
	ComplaintKey     string     `yaml:"complaint_key" json:"complaint_key"`
	Aliases          []string   `yaml:"aliases" json:"aliases"`
	Questions        []Question `yaml:"questions" json:"questions"`
	Rules            []Rule     `yaml:"rules" json:"rules"`
	BaseConfidence   float64    `yaml:"base_confidence" json:"base_confidence"`
	DefaultRationale string     `yaml:"default_rationale" json:"default_rationale"`
}

// LoadDir reads every protocol file (.yaml, .yml, .json) from dir. A
// missing or empty knowledge base is an explicit error, never a silent
// default: the rule evaluator cannot run without the ETL output.
func LoadDir(dir string) ([]Protocol, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "protocol: knowledge base not found at %s (run the ETL first)", dir)
	}
	if !info.IsDir() {
		return nil, eris.Errorf("protocol: knowledge base path %s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrap(err, "protocol: read knowledge base dir")
	}

	var protocols []Protocol
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		ps, err := loadFile(path, ext)
		if err != nil {
			return nil, err
		}
		protocols = append(protocols, ps...)
	}

	if len(protocols) == 0 {
		return nil, eris.Errorf("protocol: knowledge base at %s contains no protocols", dir)
	}

	for _, p := range protocols {
		if err := validate(p); err != nil {
			return nil, err
		}
	}
	return protocols, nil
}

// loadFile parses one file, which may hold a single protocol or a list.
func loadFile(path, ext string) ([]Protocol, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "protocol: read %s", path)
	}

	unmarshal := yaml.Unmarshal
	if ext == ".json" {
		unmarshal = json.Unmarshal
	}

	var list []Protocol
	if err := unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list, nil
	}

	var single Protocol
	if err := unmarshal(raw, &single); err != nil {
		return nil, eris.Wrapf(err, "protocol: parse %s", path)
	}
	return []Protocol{single}, nil
}

func validate(p Protocol) error {
	if strings.TrimSpace(p.ComplaintKey) == "" {
		return eris.New("protocol: protocol missing complaint_key")
	}
	if p.BaseConfidence < 0 || p.BaseConfidence > 1 {
		return eris.Errorf("protocol: %s base_confidence %.2f out of [0,1]", p.ComplaintKey, p.BaseConfidence)
	}
	for _, r := range p.Rules {
		if !r.Code.Valid() {
			return eris.Errorf("protocol: %s rule has unknown urgency code %q", p.ComplaintKey, r.Code)
		}
		if len(r.Conditions) == 0 {
			return eris.Errorf("protocol: %s rule for %s has no conditions", p.ComplaintKey, r.Code)
		}
	}
	return nil
}
