// Package engine orchestrates the per-case pipeline: concurrent rule and
// AI opinions, vital-sign override, fusion, diversion annotation, and
// decision persistence.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/orion-triage/internal/config"
	"github.com/sells-group/orion-triage/internal/feedback"
	"github.com/sells-group/orion-triage/internal/fusion"
	"github.com/sells-group/orion-triage/internal/model"
	"github.com/sells-group/orion-triage/internal/protocol"
	"github.com/sells-group/orion-triage/internal/store"
	"github.com/sells-group/orion-triage/internal/vitals"
	"github.com/sells-group/orion-triage/internal/vpp"
)

// OpinionProvider produces the AI opinion for a case, or an error carrying
// the unavailable signal. Satisfied by *aiopinion.Adapter.
type OpinionProvider interface {
	Opinion(ctx context.Context, c model.Case) (*model.Opinion, error)
}

// Engine runs the classification pipeline. Cases are processed fully
// independently; the engine holds no per-case mutable state.
type Engine struct {
	evaluator *protocol.Evaluator
	ai        OpinionProvider
	policy    *fusion.Policy
	optimizer *vpp.Optimizer
	vitalsCfg config.VitalsConfig
	store     store.Store
	loop      *feedback.Loop
}

// New assembles the engine. The AI provider, store, and feedback loop are
// optional; a nil AI provider yields rule-only decisions.
func New(
	evaluator *protocol.Evaluator,
	ai OpinionProvider,
	policy *fusion.Policy,
	optimizer *vpp.Optimizer,
	vitalsCfg config.VitalsConfig,
	st store.Store,
	loop *feedback.Loop,
) *Engine {
	return &Engine{
		evaluator: evaluator,
		ai:        ai,
		policy:    policy,
		optimizer: optimizer,
		vitalsCfg: vitalsCfg,
		store:     st,
		loop:      loop,
	}
}

// Evaluator exposes the knowledge-base evaluator for complaint and
// question lookups.
func (e *Engine) Evaluator() *protocol.Evaluator {
	return e.evaluator
}

// Triage classifies one case end to end and returns its decision. The
// rule and AI opinions are obtained concurrently; the AI path can fail
// without blocking the rule path, so a decision is always produced.
func (e *Engine) Triage(ctx context.Context, c model.Case) (*model.Decision, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.ReceivedAt.IsZero() {
		c.ReceivedAt = time.Now().UTC()
	}
	start := time.Now()

	complaint := c.Complaint
	if key := e.evaluator.DetectComplaint(c.Complaint); key != "" {
		complaint = key
	}

	var ruleOp model.Opinion
	var aiOp *model.Opinion

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		op, err := e.evaluator.Evaluate(complaint, c.Answers)
		if err != nil {
			if !protocol.IsNoProtocol(err) {
				return eris.Wrap(err, "engine: rule evaluation")
			}
			zap.L().Info("engine: no protocol for complaint, generic fallback",
				zap.String("case_id", c.ID),
				zap.String("complaint", c.Complaint),
			)
			op = fallbackOpinion(c.Complaint)
		}
		ruleOp = op
		return nil
	})
	g.Go(func() error {
		if e.ai == nil {
			return nil
		}
		op, err := e.ai.Opinion(gctx, c)
		if err != nil {
			// Any AI failure collapses to rule-only; never an error here.
			zap.L().Warn("engine: proceeding without AI opinion",
				zap.String("case_id", c.ID),
				zap.Error(err),
			)
			return nil
		}
		aiOp = op
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The override runs last among the input stages and only escalates.
	ov := vitals.Check(c.Vitals, e.vitalsCfg)

	d := e.policy.Fuse(c, ruleOp, aiOp, ov)
	d.Diversion = e.optimizer.Evaluate(c, d)
	d.LatencyMS = time.Since(start).Milliseconds()

	if e.store != nil {
		if err := e.store.SaveDecision(ctx, &d); err != nil {
			// The decision stands even when persistence fails; audit
			// durability is degraded, not the classification.
			zap.L().Error("engine: persist decision",
				zap.String("decision_id", d.ID),
				zap.Error(err),
			)
		}
	}

	return &d, nil
}

// RecordFeedback pairs a past decision with a confirmed ground-truth code
// and feeds the continuous-learning loop.
func (e *Engine) RecordFeedback(ctx context.Context, decisionID string, actual model.UrgencyCode) (*model.FeedbackRecord, error) {
	if !actual.Valid() {
		return nil, eris.Errorf("engine: invalid ground-truth code %q", actual)
	}
	if e.store == nil {
		return nil, eris.New("engine: no store configured for feedback")
	}

	d, err := e.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, eris.Wrap(err, "engine: look up decision")
	}

	fr := model.FeedbackRecord{
		ID:            uuid.New().String(),
		DecisionID:    d.ID,
		PredictedCode: d.FinalCode,
		ActualCode:    actual,
		Mismatch:      d.FinalCode != actual,
		RecordedAt:    time.Now().UTC(),
	}

	if e.loop != nil {
		if err := e.loop.Append(ctx, fr); err != nil {
			return nil, err
		}
	} else if err := e.store.SaveFeedback(ctx, &fr); err != nil {
		return nil, err
	}

	return &fr, nil
}

// fallbackOpinion is the generic assessment used when the knowledge base
// has no protocol for the complaint.
func fallbackOpinion(complaint string) model.Opinion {
	return model.Opinion{
		Source:      model.SourceRules,
		Code:        model.CodeConsult,
		Confidence:  0.5,
		Rationale:   fmt.Sprintf("No clinical protocol found for %q; generic assessment applied.", complaint),
		Causes:      []string{"requires clinical evaluation"},
		Instruction: "Schedule priority medical evaluation",
	}
}
