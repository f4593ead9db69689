// Package vpp evaluates low-acuity decisions for diversion to the
// lower-intensity processing track and estimates the capacity gained.
package vpp

import (
	"go.uber.org/zap"

	"github.com/sells-group/orion-triage/internal/config"
	"github.com/sells-group/orion-triage/internal/model"
	"github.com/sells-group/orion-triage/internal/vitals"
)

// Checklist item names recorded on the decision when eligibility fails.
const (
	CriterionLowAcuity     = "low_acuity_code"
	CriterionVitalsStable  = "vitals_stable"
	CriterionNoComorbidity = "no_severe_comorbidity"
	CriterionWaitTolerance = "wait_tolerance"
	CriterionNoUrgentProc  = "no_urgent_procedure"
)

// Optimizer applies the diversion eligibility checklist. It annotates
// decisions; it never changes a final urgency code.
type Optimizer struct {
	cfg       config.VPPConfig
	vitalsCfg config.VitalsConfig
}

// NewOptimizer creates a diversion optimizer.
func NewOptimizer(cfg config.VPPConfig, vitalsCfg config.VitalsConfig) *Optimizer {
	return &Optimizer{cfg: cfg, vitalsCfg: vitalsCfg}
}

// Evaluate runs the checklist for a decided case. Diversion is recommended
// only when every item passes; partial eligibility is never rounded up.
// Returns nil for codes outside the low-acuity subset.
func (o *Optimizer) Evaluate(c model.Case, d model.Decision) *model.Diversion {
	if !d.FinalCode.IsLowAcuity() {
		return nil
	}

	var failed []string

	if !vitals.Stable(c.Vitals, o.vitalsCfg) {
		failed = append(failed, CriterionVitalsStable)
	}
	if len(c.Comorbidities) > o.cfg.MaxComorbidityFlags {
		failed = append(failed, CriterionNoComorbidity)
	}
	if c.WaitToleranceMins < o.cfg.MinWaitToleranceMins {
		failed = append(failed, CriterionWaitTolerance)
	}
	if c.UrgentProcedure {
		failed = append(failed, CriterionNoUrgentProc)
	}

	if len(failed) > 0 {
		zap.L().Debug("vpp: diversion declined",
			zap.String("case_id", c.ID),
			zap.Strings("failed_criteria", failed),
		)
		return &model.Diversion{Recommended: false, FailedCriteria: failed}
	}

	return &model.Diversion{
		Recommended:    true,
		WaitMinutesMin: o.cfg.WaitMinutesMin,
		WaitMinutesMax: o.cfg.WaitMinutesMax,
		MinutesSaved:   o.cfg.AvgMinutesSaved,
	}
}

// DailyImpact aggregates the estimated critical-track minutes freed by the
// diversions recommended in a batch of decisions.
type DailyImpact struct {
	Diverted          int     `json:"diverted"`
	Evaluated         int     `json:"evaluated"`
	TotalMinutesSaved float64 `json:"total_minutes_saved"`
}

// Impact computes the aggregate capacity gain over a decision batch.
func Impact(decisions []model.Decision) DailyImpact {
	var imp DailyImpact
	for _, d := range decisions {
		if d.Diversion == nil {
			continue
		}
		imp.Evaluated++
		if d.Diversion.Recommended {
			imp.Diverted++
			imp.TotalMinutesSaved += d.Diversion.MinutesSaved
		}
	}
	return imp
}
