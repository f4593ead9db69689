// Package fairness implements the batch disparity audit over a decision
// window. The audit reads protected attributes that the classification
// path never sees, recomputes every aggregate from scratch per run, and
// flags outcome-rate gaps between demographic groups.
package fairness

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orion-triage/internal/config"
	"github.com/sells-group/orion-triage/internal/model"
	"github.com/sells-group/orion-triage/internal/store"
)

// Attribute names reported in FairnessReport.Groups and Disparity.Attribute.
const (
	AttrAgeBand = "age_band"
	AttrSex     = "sex"
	AttrRegion  = "region"
)

// Auditor recomputes fairness aggregates over stored decisions.
type Auditor struct {
	store store.Store
	cfg   config.FairnessConfig
}

// NewAuditor creates a fairness auditor backed by the decision store.
func NewAuditor(st store.Store, cfg config.FairnessConfig) *Auditor {
	return &Auditor{store: st, cfg: cfg}
}

// Report runs one audit over the lookback window ending at until.
// Decisions without demographics count toward the window total but join
// no group. Groups below the minimum size are reported but excluded from
// disparity detection.
func (a *Auditor) Report(ctx context.Context, until time.Time) (*model.FairnessReport, error) {
	lookback := a.cfg.LookbackHours
	if lookback <= 0 {
		lookback = 168
	}
	since := until.Add(-time.Duration(lookback) * time.Hour)

	decisions, err := a.store.ListDecisions(ctx, store.DecisionFilter{
		Since: since,
		Until: until,
		Limit: 100000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "fairness: list decisions")
	}

	report := &model.FairnessReport{
		WindowStart: since,
		WindowEnd:   until,
		Decisions:   len(decisions),
		Groups:      make(map[string][]model.GroupStats),
		GeneratedAt: time.Now().UTC(),
	}

	for _, attr := range []string{AttrAgeBand, AttrSex, AttrRegion} {
		stats := aggregate(decisions, attr)
		report.Groups[attr] = stats
		report.Disparities = append(report.Disparities, a.detect(attr, stats)...)
	}

	zap.L().Info("fairness: audit complete",
		zap.Int("decisions", report.Decisions),
		zap.Int("disparities", len(report.Disparities)),
		zap.Time("window_start", since),
		zap.Time("window_end", until),
	)

	return report, nil
}

// aggregate computes per-group totals, code rates, and average latency for
// one protected attribute.
func aggregate(decisions []model.Decision, attr string) []model.GroupStats {
	type acc struct {
		total      int
		codes      map[model.UrgencyCode]int
		latencySum int64
	}
	groups := make(map[string]*acc)

	for _, d := range decisions {
		g := groupValue(d.Demographics, attr)
		if g == "" {
			continue
		}
		a, ok := groups[g]
		if !ok {
			a = &acc{codes: make(map[model.UrgencyCode]int)}
			groups[g] = a
		}
		a.total++
		a.codes[d.FinalCode]++
		a.latencySum += d.LatencyMS
	}

	stats := make([]model.GroupStats, 0, len(groups))
	for g, a := range groups {
		gs := model.GroupStats{
			Group:        g,
			Total:        a.total,
			CodeRates:    make(map[model.UrgencyCode]float64, len(a.codes)),
			AvgLatencyMS: float64(a.latencySum) / float64(a.total),
		}
		for code, n := range a.codes {
			gs.CodeRates[code] = float64(n) / float64(a.total)
		}
		stats = append(stats, gs)
	}
	sortStats(stats)
	return stats
}

// detect flags a disparity when the gap between the highest and lowest
// most-urgent-code rate across qualifying groups exceeds the threshold.
func (a *Auditor) detect(attr string, stats []model.GroupStats) []model.Disparity {
	minSize := a.cfg.MinGroupSize
	if minSize <= 0 {
		minSize = 10
	}

	var qualifying []model.GroupStats
	for _, gs := range stats {
		if gs.Total >= minSize {
			qualifying = append(qualifying, gs)
		}
	}
	if len(qualifying) < 2 {
		return nil
	}

	code := model.CodeEmergency
	maxGroup, minGroup := qualifying[0], qualifying[0]
	for _, gs := range qualifying[1:] {
		if gs.CodeRates[code] > maxGroup.CodeRates[code] {
			maxGroup = gs
		}
		if gs.CodeRates[code] < minGroup.CodeRates[code] {
			minGroup = gs
		}
	}

	gap := maxGroup.CodeRates[code] - minGroup.CodeRates[code]
	if gap <= a.cfg.DisparityThreshold {
		return nil
	}

	zap.L().Warn("fairness: disparity detected",
		zap.String("attribute", attr),
		zap.String("code", string(code)),
		zap.String("max_group", maxGroup.Group),
		zap.String("min_group", minGroup.Group),
		zap.Float64("gap", gap),
		zap.Float64("threshold", a.cfg.DisparityThreshold),
	)

	return []model.Disparity{{
		Attribute: attr,
		Code:      code,
		MaxGroup:  maxGroup.Group,
		MinGroup:  minGroup.Group,
		Gap:       gap,
		Threshold: a.cfg.DisparityThreshold,
	}}
}

func groupValue(d *model.Demographics, attr string) string {
	if d == nil {
		return ""
	}
	switch attr {
	case AttrAgeBand:
		return d.AgeBand
	case AttrSex:
		return d.Sex
	case AttrRegion:
		return d.Region
	default:
		return ""
	}
}

func sortStats(stats []model.GroupStats) {
	sort.Slice(stats, func(i, j int) bool { return stats[i].Group < stats[j].Group })
}
