// Package aiopinion adapts the external AI classifier into the opinion
// pipeline: bounded time, rate limited, circuit-broken, and validated.
// Every failure mode collapses into one explicit unavailable signal so the
// rule-based path is never blocked by the AI path.
package aiopinion

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/orion-triage/internal/config"
	"github.com/sells-group/orion-triage/internal/model"
	"github.com/sells-group/orion-triage/internal/resilience"
)

// ErrUnavailable signals that no AI opinion could be obtained. Callers
// fall back to a rule-only decision; they never see transport errors.
var ErrUnavailable = eris.New("aiopinion: classifier unavailable")

// Request carries one case to the external classifier.
type Request struct {
	Complaint string
	CaseText  string
	Answers   map[string]string
	Vitals    *model.VitalSigns
	Features  *model.MultimodalFeatures
}

// RawOpinion is the unvalidated classifier output.
type RawOpinion struct {
	Code          string
	Confidence    float64
	Reasoning     string
	Differentials []string
}

// Classifier is the capability boundary to the external AI service: one
// operation, bounded time, explicit failure.
type Classifier interface {
	Classify(ctx context.Context, req Request) (*RawOpinion, error)
}

// Adapter wraps a Classifier with timeout, rate limiting, retry, circuit
// breaking, and response validation.
type Adapter struct {
	classifier Classifier
	cfg        config.AIConfig
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
	retry      resilience.RetryConfig
}

// NewAdapter creates the opinion adapter around a classifier backend.
func NewAdapter(classifier Classifier, cfg config.AIConfig) *Adapter {
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 10
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("aiopinion: circuit state change",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("ai-classifier", "classify")

	return &Adapter{
		classifier: classifier,
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Limit(perSec), burst),
		breaker:    resilience.NewCircuitBreaker(breakerCfg),
		retry:      retryCfg,
	}
}

// Opinion obtains the AI opinion for a case. On any transport failure,
// timeout, or invalid code the returned error wraps ErrUnavailable; an
// out-of-range confidence is clamped and flagged rather than rejected.
func (a *Adapter) Opinion(ctx context.Context, c model.Case) (*model.Opinion, error) {
	if a == nil || a.classifier == nil {
		return nil, eris.Wrap(ErrUnavailable, "aiopinion: no classifier configured")
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout())
	defer cancel()

	if err := a.limiter.Wait(ctx); err != nil {
		zap.L().Warn("aiopinion: rate limit wait aborted", zap.Error(err))
		return nil, eris.Wrap(ErrUnavailable, "aiopinion: rate limited")
	}

	raw, err := resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (*RawOpinion, error) {
		return resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*RawOpinion, error) {
			return a.classifier.Classify(ctx, buildRequest(c))
		})
	})
	if err != nil {
		zap.L().Warn("aiopinion: classifier call failed",
			zap.String("case_id", c.ID),
			zap.Error(err),
		)
		return nil, eris.Wrap(ErrUnavailable, err.Error())
	}

	return a.validate(c.ID, raw)
}

// validate enforces the response contract: code must be a member of the
// enumeration, confidence must be in [0,1]. Out-of-range confidences are
// clamped and logged as a data-quality event, not silently accepted.
func (a *Adapter) validate(caseID string, raw *RawOpinion) (*model.Opinion, error) {
	code, err := model.ParseUrgencyCode(raw.Code)
	if err != nil {
		zap.L().Warn("aiopinion: invalid urgency code in response",
			zap.String("case_id", caseID),
			zap.String("code", raw.Code),
		)
		return nil, eris.Wrap(ErrUnavailable, "aiopinion: invalid response code")
	}

	op := &model.Opinion{
		Source:     model.SourceAI,
		Code:       code,
		Confidence: raw.Confidence,
		Rationale:  raw.Reasoning,
		Causes:     raw.Differentials,
	}

	if raw.Confidence < 0 || raw.Confidence > 1 {
		zap.L().Warn("aiopinion: confidence out of range, clamping",
			zap.String("case_id", caseID),
			zap.Float64("confidence", raw.Confidence),
		)
		op.Confidence = clamp01(raw.Confidence)
		op.Clamped = true
	}

	return op, nil
}

// buildRequest flattens the case into the classifier request.
func buildRequest(c model.Case) Request {
	return Request{
		Complaint: c.Complaint,
		CaseText:  c.Complaint,
		Answers:   c.Answers,
		Vitals:    c.Vitals,
		Features:  c.Features,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// IsUnavailable reports whether err carries the unavailable signal.
func IsUnavailable(err error) bool {
	return eris.Is(err, ErrUnavailable)
}
