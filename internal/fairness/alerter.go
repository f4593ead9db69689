package fairness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orion-triage/internal/config"
	"github.com/sells-group/orion-triage/internal/model"
)

// Alert is the webhook payload for one flagged disparity.
type Alert struct {
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter delivers disparity alerts to a webhook. The audit result is
// authoritative with or without delivery; a failed webhook never fails
// the audit.
type Alerter struct {
	cfg    config.FairnessConfig
	client *http.Client
}

// NewAlerter creates an alerter with the given fairness config.
func NewAlerter(cfg config.FairnessConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate converts the report's disparities into alerts.
func (a *Alerter) Evaluate(report *model.FairnessReport) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	for _, d := range report.Disparities {
		alerts = append(alerts, Alert{
			Type:     "fairness_disparity",
			Severity: "high",
			Message: fmt.Sprintf(
				"%s rate gap %.1f%% between %s groups %q and %q exceeds threshold %.1f%% (%d decisions in window)",
				d.Code, d.Gap*100, d.Attribute, d.MaxGroup, d.MinGroup,
				d.Threshold*100, report.Decisions,
			),
			Details: map[string]any{
				"attribute": d.Attribute,
				"code":      string(d.Code),
				"max_group": d.MaxGroup,
				"min_group": d.MinGroup,
				"gap":       d.Gap,
				"threshold": d.Threshold,
			},
			Timestamp: now,
		})
	}
	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("fairness: failed to send alert",
				zap.String("type", alert.Type),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("fairness: alert sent",
			zap.String("type", alert.Type),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "fairness: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "fairness: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "fairness: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("fairness: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
