package medgemma

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orion-triage/internal/resilience"
)

// TrainingClient drives the service's own training pipeline. The engine
// never trains models itself; it only starts cycles and promotes or drops
// candidates.
type TrainingClient interface {
	Retrain(ctx context.Context, req RetrainRequest) (*RetrainResponse, error)
	Deploy(ctx context.Context) error
	Discard(ctx context.Context) error
}

// LabeledCase is one ground-truth correction in a retraining batch.
type LabeledCase struct {
	DecisionID    string `json:"decision_id"`
	PredictedCode string `json:"predicted_code"`
	ActualCode    string `json:"actual_code"`
}

// RetrainRequest is the request body for POST /v1/retrain.
type RetrainRequest struct {
	Model string        `json:"model,omitempty"`
	Cases []LabeledCase `json:"cases"`
}

// RetrainResponse carries the candidate's held-out validation metrics.
type RetrainResponse struct {
	CandidateID string  `json:"candidate_id"`
	Accuracy    float64 `json:"accuracy"`
	Sensitivity float64 `json:"sensitivity"`
	Specificity float64 `json:"specificity"`
}

// NewTrainingClient creates a training client sharing the classify
// client's transport configuration.
func NewTrainingClient(baseURL, apiKey string, opts ...Option) TrainingClient {
	return NewClient(baseURL, apiKey, opts...).(*httpClient)
}

func (c *httpClient) Retrain(ctx context.Context, req RetrainRequest) (*RetrainResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	respBody, err := c.post(ctx, "/v1/retrain", req)
	if err != nil {
		return nil, err
	}

	var result RetrainResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "medgemma: unmarshal retrain response")
	}
	return &result, nil
}

func (c *httpClient) Deploy(ctx context.Context) error {
	_, err := c.post(ctx, "/v1/candidate/deploy", struct{}{})
	return err
}

func (c *httpClient) Discard(ctx context.Context) error {
	_, err := c.post(ctx, "/v1/candidate/discard", struct{}{})
	return err
}

// post sends a JSON body and returns the raw response on 200.
func (c *httpClient) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrapf(err, "medgemma: marshal %s request", path)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrapf(err, "medgemma: create %s request", path)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrapf(err, "medgemma: send %s request", path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "medgemma: read %s response", path)
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("medgemma: %s unexpected status %d: %s", path, resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return respBody, nil
}
