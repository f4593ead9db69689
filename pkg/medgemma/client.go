// Package medgemma implements the HTTP contract of the external medical
// classification service.
package medgemma

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orion-triage/internal/resilience"
)

const defaultModel = "medgemma-urgency-v2"

// Client performs urgency classifications against the service.
type Client interface {
	Classify(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error)
}

// ClassifyRequest is the request body for POST /v1/classify.
type ClassifyRequest struct {
	Model      string             `json:"model,omitempty"`
	CaseText   string             `json:"case_text"`
	Answers    map[string]string  `json:"answers,omitempty"`
	VitalSigns map[string]float64 `json:"vital_signs,omitempty"`
	Features   map[string]float64 `json:"features,omitempty"`
}

// ClassifyResponse is the service's classification result.
type ClassifyResponse struct {
	Code          string   `json:"code"`
	Confidence    float64  `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	Differentials []string `json:"differentials,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *httpClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// NewClient creates a classification service client. The per-request
// deadline comes from the caller's context, not from this client.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   defaultModel,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Classify(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "medgemma: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/classify", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "medgemma: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "medgemma: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "medgemma: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("medgemma: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var result ClassifyResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "medgemma: unmarshal response")
	}

	return &result, nil
}
