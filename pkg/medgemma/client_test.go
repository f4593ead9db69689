package medgemma

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/orion-triage/internal/resilience"
)

func TestClassify(t *testing.T) {
	var gotReq ClassifyRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/classify", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(ClassifyResponse{ //nolint:errcheck
			Code:          "D1",
			Confidence:    0.93,
			Reasoning:     "sudden chest pain with radiation",
			Differentials: []string{"acute coronary syndrome"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	resp, err := client.Classify(context.Background(), ClassifyRequest{
		CaseText: "chest pain",
		Answers:  map[string]string{"inicio_subito": "si"},
	})
	require.NoError(t, err)

	assert.Equal(t, "D1", resp.Code)
	assert.Equal(t, 0.93, resp.Confidence)
	assert.Equal(t, []string{"acute coronary syndrome"}, resp.Differentials)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, defaultModel, gotReq.Model, "default model fills in when unset")
	assert.Equal(t, "chest pain", gotReq.CaseText)
}

func TestClassifyModelOverride(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ClassifyRequest
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
		gotModel = req.Model
		json.NewEncoder(w).Encode(ClassifyResponse{Code: "D3", Confidence: 0.5}) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", WithModel("custom-model"))
	_, err := client.Classify(context.Background(), ClassifyRequest{CaseText: "x"})
	require.NoError(t, err)
	assert.Equal(t, "custom-model", gotModel)
}

func TestClassifyTransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Classify(context.Background(), ClassifyRequest{CaseText: "x"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestClassifyPermanentStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Classify(context.Background(), ClassifyRequest{CaseText: "x"})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestRetrain(t *testing.T) {
	var gotReq RetrainRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/retrain", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(RetrainResponse{ //nolint:errcheck
			CandidateID: "cand-1",
			Accuracy:    0.91,
			Sensitivity: 0.94,
			Specificity: 0.88,
		})
	}))
	defer srv.Close()

	client := NewTrainingClient(srv.URL, "key")
	resp, err := client.Retrain(context.Background(), RetrainRequest{
		Cases: []LabeledCase{{DecisionID: "d1", PredictedCode: "D2", ActualCode: "D1"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "cand-1", resp.CandidateID)
	assert.Equal(t, 0.91, resp.Accuracy)
	assert.Equal(t, defaultModel, gotReq.Model)
	require.Len(t, gotReq.Cases, 1)
	assert.Equal(t, "d1", gotReq.Cases[0].DecisionID)
}

func TestDeployAndDiscard(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewTrainingClient(srv.URL, "key")
	require.NoError(t, client.Deploy(context.Background()))
	require.NoError(t, client.Discard(context.Background()))
	assert.Equal(t, []string{"/v1/candidate/deploy", "/v1/candidate/discard"}, paths)
}

func TestRetrainTransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewTrainingClient(srv.URL, "").Retrain(context.Background(), RetrainRequest{})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}
