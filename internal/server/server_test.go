package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/orion-triage/internal/config"
	"github.com/sells-group/orion-triage/internal/engine"
	"github.com/sells-group/orion-triage/internal/fairness"
	"github.com/sells-group/orion-triage/internal/feedback"
	"github.com/sells-group/orion-triage/internal/fusion"
	"github.com/sells-group/orion-triage/internal/model"
	"github.com/sells-group/orion-triage/internal/protocol"
	"github.com/sells-group/orion-triage/internal/store"
	"github.com/sells-group/orion-triage/internal/vpp"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	protocols := []protocol.Protocol{{
		ComplaintKey:   "dolor toracico",
		Aliases:        []string{"chest pain"},
		BaseConfidence: 0.9,
		Questions: []protocol.Question{
			{ID: "inicio_subito", Text: "Sudden onset?", AnswerType: "bool"},
		},
		Rules: []protocol.Rule{{
			Conditions: []protocol.Condition{{QuestionID: "inicio_subito", Expected: "si"}},
			Code:       model.CodeEmergency,
		}},
	}}

	fusionCfg := config.FusionConfig{
		RuleWeight: 0.5, AIWeight: 0.5,
		DistancePenalty: 0.1, MajorDiscordanceFactor: 0.7, ReviewDistance: 2,
	}
	vitalsCfg := config.VitalsConfig{
		TachycardiaHR: 120, BradycardiaHR: 40,
		HypoxiaSpO2: 90, HypotensionSBP: 90, HyperthermiaTemp: 40,
	}
	vppCfg := config.VPPConfig{
		MinWaitToleranceMins: 60, WaitMinutesMin: 30, WaitMinutesMax: 120, AvgMinutesSaved: 25,
	}

	loop := feedback.NewLoop(config.FeedbackConfig{BufferSize: 100}, nil, st)
	eng := engine.New(
		protocol.NewEvaluator(protocols),
		nil,
		fusion.NewPolicy(fusionCfg),
		vpp.NewOptimizer(vppCfg, vitalsCfg),
		vitalsCfg,
		st,
		loop,
	)
	auditor := fairness.NewAuditor(st, config.FairnessConfig{
		DisparityThreshold: 0.10, LookbackHours: 168, MinGroupSize: 10,
	})

	return New(eng, auditor, loop, config.ServerConfig{Port: 0, AllowedOrigins: []string{"*"}}), st
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestTriageEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/triage", map[string]any{
		"complaint": "chest pain",
		"answers":   map[string]string{"inicio_subito": "si"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var d model.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, model.CodeEmergency, d.FinalCode)
	assert.NotEmpty(t, d.ID)
	assert.False(t, d.AIAvailable)
}

func TestTriageEndpointMissingComplaint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/triage", map[string]any{
		"answers": map[string]string{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComplaintsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/complaints", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dolor toracico")
}

func TestQuestionsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/complaints/dolor%20toracico/questions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "inicio_subito")

	rec = doJSON(t, srv.Router(), http.MethodGet, "/api/complaints/unknown/questions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedbackEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/triage", map[string]any{
		"complaint": "dolor toracico",
		"answers":   map[string]string{"inicio_subito": "si"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var d model.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))

	rec = doJSON(t, router, http.MethodPost, "/api/feedback", map[string]string{
		"decision_id": d.ID,
		"actual_code": "D2",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"buffer_depth":1`)
}

func TestFeedbackEndpointValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/feedback", map[string]string{
		"actual_code": "D2",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/feedback", map[string]string{
		"decision_id": "dec-1",
		"actual_code": "D9",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/feedback", map[string]string{
		"decision_id": "missing",
		"actual_code": "D2",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFairnessReportEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/fairness/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report model.FairnessReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Zero(t, report.Decisions)
	assert.Empty(t, report.Disparities)
}
