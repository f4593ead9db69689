package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/orion-triage/internal/model"
	"github.com/sells-group/orion-triage/internal/protocol"
)

// triageRequest is the POST /api/triage body. It maps onto the case
// bundle one to one.
type triageRequest struct {
	Complaint         string                    `json:"complaint"`
	Answers           map[string]string         `json:"answers"`
	Vitals            *model.VitalSigns         `json:"vitals,omitempty"`
	Features          *model.MultimodalFeatures `json:"features,omitempty"`
	Demographics      *model.Demographics       `json:"demographics,omitempty"`
	PatientRef        string                    `json:"patient_ref,omitempty"`
	Comorbidities     []string                  `json:"comorbidities,omitempty"`
	WaitToleranceMins int                       `json:"wait_tolerance_mins,omitempty"`
	UrgentProcedure   bool                      `json:"urgent_procedure,omitempty"`
}

type feedbackRequest struct {
	DecisionID string `json:"decision_id"`
	ActualCode string `json:"actual_code"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Complaint) == "" {
		writeError(w, http.StatusBadRequest, "complaint is required")
		return
	}

	c := model.Case{
		Complaint:         req.Complaint,
		Answers:           req.Answers,
		Vitals:            req.Vitals,
		Features:          req.Features,
		Demographics:      req.Demographics,
		PatientRef:        req.PatientRef,
		Comorbidities:     req.Comorbidities,
		WaitToleranceMins: req.WaitToleranceMins,
		UrgentProcedure:   req.UrgentProcedure,
		ReceivedAt:        time.Now().UTC(),
	}

	d, err := s.engine.Triage(r.Context(), c)
	if err != nil {
		zap.L().Error("server: triage failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "classification failed")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleComplaints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"complaints": s.engine.Evaluator().Complaints(),
	})
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	questions, err := s.engine.Evaluator().Questions(key)
	if err != nil {
		if protocol.IsNoProtocol(err) {
			writeError(w, http.StatusNotFound, "no protocol for complaint")
			return
		}
		zap.L().Error("server: question lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"complaint": key,
		"questions": questions,
	})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DecisionID == "" {
		writeError(w, http.StatusBadRequest, "decision_id is required")
		return
	}

	code, err := model.ParseUrgencyCode(req.ActualCode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown urgency code")
		return
	}

	fr, err := s.engine.RecordFeedback(r.Context(), req.DecisionID, code)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "decision not found")
			return
		}
		zap.L().Error("server: record feedback failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "feedback failed")
		return
	}

	resp := map[string]any{"feedback": fr}
	if s.loop != nil {
		resp["buffer_depth"] = s.loop.Len()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleFairnessReport(w http.ResponseWriter, r *http.Request) {
	if s.auditor == nil {
		writeError(w, http.StatusServiceUnavailable, "fairness audit not configured")
		return
	}

	report, err := s.auditor.Report(r.Context(), time.Now().UTC())
	if err != nil {
		zap.L().Error("server: fairness report failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "audit failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
