package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mkarlsen/sitealarm/historian"
	"github.com/mkarlsen/sitealarm/internal/logger"
	"github.com/mkarlsen/sitealarm/rules"
	"github.com/mkarlsen/sitealarm/telemetry"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"subscribers": s.hub.Count(),
	})
}

// handleCreateRule validates the condition before anything is persisted,
// then runs one synchronous evaluation pass so the new rule's state is
// reflected without waiting for the next scheduled tick.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	rule := &rules.Rule{
		ID:          uuid.NewString(),
		Category:    req.Category,
		Condition:   req.Condition,
		Severity:    req.Severity,
		Message:     req.Message,
		Action:      req.Action,
		Enabled:     enabled,
		Metadata:    req.Metadata,
		OperationID: req.OperationID,
		CreatedBy:   req.CreatedBy,
		LastStatus:  rules.StatusUnknown,
	}

	if err := rules.ValidateRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "rule validation failed", err)
		return
	}
	if err := s.rules.Add(rule); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create rule", err)
		return
	}

	s.reevaluate(r)

	created, err := s.rules.Get(rule.ID)
	if err != nil {
		created = rule
	}
	respondJSON(w, http.StatusCreated, ruleResponse(created))
}

func (s *Server) handleValidateRule(w http.ResponseWriter, r *http.Request) {
	var req ValidateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := s.validateCondition(req.Condition); err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.rules.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	resp := RulesListResponse{Rules: make([]RuleResponse, 0, len(list))}
	for _, rule := range list {
		resp.Rules = append(resp.Rules, ruleResponse(rule))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.Get(chi.URLParam(r, "ruleID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, ruleResponse(rule))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.Get(chi.URLParam(r, "ruleID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	var req UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Category != nil {
		rule.Category = *req.Category
	}
	if req.Condition != nil {
		rule.Condition = *req.Condition
	}
	if req.Severity != nil {
		rule.Severity = *req.Severity
	}
	if req.Message != nil {
		rule.Message = *req.Message
	}
	if req.Action != nil {
		rule.Action = *req.Action
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.Metadata != nil {
		rule.Metadata = *req.Metadata
	}
	if req.OperationID != nil {
		rule.OperationID = req.OperationID
	}

	if err := rules.ValidateRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "rule validation failed", err)
		return
	}
	if err := s.rules.Update(rule); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update rule", err)
		return
	}

	s.reevaluate(r)

	updated, err := s.rules.Get(rule.ID)
	if err != nil {
		updated = rule
	}
	respondJSON(w, http.StatusOK, ruleResponse(updated))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.rules.Delete(chi.URLParam(r, "ruleID")); err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTelemetry(w http.ResponseWriter, r *http.Request) {
	readings, err := s.telemetry.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list telemetry", err)
		return
	}
	if readings == nil {
		readings = []telemetry.Reading{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"readings": readings})
}

func (s *Server) handleUpsertTelemetry(w http.ResponseWriter, r *http.Request) {
	var req TelemetryUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Readings) == 0 {
		respondError(w, http.StatusBadRequest, "readings are required", nil)
		return
	}

	batch := make([]telemetry.Reading, 0, len(req.Readings))
	for source, value := range req.Readings {
		batch = append(batch, telemetry.Reading{Source: source, Value: value})
	}
	if err := s.telemetry.Upsert(batch); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store readings", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"stored": len(batch)})
}

func (s *Server) handleListAlarms(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.historian.Recent(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list alarms", err)
		return
	}
	if entries == nil {
		entries = []historian.Entry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"alarms": entries})
}

// reevaluate runs one out-of-band evaluation pass after a rule mutation.
// Failures are logged, not returned: the mutation itself already
// succeeded and the next scheduled tick will catch up.
func (s *Server) reevaluate(r *http.Request) {
	if err := s.scheduler.RunOnce(r.Context()); err != nil {
		logger.Warn("post-mutation evaluation pass failed", "error", err)
	}
}

func (s *Server) validateCondition(cond string) error {
	probe := &rules.Rule{Category: "probe", Severity: rules.SeverityInfo, Condition: cond}
	return rules.ValidateRule(probe)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
