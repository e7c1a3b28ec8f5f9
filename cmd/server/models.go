package main

import (
	"time"

	"github.com/mkarlsen/sitealarm/rules"
)

// API request and response models.

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	Category    string         `json:"category"`
	Condition   string         `json:"condition"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message,omitempty"`
	Action      string         `json:"action,omitempty"`
	Enabled     *bool          `json:"enabled,omitempty"`
	Metadata    rules.Metadata `json:"metadata,omitempty"`
	OperationID *string        `json:"operation_id,omitempty"`
	CreatedBy   string         `json:"created_by,omitempty"`
}

// UpdateRuleRequest is the request body for updating a rule. Absent
// fields keep their current values.
type UpdateRuleRequest struct {
	Category    *string         `json:"category,omitempty"`
	Condition   *string         `json:"condition,omitempty"`
	Severity    *string         `json:"severity,omitempty"`
	Message     *string         `json:"message,omitempty"`
	Action      *string         `json:"action,omitempty"`
	Enabled     *bool           `json:"enabled,omitempty"`
	Metadata    *rules.Metadata `json:"metadata,omitempty"`
	OperationID *string         `json:"operation_id,omitempty"`
}

// ValidateRuleRequest is the request body for dry-run condition
// validation.
type ValidateRuleRequest struct {
	Condition string `json:"condition"`
}

// RuleResponse is a rule in API responses.
type RuleResponse struct {
	ID              string          `json:"id"`
	Category        string          `json:"category"`
	Condition       string          `json:"condition"`
	Severity        string          `json:"severity"`
	Message         string          `json:"message,omitempty"`
	Action          string          `json:"action,omitempty"`
	Enabled         bool            `json:"enabled"`
	Metadata        rules.Metadata  `json:"metadata"`
	OperationID     *string         `json:"operation_id,omitempty"`
	CreatedBy       string          `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	LastEvaluatedAt *time.Time      `json:"last_evaluated_at,omitempty"`
	LastStatus      rules.Status    `json:"last_status"`
	LastPayload     *rules.Snapshot `json:"last_payload,omitempty"`
	LastFiredAt     *time.Time      `json:"last_fired_at,omitempty"`
}

// RulesListResponse is the response for listing rules.
type RulesListResponse struct {
	Rules []RuleResponse `json:"rules"`
}

// TelemetryUpsertRequest is the ingestion pipeline's entry point: a
// batch of source readings. A null value marks a source with no current
// observation.
type TelemetryUpsertRequest struct {
	Readings map[string]*float64 `json:"readings"`
}

func ruleResponse(r *rules.Rule) RuleResponse {
	return RuleResponse{
		ID:              r.ID,
		Category:        r.Category,
		Condition:       r.Condition,
		Severity:        r.Severity,
		Message:         r.Message,
		Action:          r.Action,
		Enabled:         r.Enabled,
		Metadata:        r.Metadata,
		OperationID:     r.OperationID,
		CreatedBy:       r.CreatedBy,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		LastEvaluatedAt: r.LastEvaluatedAt,
		LastStatus:      r.LastStatus,
		LastPayload:     r.LastPayload,
		LastFiredAt:     r.LastFiredAt,
	}
}
