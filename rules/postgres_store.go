package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed rule store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const ruleColumns = `
	id, category, condition, severity, action, message, enabled, metadata,
	operation_id, created_by, created_at, updated_at,
	last_evaluated_at, last_status, last_payload, last_fired_at`

// Add inserts a new rule.
func (s *PostgresStore) Add(rule *Rule) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM rules WHERE id = $1)
	`, rule.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}

	meta, err := json.Marshal(rule.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode rule metadata: %w", err)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if rule.LastStatus == "" {
		rule.LastStatus = StatusUnknown
	}

	_, err = s.db.Exec(`
		INSERT INTO rules (id, category, condition, severity, action, message,
			enabled, metadata, operation_id, created_by, created_at, updated_at, last_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, rule.ID, rule.Category, rule.Condition, rule.Severity, rule.Action,
		rule.Message, rule.Enabled, meta, rule.OperationID, rule.CreatedBy,
		rule.CreatedAt, rule.UpdatedAt, rule.LastStatus)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// Get retrieves a rule by ID.
func (s *PostgresStore) Get(id string) (*Rule, error) {
	row := s.db.QueryRow(`SELECT `+ruleColumns+` FROM rules WHERE id = $1`, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// List returns all rules ordered by creation time.
func (s *PostgresStore) List() ([]*Rule, error) {
	return s.queryRules(`SELECT ` + ruleColumns + ` FROM rules ORDER BY created_at ASC`)
}

// ListEnabled returns all enabled rules ordered by creation time.
func (s *PostgresStore) ListEnabled() ([]*Rule, error) {
	return s.queryRules(`SELECT ` + ruleColumns + ` FROM rules WHERE enabled = true ORDER BY created_at ASC`)
}

func (s *PostgresStore) queryRules(query string, args ...any) ([]*Rule, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

// Update modifies an existing rule's definition. Evaluation state columns
// are owned by UpdateEvalState and left untouched here.
func (s *PostgresStore) Update(rule *Rule) error {
	meta, err := json.Marshal(rule.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode rule metadata: %w", err)
	}

	rule.UpdatedAt = time.Now()
	result, err := s.db.Exec(`
		UPDATE rules
		SET category = $2, condition = $3, severity = $4, action = $5,
			message = $6, enabled = $7, metadata = $8, operation_id = $9,
			updated_at = $10
		WHERE id = $1
	`, rule.ID, rule.Category, rule.Condition, rule.Severity, rule.Action,
		rule.Message, rule.Enabled, meta, rule.OperationID, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rule %s not found", rule.ID)
	}
	return nil
}

// Delete removes a rule.
func (s *PostgresStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rule %s not found", id)
	}
	return nil
}

// TickSnapshot loads all enabled rules and all telemetry readings inside
// one repeatable-read transaction, so every rule evaluated in a tick sees
// the same telemetry.
func (s *PostgresStore) TickSnapshot() ([]*Rule, map[string]*float64, error) {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin tick snapshot: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT ` + ruleColumns + ` FROM rules WHERE enabled = true ORDER BY created_at ASC`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read rules for tick: %w", err)
	}
	ruleList, err := collectRules(rows)
	rows.Close()
	if err != nil {
		return nil, nil, err
	}

	readings := make(map[string]*float64)
	trows, err := tx.Query(`SELECT source, value FROM telemetry_readings`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read telemetry for tick: %w", err)
	}
	defer trows.Close()
	for trows.Next() {
		var source string
		var value sql.NullFloat64
		if err := trows.Scan(&source, &value); err != nil {
			return nil, nil, fmt.Errorf("failed to scan telemetry reading: %w", err)
		}
		if value.Valid {
			v := value.Float64
			readings[source] = &v
		} else {
			readings[source] = nil
		}
	}
	if err := trows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating telemetry readings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit tick snapshot: %w", err)
	}
	return ruleList, readings, nil
}

// UpdateEvalState writes the outcome of one rule evaluation. last_fired_at
// is refreshed whenever fired is set, i.e. on every alarm tick.
func (s *PostgresStore) UpdateEvalState(id string, at time.Time, status Status, payload *Snapshot, fired bool) error {
	var payloadJSON []byte
	if payload != nil {
		var err error
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode evaluation payload: %w", err)
		}
	}

	result, err := s.db.Exec(`
		UPDATE rules
		SET last_evaluated_at = $2,
			last_status = $3,
			last_payload = $4,
			last_fired_at = CASE WHEN $5 THEN $2 ELSE last_fired_at END
		WHERE id = $1
	`, id, at, status, payloadJSON, fired)
	if err != nil {
		return fmt.Errorf("failed to update evaluation state: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check evaluation state update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rule %s not found", id)
	}
	return nil
}

// Labels joins the process hierarchy names for the rule's operation.
func (s *PostgresStore) Labels(id string) (*HierarchyLabels, error) {
	var labels HierarchyLabels
	var sowID, stage, operation, contract, project sql.NullString
	err := s.db.QueryRow(`
		SELECT sw.id, st.name, o.name, c.name, p.name
		FROM rules r
		LEFT JOIN operations o ON o.id = r.operation_id
		LEFT JOIN stages st ON st.id = o.stage_id
		LEFT JOIN sows sw ON sw.id = st.sow_id
		LEFT JOIN contracts c ON c.id = sw.contract_id
		LEFT JOIN projects p ON p.id = c.project_id
		WHERE r.id = $1
	`, id).Scan(&sowID, &stage, &operation, &contract, &project)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hierarchy labels: %w", err)
	}
	labels.SOWID = sowID.String
	labels.StageName = stage.String
	labels.OperationName = operation.String
	labels.ContractName = contract.String
	labels.ProjectName = project.String
	return &labels, nil
}

func collectRules(rows *sql.Rows) ([]*Rule, error) {
	var out []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var r Rule
	var meta, payload []byte
	var operationID sql.NullString
	var lastEvaluatedAt, lastFiredAt sql.NullTime
	err := row.Scan(
		&r.ID, &r.Category, &r.Condition, &r.Severity, &r.Action, &r.Message,
		&r.Enabled, &meta, &operationID, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt,
		&lastEvaluatedAt, &r.LastStatus, &payload, &lastFiredAt,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode rule metadata: %w", err)
		}
	}
	if len(payload) > 0 {
		var snap Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("failed to decode last payload: %w", err)
		}
		r.LastPayload = &snap
	}
	if operationID.Valid {
		r.OperationID = &operationID.String
	}
	if lastEvaluatedAt.Valid {
		t := lastEvaluatedAt.Time
		r.LastEvaluatedAt = &t
	}
	if lastFiredAt.Valid {
		t := lastFiredAt.Time
		r.LastFiredAt = &t
	}
	return &r, nil
}
