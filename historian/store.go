// Package historian is the append-only audit trail of alarm transitions.
// Rows are written once on each transition into alarm and never updated
// or deleted, independent of any in-memory subscriber state.
package historian

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/mkarlsen/sitealarm/engine"
	"github.com/mkarlsen/sitealarm/rules"
)

// Entry is one immutable alarm-history row.
type Entry struct {
	ID            string          `json:"id"`
	RuleID        string          `json:"rule_id"`
	Severity      string          `json:"severity"`
	Message       string          `json:"message"`
	Category      string          `json:"category"`
	SOWID         string          `json:"sow_id"`
	StageName     string          `json:"stage_name"`
	OperationName string          `json:"operation_name"`
	ContractName  string          `json:"contract_name"`
	ProjectName   string          `json:"project_name"`
	Payload       *rules.Snapshot `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Store appends alarm transitions and serves recent history to
// dashboards.
type Store interface {
	engine.Historian

	// Recent returns the newest entries, most recent first.
	Recent(limit int) ([]Entry, error)
}

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed historian.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Record appends one audit row for an alarm transition.
func (s *PostgresStore) Record(event *engine.AlarmEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode alarm payload: %w", err)
	}

	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err = s.db.Exec(`
		INSERT INTO alarm_history (id, rule_id, severity, message, category,
			sow_id, stage_name, operation_name, contract_name, project_name,
			payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
	`, id, event.RuleID, event.Severity, event.Message, event.Category,
		event.SOWID, event.StageName, event.OperationName, event.ContractName,
		event.ProjectName, payload)
	if err != nil {
		return fmt.Errorf("failed to append alarm history: %w", err)
	}
	return nil
}

// Recent returns the newest alarm-history entries.
func (s *PostgresStore) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, rule_id, severity, message, category, sow_id, stage_name,
			operation_name, contract_name, project_name, payload, created_at
		FROM alarm_history
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alarm history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.RuleID, &e.Severity, &e.Message,
			&e.Category, &e.SOWID, &e.StageName, &e.OperationName,
			&e.ContractName, &e.ProjectName, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alarm history entry: %w", err)
		}
		if len(payload) > 0 {
			var snap rules.Snapshot
			if err := json.Unmarshal(payload, &snap); err != nil {
				return nil, fmt.Errorf("failed to decode alarm payload: %w", err)
			}
			e.Payload = &snap
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alarm history: %w", err)
	}
	return out, nil
}

// InMemoryStore implements Store using a slice, for tests and
// database-less runs.
type InMemoryStore struct {
	entries []Entry
	mu      sync.RWMutex
}

// NewInMemoryStore creates an empty in-memory historian.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Record appends one entry.
func (s *InMemoryStore) Record(event *engine.AlarmEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	s.entries = append(s.entries, Entry{
		ID:            id,
		RuleID:        event.RuleID,
		Severity:      event.Severity,
		Message:       event.Message,
		Category:      event.Category,
		SOWID:         event.SOWID,
		StageName:     event.StageName,
		OperationName: event.OperationName,
		ContractName:  event.ContractName,
		ProjectName:   event.ProjectName,
		Payload:       event.Payload,
		CreatedAt:     time.Now(),
	})
	return nil
}

// Recent returns the newest entries, most recent first.
func (s *InMemoryStore) Recent(limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}
