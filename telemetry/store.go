// Package telemetry holds the read-only process inputs the alarm engine
// evaluates against. Readings are produced and refreshed by the external
// ingestion pipeline; the engine only ever reads them.
package telemetry

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// Reading is one named telemetry source with its last observed value.
// A nil Value means the source is known but has no current observation.
type Reading struct {
	Source    string    `json:"source"`
	Value     *float64  `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store manages telemetry reading persistence.
type Store interface {
	// Upsert inserts or refreshes readings by source name
	Upsert(readings []Reading) error

	// ReadAll returns the last value for every known source
	ReadAll() (map[string]*float64, error)

	// List returns all readings with their update timestamps
	List() ([]Reading, error)
}

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed telemetry store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Upsert inserts or refreshes readings by source name.
func (s *PostgresStore) Upsert(readings []Reading) error {
	for _, r := range readings {
		_, err := s.db.Exec(`
			INSERT INTO telemetry_readings (source, value, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (source) DO UPDATE
			SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		`, r.Source, nullableFloat(r.Value))
		if err != nil {
			return fmt.Errorf("failed to upsert reading %s: %w", r.Source, err)
		}
	}
	return nil
}

// ReadAll returns the last value for every known source.
func (s *PostgresStore) ReadAll() (map[string]*float64, error) {
	rows, err := s.db.Query(`SELECT source, value FROM telemetry_readings`)
	if err != nil {
		return nil, fmt.Errorf("failed to read telemetry: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*float64)
	for rows.Next() {
		var source string
		var value sql.NullFloat64
		if err := rows.Scan(&source, &value); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		if value.Valid {
			v := value.Float64
			out[source] = &v
		} else {
			out[source] = nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating readings: %w", err)
	}
	return out, nil
}

// List returns all readings ordered by source name.
func (s *PostgresStore) List() ([]Reading, error) {
	rows, err := s.db.Query(`SELECT source, value, updated_at FROM telemetry_readings ORDER BY source ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var r Reading
		var value sql.NullFloat64
		if err := rows.Scan(&r.Source, &value, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		if value.Valid {
			v := value.Float64
			r.Value = &v
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating readings: %w", err)
	}
	return out, nil
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// InMemoryStore implements Store using a map, for tests and
// database-less runs.
type InMemoryStore struct {
	readings map[string]Reading
	mu       sync.RWMutex
}

// NewInMemoryStore creates an empty in-memory telemetry store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{readings: make(map[string]Reading)}
}

// Upsert inserts or refreshes readings by source name.
func (s *InMemoryStore) Upsert(readings []Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range readings {
		r.UpdatedAt = time.Now()
		s.readings[r.Source] = r
	}
	return nil
}

// ReadAll returns the last value for every known source.
func (s *InMemoryStore) ReadAll() (map[string]*float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*float64, len(s.readings))
	for k, r := range s.readings {
		out[k] = r.Value
	}
	return out, nil
}

// List returns all readings.
func (s *InMemoryStore) List() ([]Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Reading, 0, len(s.readings))
	for _, r := range s.readings {
		out = append(out, r)
	}
	return out, nil
}
