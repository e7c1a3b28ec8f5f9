package rules

import (
	"fmt"
	"sync"
	"time"
)

// Store manages rule persistence and retrieval.
type Store interface {
	// Add a new rule
	Add(rule *Rule) error

	// Get a rule by ID
	Get(id string) (*Rule, error)

	// List all rules
	List() ([]*Rule, error)

	// ListEnabled returns all enabled rules
	ListEnabled() ([]*Rule, error)

	// Update an existing rule
	Update(rule *Rule) error

	// Delete a rule
	Delete(id string) error

	// TickSnapshot reads all enabled rules and the current telemetry in
	// one consistent view, so every rule in a tick sees the same readings.
	TickSnapshot() ([]*Rule, map[string]*float64, error)

	// UpdateEvalState persists the outcome of one evaluation. fired
	// additionally stamps last_fired_at, which tracks "most recently
	// seen in alarm" and refreshes on every alarm tick.
	UpdateEvalState(id string, at time.Time, status Status, payload *Snapshot, fired bool) error

	// Labels resolves the display hierarchy for a rule's operation
	// association. Rules without an association get empty labels.
	Labels(id string) (*HierarchyLabels, error)
}

// InMemoryStore implements Store using maps. It backs unit tests and
// database-less development runs.
type InMemoryStore struct {
	rules    map[string]*Rule
	readings map[string]*float64
	labels   map[string]*HierarchyLabels // keyed by operation ID
	mu       sync.RWMutex
}

// NewInMemoryStore creates an empty in-memory rule store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rules:    make(map[string]*Rule),
		readings: make(map[string]*float64),
		labels:   make(map[string]*HierarchyLabels),
	}
}

// Add adds a new rule to the store.
func (s *InMemoryStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if rule.LastStatus == "" {
		rule.LastStatus = StatusUnknown
	}
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

// Get retrieves a rule by ID.
func (s *InMemoryStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	return cloneRule(rule), nil
}

// List returns all rules.
func (s *InMemoryStore) List() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, cloneRule(r))
	}
	return out, nil
}

// ListEnabled returns all enabled rules.
func (s *InMemoryStore) ListEnabled() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Rule
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, cloneRule(r))
		}
	}
	return out, nil
}

// Update modifies an existing rule.
func (s *InMemoryStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("rule %s not found", rule.ID)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.CreatedBy = existing.CreatedBy
	rule.UpdatedAt = time.Now()
	// Evaluation state belongs to the scheduler, not the authoring path.
	rule.LastEvaluatedAt = existing.LastEvaluatedAt
	rule.LastStatus = existing.LastStatus
	rule.LastPayload = existing.LastPayload
	rule.LastFiredAt = existing.LastFiredAt
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

// Delete removes a rule from the store.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule %s not found", id)
	}
	delete(s.rules, id)
	return nil
}

// TickSnapshot returns enabled rules and readings under one lock hold.
func (s *InMemoryStore) TickSnapshot() ([]*Rule, map[string]*float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Rule
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, cloneRule(r))
		}
	}
	readings := make(map[string]*float64, len(s.readings))
	for k, v := range s.readings {
		readings[k] = v
	}
	return out, readings, nil
}

// UpdateEvalState persists an evaluation outcome.
func (s *InMemoryStore) UpdateEvalState(id string, at time.Time, status Status, payload *Snapshot, fired bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, exists := s.rules[id]
	if !exists {
		return fmt.Errorf("rule %s not found", id)
	}
	t := at
	rule.LastEvaluatedAt = &t
	rule.LastStatus = status
	rule.LastPayload = payload
	if fired {
		f := at
		rule.LastFiredAt = &f
	}
	return nil
}

// Labels returns the hierarchy labels for the rule's operation, if any.
func (s *InMemoryStore) Labels(id string) (*HierarchyLabels, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	if rule.OperationID == nil {
		return &HierarchyLabels{}, nil
	}
	if l, ok := s.labels[*rule.OperationID]; ok {
		out := *l
		return &out, nil
	}
	return &HierarchyLabels{}, nil
}

// SetReading seeds a telemetry reading for tests and development runs.
func (s *InMemoryStore) SetReading(source string, value *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[source] = value
}

// SetLabels seeds hierarchy labels for an operation ID.
func (s *InMemoryStore) SetLabels(operationID string, labels HierarchyLabels) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels[operationID] = &labels
}

func cloneRule(r *Rule) *Rule {
	out := *r
	return &out
}
