package storage

import (
	"context"
	"sync"

	"auditsync/core"
)

// In-memory storage implementations for testing. They are safe for
// concurrent use and support error injection so tests can simulate store
// outages.

// MockTargetStorage implements TargetStorageInterface for testing
type MockTargetStorage struct {
	mu      sync.Mutex
	targets map[string]core.Target
	FailAll error // when set, every call returns this error
}

func NewMockTargetStorage(names ...string) *MockTargetStorage {
	m := &MockTargetStorage{targets: make(map[string]core.Target)}
	for _, name := range names {
		m.targets[name] = core.Target{ID: "target-" + name, Name: name}
	}
	return m
}

func (m *MockTargetStorage) Exists(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return false, m.FailAll
	}
	_, ok := m.targets[name]
	return ok, nil
}

func (m *MockTargetStorage) GetByName(ctx context.Context, name string) (*core.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return nil, m.FailAll
	}
	t, ok := m.targets[name]
	if !ok {
		return nil, ErrTargetNotFound
	}
	return &t, nil
}

func (m *MockTargetStorage) Create(ctx context.Context, target *core.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return m.FailAll
	}
	if _, ok := m.targets[target.Name]; ok {
		return ErrDuplicateTarget
	}
	m.targets[target.Name] = *target
	return nil
}

func (m *MockTargetStorage) List(ctx context.Context) ([]core.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return nil, m.FailAll
	}
	targets := make([]core.Target, 0, len(m.targets))
	for _, t := range m.targets {
		targets = append(targets, t)
	}
	return targets, nil
}

// MockRuleStorage implements RuleStorageInterface for testing
type MockRuleStorage struct {
	mu        sync.Mutex
	rules     map[string][]core.ExtractionRule // keyed by target name
	LoadCount int                              // number of GetActiveRulesByTarget calls
	FailAll   error
}

func NewMockRuleStorage() *MockRuleStorage {
	return &MockRuleStorage{rules: make(map[string][]core.ExtractionRule)}
}

// SetRules replaces the rule set for a target.
func (m *MockRuleStorage) SetRules(targetName string, rules []core.ExtractionRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[targetName] = rules
}

func (m *MockRuleStorage) GetActiveRulesByTarget(ctx context.Context, targetName string) ([]core.ExtractionRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoadCount++
	if m.FailAll != nil {
		return nil, m.FailAll
	}
	var active []core.ExtractionRule
	for _, r := range m.rules[targetName] {
		if r.IsActive {
			active = append(active, r)
		}
	}
	return active, nil
}

func (m *MockRuleStorage) GetRulesByTarget(ctx context.Context, targetName string) ([]core.ExtractionRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return nil, m.FailAll
	}
	return m.rules[targetName], nil
}

func (m *MockRuleStorage) CreateRule(ctx context.Context, rule *core.ExtractionRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return m.FailAll
	}
	m.rules[rule.TargetName] = append(m.rules[rule.TargetName], *rule)
	return nil
}

// MockEventStorage implements EventStorageInterface for testing
type MockEventStorage struct {
	mu       sync.Mutex
	counters map[string]int64
	Events   map[string]core.AuditEvent
	FailNext error // consumed by the next Upsert call
	FailAll  error
}

func NewMockEventStorage() *MockEventStorage {
	return &MockEventStorage{
		counters: make(map[string]int64),
		Events:   make(map[string]core.AuditEvent),
	}
}

func (m *MockEventStorage) Upsert(ctx context.Context, event *core.AuditEvent, partition int, offset string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return m.FailAll
	}
	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return err
	}
	m.counters[event.ID]++
	m.Events[event.ID] = *event
	return nil
}

func (m *MockEventStorage) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return false, m.FailAll
	}
	return m.counters[eventID] > 0, nil
}

func (m *MockEventStorage) ProcessCounter(ctx context.Context, eventID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return 0, m.FailAll
	}
	counter, ok := m.counters[eventID]
	if !ok {
		return 0, ErrEventNotFound
	}
	return counter, nil
}

// MockCaseStorage implements CaseStorageInterface for testing
type MockCaseStorage struct {
	mu      sync.Mutex
	byEvent map[string]core.Case
	FailAll error

	// ConflictOnCreate simulates a concurrent insert winning the race:
	// Create returns ErrDuplicateCase even though ExistsForEvent said no.
	ConflictOnCreate bool
}

func NewMockCaseStorage() *MockCaseStorage {
	return &MockCaseStorage{byEvent: make(map[string]core.Case)}
}

func (m *MockCaseStorage) ExistsForEvent(ctx context.Context, auditLogID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return false, m.FailAll
	}
	_, ok := m.byEvent[auditLogID]
	return ok, nil
}

func (m *MockCaseStorage) Create(ctx context.Context, c *core.Case) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return "", m.FailAll
	}
	if m.ConflictOnCreate {
		return "", ErrDuplicateCase
	}
	if _, ok := m.byEvent[c.AuditLogID]; ok {
		return "", ErrDuplicateCase
	}
	m.byEvent[c.AuditLogID] = *c
	return c.ID, nil
}

func (m *MockCaseStorage) GetByID(ctx context.Context, caseID string) (*core.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byEvent {
		if c.ID == caseID {
			return &c, nil
		}
	}
	return nil, ErrCaseNotFound
}

func (m *MockCaseStorage) ListOpen(ctx context.Context, limit, offset int) ([]core.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cases []core.Case
	for _, c := range m.byEvent {
		if c.Status == core.CaseStatusOpen {
			cases = append(cases, c)
		}
	}
	return cases, nil
}

// CaseCount returns the number of stored cases.
func (m *MockCaseStorage) CaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byEvent)
}

// MockCaseExtractionStorage implements CaseExtractionStorageInterface for testing
type MockCaseExtractionStorage struct {
	mu          sync.Mutex
	Extractions []core.CaseExtraction
	FailAll     error
}

func NewMockCaseExtractionStorage() *MockCaseExtractionStorage {
	return &MockCaseExtractionStorage{}
}

func (m *MockCaseExtractionStorage) CreateBatch(ctx context.Context, extractions []core.CaseExtraction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return 0, m.FailAll
	}
	m.Extractions = append(m.Extractions, extractions...)
	return len(extractions), nil
}

func (m *MockCaseExtractionStorage) GetByCase(ctx context.Context, caseID string) ([]core.CaseExtraction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return nil, m.FailAll
	}
	var result []core.CaseExtraction
	for _, e := range m.Extractions {
		if e.CaseID == caseID {
			result = append(result, e)
		}
	}
	return result, nil
}
