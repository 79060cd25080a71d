package storage

import (
	"context"

	"auditsync/core"
)

// TargetStorageInterface defines the interface for target storage
type TargetStorageInterface interface {
	Exists(ctx context.Context, name string) (bool, error)
	GetByName(ctx context.Context, name string) (*core.Target, error)
	Create(ctx context.Context, target *core.Target) error
	List(ctx context.Context) ([]core.Target, error)
}

// RuleStorageInterface defines the interface for extraction rule storage.
// Rules are authored externally; the consumer only reads them.
type RuleStorageInterface interface {
	// GetActiveRulesByTarget returns the target's active rules ordered by
	// rule_order ascending, ties broken by id for stability.
	GetActiveRulesByTarget(ctx context.Context, targetName string) ([]core.ExtractionRule, error)

	// GetRulesByTarget returns all of a target's rules, active or not,
	// in the same order. Used by the operator CLI.
	GetRulesByTarget(ctx context.Context, targetName string) ([]core.ExtractionRule, error)

	CreateRule(ctx context.Context, rule *core.ExtractionRule) error
}

// EventStorageInterface defines the interface for audit event storage
type EventStorageInterface interface {
	// Upsert inserts the event or, when the id already exists, updates it
	// and increments its process counter. The stream position is stored
	// alongside for replay diagnostics.
	Upsert(ctx context.Context, event *core.AuditEvent, partition int, offset string) error

	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// ProcessCounter returns how many times the event has been persisted.
	ProcessCounter(ctx context.Context, eventID string) (int64, error)
}

// CaseStorageInterface defines the interface for case storage
type CaseStorageInterface interface {
	ExistsForEvent(ctx context.Context, auditLogID string) (bool, error)

	// Create inserts the case and returns its id. A violation of the
	// unique constraint on audit_log_id surfaces as ErrDuplicateCase.
	Create(ctx context.Context, c *core.Case) (string, error)

	GetByID(ctx context.Context, caseID string) (*core.Case, error)
	ListOpen(ctx context.Context, limit, offset int) ([]core.Case, error)
}

// CaseExtractionStorageInterface defines the interface for the
// denormalized extraction rows attached to cases
type CaseExtractionStorageInterface interface {
	CreateBatch(ctx context.Context, extractions []core.CaseExtraction) (int, error)
	GetByCase(ctx context.Context, caseID string) ([]core.CaseExtraction, error)
}
