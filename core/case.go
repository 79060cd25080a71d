package core

import "time"

// Case status values. A case starts OPEN and is moved through ASSIGNED
// and RESOLVED by reviewers outside this subsystem.
const (
	CaseStatusOpen     = "OPEN"
	CaseStatusAssigned = "ASSIGNED"
	CaseStatusResolved = "RESOLVED"
)

// Case validity verdicts set by manual review. A freshly created case has
// no verdict (nil Valid).
const (
	CaseValidYes = "YES"
	CaseValidNo  = "NO"
)

// Case is a unit of human review, created at most once per audit event
// that produced a non-empty extraction set. The store enforces the
// at-most-once invariant with a unique constraint on AuditLogID.
type Case struct {
	ID         string `json:"id"`
	AuditLogID string `json:"audit_log_id"`
	Status     string `json:"status"`

	// Valid is the review verdict: YES, NO, or nil when unreviewed.
	// Always nil at creation.
	Valid *string `json:"valid,omitempty"`

	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      *string    `json:"resolved_by,omitempty"`
	ResolutionNotes *string    `json:"resolution_notes,omitempty"`
}

// CaseExtraction is one extracted value attached to a case, with the rule
// metadata copied at extraction time so later rule edits do not alter
// historical case data.
type CaseExtraction struct {
	ID           string    `json:"id"`
	CaseID       string    `json:"case_id"`
	AuditLogID   string    `json:"audit_log_id"`
	RuleID       string    `json:"rule_id"`
	RuleName     string    `json:"rule_name"`
	RegexPattern string    `json:"regex_pattern"`
	SourceField  string    `json:"source_field"`
	FieldValue   string    `json:"field_value"`
	ExtractedAt  time.Time `json:"extracted_at"`
}
