package storage

import "errors"

// Storage error constants
var (
	// ErrTargetNotFound is returned when a target is not found
	ErrTargetNotFound = errors.New("target not found")

	// ErrRuleNotFound is returned when an extraction rule is not found
	ErrRuleNotFound = errors.New("rule not found")

	// ErrEventNotFound is returned when an audit event is not found
	ErrEventNotFound = errors.New("audit event not found")

	// ErrCaseNotFound is returned when a case is not found
	ErrCaseNotFound = errors.New("case not found")

	// ErrDuplicateCase is returned when a case already exists for the
	// audit event. The unique constraint on cases.audit_log_id is the
	// final arbiter against concurrent duplicate inserts; callers treat
	// this error as "case already exists", not as a failure.
	ErrDuplicateCase = errors.New("case already exists for audit event")

	// ErrDuplicateTarget is returned when a target with the same name already exists
	ErrDuplicateTarget = errors.New("target with this name already exists")

	// ErrConstraintViolation is returned for other database constraint violations
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrDatabaseClosed is returned when attempting to use a closed database connection
	ErrDatabaseClosed = errors.New("database is closed")
)
