package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"auditsync/core"

	"go.uber.org/zap"
)

// SQLiteCaseStorage handles case persistence in SQLite
type SQLiteCaseStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteCaseStorage creates a new SQLite case storage handler
func NewSQLiteCaseStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteCaseStorage {
	return &SQLiteCaseStorage{sqlite: sqlite, logger: logger}
}

// ExistsForEvent reports whether a case already exists for the audit event.
func (scs *SQLiteCaseStorage) ExistsForEvent(ctx context.Context, auditLogID string) (bool, error) {
	var count int
	err := scs.sqlite.ReadDB.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM cases WHERE audit_log_id = ?", auditLogID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check case existence for %s: %w", auditLogID, err)
	}
	return count > 0, nil
}

// Create inserts a new case. The unique constraint on audit_log_id
// arbitrates concurrent duplicate inserts from other consumer processes;
// such a violation surfaces as ErrDuplicateCase so callers can downgrade
// it to "already exists".
func (scs *SQLiteCaseStorage) Create(ctx context.Context, c *core.Case) (string, error) {
	_, err := scs.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO cases
			(id, audit_log_id, case_status, valid, created_at, updated_at,
			 resolved_at, resolved_by, resolution_notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AuditLogID, c.Status, c.Valid, c.CreatedAt, c.UpdatedAt,
		c.ResolvedAt, c.ResolvedBy, c.ResolutionNotes)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", ErrDuplicateCase
		}
		return "", fmt.Errorf("failed to create case for audit event %s: %w", c.AuditLogID, err)
	}

	scs.logger.Debugf("Created case %s for audit event %s", c.ID, c.AuditLogID)
	return c.ID, nil
}

// GetByID retrieves a case.
func (scs *SQLiteCaseStorage) GetByID(ctx context.Context, caseID string) (*core.Case, error) {
	var c core.Case
	err := scs.sqlite.ReadDB.QueryRowContext(ctx, `
		SELECT id, audit_log_id, case_status, valid, created_at, updated_at,
		       resolved_at, resolved_by, resolution_notes
		FROM cases
		WHERE id = ?`, caseID).
		Scan(&c.ID, &c.AuditLogID, &c.Status, &c.Valid, &c.CreatedAt, &c.UpdatedAt,
			&c.ResolvedAt, &c.ResolvedBy, &c.ResolutionNotes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case %s: %w", caseID, err)
	}
	return &c, nil
}

// ListOpen returns open cases, newest first.
func (scs *SQLiteCaseStorage) ListOpen(ctx context.Context, limit, offset int) ([]core.Case, error) {
	rows, err := scs.sqlite.ReadDB.QueryContext(ctx, `
		SELECT id, audit_log_id, case_status, valid, created_at, updated_at,
		       resolved_at, resolved_by, resolution_notes
		FROM cases
		WHERE case_status = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, core.CaseStatusOpen, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query open cases: %w", err)
	}
	defer rows.Close()

	var cases []core.Case
	for rows.Next() {
		var c core.Case
		if err := rows.Scan(&c.ID, &c.AuditLogID, &c.Status, &c.Valid, &c.CreatedAt,
			&c.UpdatedAt, &c.ResolvedAt, &c.ResolvedBy, &c.ResolutionNotes); err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// SQLiteCaseExtractionStorage handles the denormalized extraction rows
type SQLiteCaseExtractionStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteCaseExtractionStorage creates a new case extraction storage handler
func NewSQLiteCaseExtractionStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteCaseExtractionStorage {
	return &SQLiteCaseExtractionStorage{sqlite: sqlite, logger: logger}
}

// CreateBatch inserts all extraction rows in one transaction and returns
// the number inserted.
func (sce *SQLiteCaseExtractionStorage) CreateBatch(ctx context.Context, extractions []core.CaseExtraction) (int, error) {
	if len(extractions) == 0 {
		return 0, nil
	}

	tx, err := sce.sqlite.WriteDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO case_extractions
			(id, case_id, audit_log_id, rule_id, rule_name, regex_pattern,
			 source_field, field_value, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare extraction insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range extractions {
		if _, err := stmt.ExecContext(ctx, e.ID, e.CaseID, e.AuditLogID, e.RuleID,
			e.RuleName, e.RegexPattern, e.SourceField, e.FieldValue, e.ExtractedAt); err != nil {
			return 0, fmt.Errorf("failed to insert extraction for case %s: %w", e.CaseID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit extraction batch: %w", err)
	}

	sce.logger.Debugf("Created %d extraction(s) for case %s", len(extractions), extractions[0].CaseID)
	return len(extractions), nil
}

// GetByCase returns a case's extraction rows in insertion order.
func (sce *SQLiteCaseExtractionStorage) GetByCase(ctx context.Context, caseID string) ([]core.CaseExtraction, error) {
	rows, err := sce.sqlite.ReadDB.QueryContext(ctx, `
		SELECT id, case_id, audit_log_id, rule_id, rule_name, regex_pattern,
		       source_field, field_value, extracted_at
		FROM case_extractions
		WHERE case_id = ?
		ORDER BY rowid`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query extractions for case %s: %w", caseID, err)
	}
	defer rows.Close()

	var extractions []core.CaseExtraction
	for rows.Next() {
		var e core.CaseExtraction
		var fieldValue sql.NullString
		if err := rows.Scan(&e.ID, &e.CaseID, &e.AuditLogID, &e.RuleID, &e.RuleName,
			&e.RegexPattern, &e.SourceField, &fieldValue, &e.ExtractedAt); err != nil {
			return nil, fmt.Errorf("failed to scan extraction: %w", err)
		}
		e.FieldValue = fieldValue.String
		extractions = append(extractions, e)
	}
	return extractions, rows.Err()
}
