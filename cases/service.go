// Package cases turns extraction results into review cases, at most one
// per audit event.
package cases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auditsync/core"
	"auditsync/metrics"
	"auditsync/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service creates cases and their denormalized extraction rows.
type Service struct {
	cases       storage.CaseStorageInterface
	extractions storage.CaseExtractionStorageInterface
	logger      *zap.SugaredLogger
}

// NewService creates a case service.
func NewService(cases storage.CaseStorageInterface, extractions storage.CaseExtractionStorageInterface, logger *zap.SugaredLogger) *Service {
	return &Service{cases: cases, extractions: extractions, logger: logger}
}

// EnsureCase creates an open, unreviewed case for the event carrying the
// extracted values, unless one already exists or there is nothing to
// record. Losing a duplicate-insert race to another consumer counts as
// "already exists". Returns the case id, or empty when no case was made.
func (s *Service) EnsureCase(ctx context.Context, event *core.AuditEvent, values []core.ExtractedValue) (string, error) {
	if len(values) == 0 {
		return "", nil
	}

	exists, err := s.cases.ExistsForEvent(ctx, event.ID)
	if err != nil {
		return "", fmt.Errorf("failed to check for existing case: %w", err)
	}
	if exists {
		metrics.CaseDuplicates.Inc()
		s.logger.Debugf("Case already exists for audit event %s", event.ID)
		return "", nil
	}

	now := time.Now().UTC()
	c := &core.Case{
		ID:         uuid.NewString(),
		AuditLogID: event.ID,
		Status:     core.CaseStatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	caseID, err := s.cases.Create(ctx, c)
	if errors.Is(err, storage.ErrDuplicateCase) {
		metrics.CaseDuplicates.Inc()
		s.logger.Debugf("Lost case creation race for audit event %s", event.ID)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to create case: %w", err)
	}

	rows := make([]core.CaseExtraction, 0, len(values))
	for _, v := range values {
		rows = append(rows, core.CaseExtraction{
			ID:           uuid.NewString(),
			CaseID:       caseID,
			AuditLogID:   event.ID,
			RuleID:       v.RuleID,
			RuleName:     v.RuleName,
			RegexPattern: v.RegexPattern,
			SourceField:  v.SourceField,
			FieldValue:   v.Value,
			ExtractedAt:  now,
		})
	}

	if _, err := s.extractions.CreateBatch(ctx, rows); err != nil {
		return "", fmt.Errorf("failed to store extractions for case %s: %w", caseID, err)
	}

	metrics.CasesCreated.Inc()
	s.logger.Infof("Created case %s for audit event %s with %d extraction(s)", caseID, event.ID, len(rows))
	return caseID, nil
}
