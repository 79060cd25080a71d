package consume

import (
	"context"
	"fmt"

	"auditsync/core"
	"auditsync/metrics"
	"auditsync/storage"

	"go.uber.org/zap"
)

// TargetGate decides whether an event should be processed at all. Events
// without a target, or naming a target that is not registered, are
// skipped and their offsets committed; they are not errors.
type TargetGate struct {
	targets storage.TargetStorageInterface
	logger  *zap.SugaredLogger
}

// NewTargetGate creates a target gate backed by the target store.
func NewTargetGate(targets storage.TargetStorageInterface, logger *zap.SugaredLogger) *TargetGate {
	return &TargetGate{targets: targets, logger: logger}
}

// Eligible reports whether the event names a registered target. A store
// failure propagates so the caller retries instead of silently dropping
// the record.
func (g *TargetGate) Eligible(ctx context.Context, event *core.AuditEvent) (bool, error) {
	if event.Target == "" {
		metrics.RecordsSkipped.WithLabelValues("no_target").Inc()
		g.logger.Debugf("Event %s has no target, skipping", event.ID)
		return false, nil
	}

	exists, err := g.targets.Exists(ctx, event.Target)
	if err != nil {
		return false, fmt.Errorf("failed to check target %s: %w", event.Target, err)
	}
	if !exists {
		metrics.RecordsSkipped.WithLabelValues("unknown_target").Inc()
		g.logger.Warnf("Event %s names unknown target %s, skipping", event.ID, event.Target)
		return false, nil
	}
	return true, nil
}
