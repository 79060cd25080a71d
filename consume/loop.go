package consume

import (
	"context"
	"errors"
	"time"

	"auditsync/cases"
	"auditsync/extract"
	"auditsync/metrics"
	"auditsync/rules"
	"auditsync/storage"
	"auditsync/stream"

	"go.uber.org/zap"
)

// DefaultRetryBackoff is how long the loop waits before retrying a record
// after a transient failure.
const DefaultRetryBackoff = 5 * time.Second

// Loop drives the ingestion pipeline. One loop owns one stream consumer;
// run several processes for horizontal scale, the consumer group splits
// the stream between them.
type Loop struct {
	source  stream.Source
	events  storage.EventStorageInterface
	gate    *TargetGate
	rules   *rules.Cache
	engine  *extract.Engine
	cases   *cases.Service
	backoff time.Duration
	logger  *zap.SugaredLogger
}

// NewLoop wires the pipeline stages together. A non-positive backoff
// falls back to DefaultRetryBackoff.
func NewLoop(source stream.Source, events storage.EventStorageInterface, gate *TargetGate,
	ruleCache *rules.Cache, engine *extract.Engine, caseService *cases.Service,
	backoff time.Duration, logger *zap.SugaredLogger) *Loop {
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	return &Loop{
		source:  source,
		events:  events,
		gate:    gate,
		rules:   ruleCache,
		engine:  engine,
		cases:   caseService,
		backoff: backoff,
		logger:  logger,
	}
}

// Run consumes records until the context is cancelled. A record's offset
// is committed only after the record is fully processed or classified as
// permanently unprocessable; transient failures hold the record and retry
// it after a backoff, so no record is ever lost. Returns nil on
// cancellation.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Ingestion loop started")

	var record *stream.Record
	for {
		if record == nil {
			fetched, err := l.source.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					l.logger.Info("Ingestion loop stopped")
					return nil
				}
				l.logger.Errorf("Failed to fetch record: %v", err)
				if !l.wait(ctx) {
					return nil
				}
				continue
			}
			record = fetched
			metrics.RecordsConsumed.Inc()
		}

		start := time.Now()
		err := l.process(ctx, record)
		metrics.RecordProcessingDuration.Observe(time.Since(start).Seconds())

		switch {
		case err == nil:
		case errors.Is(err, ErrDecode):
			metrics.RecordsSkipped.WithLabelValues("decode_error").Inc()
			l.logger.Warnf("Skipping malformed record at partition %d offset %s: %v",
				record.Partition, record.Offset, err)
		default:
			if ctx.Err() != nil {
				return nil
			}
			metrics.ProcessingRetries.Inc()
			l.logger.Errorf("Failed to process record at partition %d offset %s, retrying in %s: %v",
				record.Partition, record.Offset, l.backoff, err)
			if !l.wait(ctx) {
				return nil
			}
			continue
		}

		if err := l.source.Commit(ctx, record); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.ProcessingRetries.Inc()
			l.logger.Errorf("Failed to commit offset %s, retrying in %s: %v", record.Offset, l.backoff, err)
			if !l.wait(ctx) {
				return nil
			}
			continue
		}
		metrics.OffsetsCommitted.Inc()
		record = nil
	}
}

// process runs one record through decode, gate, persist, extract and case
// creation. Any error except ErrDecode is treated as transient by the
// caller; the offset is withheld and the record retried.
func (l *Loop) process(ctx context.Context, record *stream.Record) error {
	event, err := DecodeEvent(record.Payload)
	if err != nil {
		return err
	}

	eligible, err := l.gate.Eligible(ctx, event)
	if err != nil {
		return err
	}
	if !eligible {
		return nil
	}

	if err := l.events.Upsert(ctx, event, record.Partition, record.Offset); err != nil {
		return err
	}
	metrics.EventsPersisted.Inc()

	ruleSet, err := l.rules.RulesFor(ctx, event.Target)
	if err != nil {
		return err
	}

	values, err := l.engine.Apply(event, ruleSet)
	if err != nil {
		var requiredErr *extract.RequiredRuleError
		if errors.As(err, &requiredErr) {
			l.logger.Warnf("Event %s failed required rule %s, withholding commit", event.ID, requiredErr.RuleName)
		}
		return err
	}

	if _, err := l.cases.EnsureCase(ctx, event, values); err != nil {
		return err
	}

	l.logger.Debugf("Processed event %s from target %s (%d extraction(s))", event.ID, event.Target, len(values))
	return nil
}

// wait sleeps for the retry backoff, returning false when the context is
// cancelled first.
func (l *Loop) wait(ctx context.Context) bool {
	timer := time.NewTimer(l.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
