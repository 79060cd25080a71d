package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditsync_records_consumed_total",
			Help: "Total number of stream records fetched",
		},
	)

	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditsync_records_skipped_total",
			Help: "Total number of records committed without persistence",
		},
		[]string{"reason"}, // decode_error, no_target, unknown_target
	)

	OffsetsCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditsync_offsets_committed_total",
			Help: "Total number of stream offsets committed",
		},
	)

	ProcessingRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditsync_processing_retries_total",
			Help: "Total number of records left uncommitted for redelivery",
		},
	)

	EventsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditsync_events_persisted_total",
			Help: "Total number of audit events upserted",
		},
	)

	ValuesExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditsync_values_extracted_total",
			Help: "Total number of values extracted by rules",
		},
	)

	RequiredRuleFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditsync_required_rule_failures_total",
			Help: "Total number of extraction aborts caused by a required rule not matching",
		},
		[]string{"target"},
	)

	RegexTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditsync_regex_timeouts_total",
			Help: "Total number of rule evaluations abandoned at the match time budget",
		},
		[]string{"target"},
	)

	RegexEvalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditsync_regex_eval_duration_seconds",
			Help:    "Time taken to evaluate one rule pattern",
			Buckets: prometheus.DefBuckets,
		},
	)

	CasesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditsync_cases_created_total",
			Help: "Total number of review cases created",
		},
	)

	CaseDuplicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditsync_case_duplicates_total",
			Help: "Total number of case creations skipped because the case already existed",
		},
	)

	RuleCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditsync_rule_cache_hits_total",
			Help: "Total number of rule cache hits",
		},
	)

	RuleCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditsync_rule_cache_misses_total",
			Help: "Total number of rule cache misses triggering a store load",
		},
	)

	RecordProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditsync_record_processing_duration_seconds",
			Help:    "Time taken to fully process one stream record",
			Buckets: prometheus.DefBuckets,
		},
	)
)
