package consume

import (
	"context"
	"errors"
	"testing"
	"time"

	"auditsync/cases"
	"auditsync/core"
	"auditsync/extract"
	"auditsync/rules"
	"auditsync/storage"
	"auditsync/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const validPayload = `{
	"target": "DB1",
	"sessionId": 1042,
	"entryId": 7,
	"statement": 3,
	"dbUser": "SCOTT",
	"sqlText": "UPDATE subscribers SET msisdn = '964750770' WHERE id = 5"
}`

type pipeline struct {
	source          *stream.MockSource
	targets         *storage.MockTargetStorage
	ruleStore       *storage.MockRuleStorage
	events          *storage.MockEventStorage
	caseStore       *storage.MockCaseStorage
	extractionStore *storage.MockCaseExtractionStorage
	ruleCache       *rules.Cache
	loop            *Loop
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()

	p := &pipeline{
		source:          stream.NewMockSource(),
		targets:         storage.NewMockTargetStorage("DB1"),
		ruleStore:       storage.NewMockRuleStorage(),
		events:          storage.NewMockEventStorage(),
		caseStore:       storage.NewMockCaseStorage(),
		extractionStore: storage.NewMockCaseExtractionStorage(),
	}
	p.ruleStore.SetRules("DB1", []core.ExtractionRule{
		{ID: "r1", TargetName: "DB1", RuleName: "msisdn", SourceField: "text",
			RegexPattern: `msisdn = '(\d+)'`, IsActive: true, RuleOrder: 1},
	})
	p.ruleCache = rules.NewCache(p.ruleStore, logger)

	engine, err := extract.NewEngine(extract.PolicyAllMatches, 100*time.Millisecond, 64, logger)
	require.NoError(t, err)

	p.loop = NewLoop(p.source, p.events,
		NewTargetGate(p.targets, logger),
		p.ruleCache, engine,
		cases.NewService(p.caseStore, p.extractionStore, logger),
		10*time.Millisecond, logger)
	return p
}

// run starts the loop and returns a stop function that cancels it and
// waits for a clean exit.
func (p *pipeline) run(t *testing.T) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.loop.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("loop did not stop after cancellation")
		}
	}
}

func (p *pipeline) committed() int { return len(p.source.Committed()) }

func TestLoop_HappyPath(t *testing.T) {
	p := newPipeline(t)
	stop := p.run(t)
	defer stop()

	p.source.Push(validPayload)

	require.Eventually(t, func() bool { return p.committed() == 1 }, 2*time.Second, 5*time.Millisecond)

	counter, err := p.events.ProcessCounter(context.Background(), "1042_7_3")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counter)
	assert.Equal(t, 1, p.caseStore.CaseCount())
	require.Len(t, p.extractionStore.Extractions, 1)
	assert.Equal(t, "964750770", p.extractionStore.Extractions[0].FieldValue)
	assert.Equal(t, "msisdn", p.extractionStore.Extractions[0].RuleName)
}

func TestLoop_RedeliveryIsIdempotent(t *testing.T) {
	p := newPipeline(t)
	stop := p.run(t)
	defer stop()

	// The same logical record delivered twice: both offsets commit, the
	// event row is written once with its counter bumped, and only one
	// case exists.
	p.source.Push(validPayload, validPayload)

	require.Eventually(t, func() bool { return p.committed() == 2 }, 2*time.Second, 5*time.Millisecond)

	counter, err := p.events.ProcessCounter(context.Background(), "1042_7_3")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counter)
	assert.Equal(t, 1, p.caseStore.CaseCount())
	assert.Len(t, p.extractionStore.Extractions, 1)
}

func TestLoop_MalformedRecordCommittedAndSkipped(t *testing.T) {
	p := newPipeline(t)
	stop := p.run(t)
	defer stop()

	p.source.Push("{not json", validPayload)

	require.Eventually(t, func() bool { return p.committed() == 2 }, 2*time.Second, 5*time.Millisecond)

	// Only the valid record was persisted.
	processed, err := p.events.IsProcessed(context.Background(), "1042_7_3")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, 1, p.caseStore.CaseCount())
}

func TestLoop_BlankAndUnknownTargetsCommittedWithoutPersisting(t *testing.T) {
	p := newPipeline(t)
	stop := p.run(t)
	defer stop()

	p.source.Push(
		`{"sessionId":1,"entryId":1,"statement":1,"sqlText":"select 1"}`,
		`{"target":"Unknown","sessionId":2,"entryId":1,"statement":1,"sqlText":"select 1"}`,
	)

	require.Eventually(t, func() bool { return p.committed() == 2 }, 2*time.Second, 5*time.Millisecond)

	for _, id := range []string{"1_1_1", "2_1_1"} {
		processed, err := p.events.IsProcessed(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, processed, id)
	}
	assert.Zero(t, p.caseStore.CaseCount())
}

func TestLoop_KnownTargetWithoutMatchesPersistsWithoutCase(t *testing.T) {
	p := newPipeline(t)
	stop := p.run(t)
	defer stop()

	// The rule is optional and will not match this statement.
	p.source.Push(`{"target":"DB1","sessionId":9,"entryId":1,"statement":1,"sqlText":"DROP TABLE t"}`)

	require.Eventually(t, func() bool { return p.committed() == 1 }, 2*time.Second, 5*time.Millisecond)

	processed, err := p.events.IsProcessed(context.Background(), "9_1_1")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Zero(t, p.caseStore.CaseCount())
	assert.Empty(t, p.extractionStore.Extractions)
}

func TestLoop_RequiredRuleFailureWithholdsCommit(t *testing.T) {
	p := newPipeline(t)
	p.ruleStore.SetRules("DB1", []core.ExtractionRule{
		{ID: "r1", TargetName: "DB1", RuleName: "msisdn", SourceField: "text",
			RegexPattern: `msisdn = '(\d+)'`, IsRequired: true, IsActive: true, RuleOrder: 1},
	})
	stop := p.run(t)
	defer stop()

	p.source.Push(`{"target":"DB1","sessionId":9,"entryId":1,"statement":1,"sqlText":"DROP TABLE t"}`)

	// The event is persisted on every attempt but the offset is never
	// committed, so the record keeps being retried.
	require.Eventually(t, func() bool {
		counter, err := p.events.ProcessCounter(context.Background(), "9_1_1")
		return err == nil && counter >= 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, p.committed())

	// The rule author relaxes the rule to optional; after the cache is
	// refreshed the stuck record goes through.
	p.ruleStore.SetRules("DB1", []core.ExtractionRule{
		{ID: "r1", TargetName: "DB1", RuleName: "msisdn", SourceField: "text",
			RegexPattern: `msisdn = '(\d+)'`, IsActive: true, RuleOrder: 1},
	})
	p.ruleCache.Invalidate("DB1")

	require.Eventually(t, func() bool { return p.committed() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestLoop_TransientStoreFailureRetriesSameRecord(t *testing.T) {
	p := newPipeline(t)
	p.events.FailNext = errors.New("database is locked")
	stop := p.run(t)
	defer stop()

	p.source.Push(validPayload)

	require.Eventually(t, func() bool { return p.committed() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, p.caseStore.CaseCount())
}

func TestLoop_CommitFailureRetries(t *testing.T) {
	p := newPipeline(t)
	p.source.FailCommit = errors.New("connection reset")
	stop := p.run(t)
	defer stop()

	p.source.Push(validPayload)

	require.Eventually(t, func() bool { return p.committed() == 1 }, 2*time.Second, 5*time.Millisecond)

	// The record was reprocessed before the successful commit.
	counter, err := p.events.ProcessCounter(context.Background(), "1042_7_3")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counter)
	assert.Equal(t, 1, p.caseStore.CaseCount())
}

func TestLoop_StopsCleanlyWhenIdle(t *testing.T) {
	p := newPipeline(t)
	stop := p.run(t)
	stop()
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantID  string
		wantErr bool
	}{
		{name: "derives composite id", payload: `{"sessionId":10,"entryId":2,"statement":1}`, wantID: "10_2_1"},
		{name: "keeps producer id", payload: `{"id":"custom","sessionId":10,"entryId":2,"statement":1}`, wantID: "custom"},
		{name: "case-insensitive fields", payload: `{"SESSIONID":10,"ENTRYID":2,"STATEMENT":1}`, wantID: "10_2_1"},
		{name: "empty payload", payload: "", wantErr: true},
		{name: "invalid json", payload: "{", wantErr: true},
		{name: "wrong type", payload: `{"sessionId":"ten"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := DecodeEvent([]byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrDecode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, event.ID)
		})
	}
}

func TestTargetGate_StoreFailurePropagates(t *testing.T) {
	targets := storage.NewMockTargetStorage("DB1")
	targets.FailAll = errors.New("database is locked")
	gate := NewTargetGate(targets, zaptest.NewLogger(t).Sugar())

	_, err := gate.Eligible(context.Background(), &core.AuditEvent{ID: "e1", Target: "DB1"})
	assert.Error(t, err)
}
