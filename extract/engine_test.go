package extract

import (
	"strings"
	"testing"
	"time"

	"auditsync/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestEngine(t *testing.T, policy Policy) *Engine {
	t.Helper()
	engine, err := NewEngine(policy, 100*time.Millisecond, 64, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return engine
}

func msisdnRule(required bool) core.ExtractionRule {
	return core.ExtractionRule{
		ID: "r1", TargetID: "target-DB1", TargetName: "DB1",
		RuleName: "msisdn", SourceField: "text",
		RegexPattern: `msisdn = '(\d+)'`,
		IsRequired:   required, IsActive: true, RuleOrder: 1,
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		name    string
		want    Policy
		wantErr bool
	}{
		{name: "all-matches", want: PolicyAllMatches},
		{name: "first-match", want: PolicyFirstMatch},
		{name: "everything", wantErr: true},
		{name: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.name)
		if tt.wantErr {
			assert.Error(t, err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got)
	}
}

func TestEngine_CapturingGroupValue(t *testing.T) {
	engine := newTestEngine(t, PolicyAllMatches)
	event := &core.AuditEvent{
		ID:      "1042_7_3",
		SQLText: "UPDATE subscribers SET msisdn = '964750770' WHERE id = 5",
	}

	values, err := engine.Apply(event, []core.ExtractionRule{msisdnRule(true)})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "964750770", values[0].Value)
	assert.Equal(t, "msisdn", values[0].RuleName)
	assert.Equal(t, "r1", values[0].RuleID)
	assert.Equal(t, "text", values[0].SourceField)
}

func TestEngine_WholeMatchWithoutGroup(t *testing.T) {
	engine := newTestEngine(t, PolicyAllMatches)
	event := &core.AuditEvent{ID: "e1", DBUser: "SCOTT_APP"}
	rule := core.ExtractionRule{
		ID: "r1", TargetName: "DB1", RuleName: "user",
		SourceField: "dbuser", RegexPattern: `\w+_APP`, IsActive: true,
	}

	values, err := engine.Apply(event, []core.ExtractionRule{rule})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "SCOTT_APP", values[0].Value)
}

func TestEngine_AllMatchesEmitsEveryOccurrence(t *testing.T) {
	engine := newTestEngine(t, PolicyAllMatches)
	event := &core.AuditEvent{
		ID:      "e1",
		SQLText: "INSERT INTO t VALUES ('111'), ('222'), ('333')",
	}
	rule := core.ExtractionRule{
		ID: "r1", TargetName: "DB1", RuleName: "number",
		SourceField: "sqltext", RegexPattern: `'(\d+)'`, IsActive: true,
	}

	values, err := engine.Apply(event, []core.ExtractionRule{rule})
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, "111", values[0].Value)
	assert.Equal(t, "222", values[1].Value)
	assert.Equal(t, "333", values[2].Value)
}

func TestEngine_FirstMatchOverwritesByRuleName(t *testing.T) {
	engine := newTestEngine(t, PolicyFirstMatch)
	event := &core.AuditEvent{ID: "e1", SQLText: "a=1 b=2 a=3"}
	rules := []core.ExtractionRule{
		{ID: "r1", TargetName: "DB1", RuleName: "field", SourceField: "sqltext",
			RegexPattern: `a=(\d)`, IsActive: true, RuleOrder: 1},
		{ID: "r2", TargetName: "DB1", RuleName: "other", SourceField: "sqltext",
			RegexPattern: `b=(\d)`, IsActive: true, RuleOrder: 2},
		{ID: "r3", TargetName: "DB1", RuleName: "field", SourceField: "sqltext",
			RegexPattern: `a=\d b=\d a=(\d)`, IsActive: true, RuleOrder: 3},
	}

	values, err := engine.Apply(event, rules)
	require.NoError(t, err)
	require.Len(t, values, 2)
	// The later rule with the same name replaced the earlier value in place.
	assert.Equal(t, "field", values[0].RuleName)
	assert.Equal(t, "3", values[0].Value)
	assert.Equal(t, "r3", values[0].RuleID)
	assert.Equal(t, "other", values[1].RuleName)
	assert.Equal(t, "2", values[1].Value)
}

func TestEngine_FirstMatchStopsAtFirstOccurrence(t *testing.T) {
	engine := newTestEngine(t, PolicyFirstMatch)
	event := &core.AuditEvent{ID: "e1", SQLText: "x=1 x=2 x=3"}
	rule := core.ExtractionRule{
		ID: "r1", TargetName: "DB1", RuleName: "x",
		SourceField: "sqltext", RegexPattern: `x=(\d)`, IsActive: true,
	}

	values, err := engine.Apply(event, []core.ExtractionRule{rule})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "1", values[0].Value)
}

func TestEngine_EmptySourceSkippedEvenWhenRequired(t *testing.T) {
	engine := newTestEngine(t, PolicyAllMatches)
	event := &core.AuditEvent{ID: "e1", SQLText: ""}
	rule := core.ExtractionRule{
		ID: "r1", TargetName: "DB1", RuleName: "number",
		SourceField: "sqltext", RegexPattern: `\d+`,
		IsRequired: true, IsActive: true,
	}

	values, err := engine.Apply(event, []core.ExtractionRule{rule})
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestEngine_UnknownSourceFieldSkipped(t *testing.T) {
	engine := newTestEngine(t, PolicyAllMatches)
	event := &core.AuditEvent{ID: "e1", SQLText: "select 1"}
	rule := core.ExtractionRule{
		ID: "r1", TargetName: "DB1", RuleName: "bad",
		SourceField: "no_such_field", RegexPattern: `.*`,
		IsRequired: true, IsActive: true,
	}

	values, err := engine.Apply(event, []core.ExtractionRule{rule})
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestEngine_RequiredRuleWithoutMatchFails(t *testing.T) {
	engine := newTestEngine(t, PolicyAllMatches)
	event := &core.AuditEvent{ID: "e1", SQLText: "no digits here"}
	rules := []core.ExtractionRule{
		{ID: "r1", TargetName: "DB1", RuleName: "number", SourceField: "sqltext",
			RegexPattern: `\d+`, IsRequired: true, IsActive: true, RuleOrder: 1},
	}

	_, err := engine.Apply(event, rules)
	require.Error(t, err)
	var requiredErr *RequiredRuleError
	require.ErrorAs(t, err, &requiredErr)
	assert.Equal(t, "number", requiredErr.RuleName)

	// The same rule marked optional is simply skipped.
	rules[0].IsRequired = false
	values, err := engine.Apply(event, rules)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestEngine_RulesAppliedInSliceOrder(t *testing.T) {
	engine := newTestEngine(t, PolicyAllMatches)
	event := &core.AuditEvent{ID: "e1", SQLText: "alpha beta gamma"}
	rules := []core.ExtractionRule{
		{ID: "r1", TargetName: "DB1", RuleName: "first", SourceField: "sqltext",
			RegexPattern: `alpha`, IsActive: true, RuleOrder: 1},
		{ID: "r2", TargetName: "DB1", RuleName: "second", SourceField: "sqltext",
			RegexPattern: `beta`, IsActive: true, RuleOrder: 2},
		{ID: "r3", TargetName: "DB1", RuleName: "third", SourceField: "sqltext",
			RegexPattern: `gamma`, IsActive: true, RuleOrder: 3},
	}

	values, err := engine.Apply(event, rules)
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, "first", values[0].RuleName)
	assert.Equal(t, "second", values[1].RuleName)
	assert.Equal(t, "third", values[2].RuleName)
}

func TestEngine_InvalidPatternSkipped(t *testing.T) {
	engine := newTestEngine(t, PolicyAllMatches)
	event := &core.AuditEvent{ID: "e1", SQLText: "select 1"}
	rules := []core.ExtractionRule{
		{ID: "r1", TargetName: "DB1", RuleName: "broken", SourceField: "sqltext",
			RegexPattern: `(unclosed`, IsActive: true, RuleOrder: 1},
		{ID: "r2", TargetName: "DB1", RuleName: "number", SourceField: "sqltext",
			RegexPattern: `(\d)`, IsActive: true, RuleOrder: 2},
	}

	values, err := engine.Apply(event, rules)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "1", values[0].Value)
}

func TestEngine_PathologicalPatternTreatedAsNoMatch(t *testing.T) {
	engine, err := NewEngine(PolicyAllMatches, time.Millisecond, 64, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	event := &core.AuditEvent{ID: "e1", SQLText: strings.Repeat("a", 64)}
	rule := core.ExtractionRule{
		ID: "r1", TargetName: "DB1", RuleName: "slow",
		SourceField: "sqltext", RegexPattern: `(a+)+b`, IsActive: true,
	}

	values, err := engine.Apply(event, []core.ExtractionRule{rule})
	require.NoError(t, err)
	assert.Empty(t, values)
}
