// Package extract applies a target's extraction rules to a single audit
// event, producing the named values that case creation persists.
package extract

import (
	"fmt"
	"sync"
	"time"

	"auditsync/core"
	"auditsync/metrics"
	"auditsync/util"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
)

// Policy selects how multiple matches of one pattern are emitted.
type Policy string

const (
	// PolicyAllMatches emits one value per match occurrence, in match
	// order, across the whole source value.
	PolicyAllMatches Policy = "all-matches"

	// PolicyFirstMatch emits at most one value per rule name. When two
	// rules share a name, the later rule's value overwrites the earlier
	// one in place.
	PolicyFirstMatch Policy = "first-match"
)

// ParsePolicy validates a policy name from configuration.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(name) {
	case PolicyAllMatches, PolicyFirstMatch:
		return Policy(name), nil
	default:
		return "", fmt.Errorf("unknown extraction policy %q", name)
	}
}

// RequiredRuleError reports that a required rule produced no match. The
// ingestion loop branches on this type to withhold the offset commit.
type RequiredRuleError struct {
	RuleName string
}

func (e *RequiredRuleError) Error() string {
	return fmt.Sprintf("required rule %q produced no match", e.RuleName)
}

// Engine evaluates extraction rules against audit events. Compiled
// patterns are cached across events; evaluation time per pattern is
// bounded by the match timeout.
type Engine struct {
	policy  Policy
	timeout time.Duration
	cache   *util.RegexCache
	logger  *zap.SugaredLogger

	// warnedFields tracks unknown source field names already logged, so a
	// misconfigured rule warns once instead of once per event.
	warnedMu     sync.Mutex
	warnedFields map[string]struct{}
}

// NewEngine creates an extraction engine. A non-positive cacheSize falls
// back to the default pattern cache size.
func NewEngine(policy Policy, timeout time.Duration, cacheSize int, logger *zap.SugaredLogger) (*Engine, error) {
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = util.DefaultMatchTimeout
	}
	cache, err := util.NewRegexCache(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{
		policy:       policy,
		timeout:      timeout,
		cache:        cache,
		logger:       logger,
		warnedFields: make(map[string]struct{}),
	}, nil
}

// Apply evaluates the rules against the event in slice order and returns
// the extracted values. Rules whose source field is absent or empty are
// skipped. A required rule with no match fails the whole event with
// RequiredRuleError; optional non-matches are skipped silently.
func (e *Engine) Apply(event *core.AuditEvent, rules []core.ExtractionRule) ([]core.ExtractedValue, error) {
	var values []core.ExtractedValue
	byName := make(map[string]int)

	for _, rule := range rules {
		source, known := core.SourceValue(event, rule.SourceField)
		if !known {
			e.warnUnknownField(&rule)
			continue
		}
		if source == "" {
			e.logger.Debugf("Rule %s: source field %q is empty on event %s, skipping", rule.RuleName, rule.SourceField, event.ID)
			continue
		}

		matches, err := e.evaluate(&rule, source)
		if err != nil {
			return nil, err
		}

		if len(matches) == 0 {
			if rule.IsRequired {
				metrics.RequiredRuleFailures.WithLabelValues(rule.TargetName).Inc()
				return nil, &RequiredRuleError{RuleName: rule.RuleName}
			}
			continue
		}

		for _, matched := range matches {
			value := core.ExtractedValue{
				RuleID:       rule.ID,
				RuleName:     rule.RuleName,
				RegexPattern: rule.RegexPattern,
				SourceField:  rule.SourceField,
				Value:        matched,
			}
			if e.policy == PolicyFirstMatch {
				if idx, ok := byName[rule.RuleName]; ok {
					values[idx] = value
				} else {
					byName[rule.RuleName] = len(values)
					values = append(values, value)
				}
				break
			}
			values = append(values, value)
		}
	}

	metrics.ValuesExtracted.Add(float64(len(values)))
	return values, nil
}

// evaluate runs one rule's pattern over the source value and returns the
// matched texts in match order. A match timeout is treated as no match
// for the rule; the required-rule policy then applies as usual.
func (e *Engine) evaluate(rule *core.ExtractionRule, source string) ([]string, error) {
	re, err := e.cache.Get(rule.RegexPattern, e.timeout)
	if err != nil {
		e.logger.Errorf("Rule %s has an invalid pattern: %v", rule.RuleName, err)
		return nil, nil
	}

	start := time.Now()
	defer func() {
		metrics.RegexEvalDuration.Observe(time.Since(start).Seconds())
	}()

	var matches []string
	m, err := re.FindStringMatch(source)
	for err == nil && m != nil {
		matches = append(matches, matchValue(m))
		if e.policy == PolicyFirstMatch {
			return matches, nil
		}
		m, err = re.FindNextMatch(m)
	}
	if err != nil {
		if util.IsTimeoutError(err) {
			metrics.RegexTimeouts.WithLabelValues(rule.TargetName).Inc()
			e.logger.Warnf("Rule %s exceeded the %s match budget, treating as no match", rule.RuleName, e.timeout)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to evaluate rule %s: %w", rule.RuleName, err)
	}
	return matches, nil
}

// warnUnknownField logs an unknown source field once per field name.
func (e *Engine) warnUnknownField(rule *core.ExtractionRule) {
	e.warnedMu.Lock()
	defer e.warnedMu.Unlock()
	if _, seen := e.warnedFields[rule.SourceField]; seen {
		return
	}
	e.warnedFields[rule.SourceField] = struct{}{}
	e.logger.Warnf("Rule %s references unknown source field %q, skipping", rule.RuleName, rule.SourceField)
}

// matchValue returns the first capturing group's text when the pattern
// has one, otherwise the whole match text.
func matchValue(m *regexp2.Match) string {
	if groups := m.Groups(); len(groups) > 1 {
		return groups[1].String()
	}
	return m.String()
}
