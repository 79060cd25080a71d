package util

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// Limits applied when validating rule patterns.
const (
	// MaxPatternLength is the maximum allowed regex pattern length.
	MaxPatternLength = 500
	// DefaultMatchTimeout bounds the evaluation time of a single match.
	DefaultMatchTimeout = 100 * time.Millisecond
	// MaxMatchTimeout is the largest configurable match timeout.
	MaxMatchTimeout = 1 * time.Second
)

// ErrMatchTimeout is returned when a pattern exceeds its evaluation time
// budget. Callers treat it as "no match" rather than a failure.
var ErrMatchTimeout = errors.New("regex evaluation timeout")

// ValidatePattern checks a rule pattern for syntax and for constructs
// that risk catastrophic backtracking before it is ever evaluated.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("regex pattern cannot be empty")
	}
	if len(pattern) > MaxPatternLength {
		return fmt.Errorf("regex pattern too long: %d characters (max %d)", len(pattern), MaxPatternLength)
	}

	if err := checkNestedQuantifiers(pattern); err != nil {
		return err
	}

	if alternations := strings.Count(pattern, "|"); alternations > 50 {
		return fmt.Errorf("too many alternations: %d (max 50)", alternations)
	}

	if err := checkExcessiveRepetition(pattern); err != nil {
		return err
	}

	// Syntax check. regexp accepts a superset of what the rules need and
	// is cheap to compile; regexp2 compilation happens lazily at match
	// time through the pattern cache.
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("invalid regex pattern: %w", err)
	}

	return nil
}

// checkNestedQuantifiers rejects adjacent quantifier sequences that are
// classic ReDoS shapes.
func checkNestedQuantifiers(pattern string) error {
	dangerous := []string{
		")+*", ")*+", ")+{", ")*{",
		"}+*", "}*+", "}+{", "}*{",
		"++", "**", "*+", "+*",
	}
	for _, d := range dangerous {
		if strings.Contains(pattern, d) {
			return fmt.Errorf("pattern contains nested quantifiers which may cause ReDoS: found '%s'", d)
		}
	}
	return nil
}

var repetitionRe = regexp.MustCompile(`\{(\d+)(?:,\d*)?\}`)

// checkExcessiveRepetition rejects repetition counts of 1000 or more.
func checkExcessiveRepetition(pattern string) error {
	for _, match := range repetitionRe.FindAllStringSubmatch(pattern, -1) {
		if len(match) > 1 {
			var count int
			fmt.Sscanf(match[1], "%d", &count)
			if count >= 1000 {
				return fmt.Errorf("excessive repetition: %s (max 999)", match[0])
			}
		}
	}
	return nil
}

// CompileWithTimeout compiles a pattern with regexp2 and arms its match
// timeout. regexp2 enforces the budget inside the matcher itself, which
// bounds backtracking properly instead of abandoning a goroutine.
func CompileWithTimeout(pattern string, timeout time.Duration) (*regexp2.Regexp, error) {
	if timeout <= 0 {
		timeout = DefaultMatchTimeout
	}
	if timeout > MaxMatchTimeout {
		timeout = MaxMatchTimeout
	}

	re, err := regexp2.Compile(pattern, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to compile regex pattern: %w", err)
	}
	re.MatchTimeout = timeout
	return re, nil
}

// IsTimeoutError reports whether a regexp2 match error was caused by the
// match timeout rather than a real evaluation failure.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMatchTimeout) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
