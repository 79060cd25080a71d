package storage

import (
	"context"
	"database/sql"
	"fmt"

	"auditsync/core"

	"go.uber.org/zap"
)

// SQLiteRuleStorage handles extraction rule persistence in SQLite.
// The consumer path only ever reads; CreateRule exists for the operator
// CLI, which plays the role of the external rule author in development.
type SQLiteRuleStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteRuleStorage creates a new SQLite rule storage handler
func NewSQLiteRuleStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteRuleStorage {
	return &SQLiteRuleStorage{sqlite: sqlite, logger: logger}
}

const ruleSelectColumns = `
	r.id, r.target_id, t.name, r.rule_name, r.source_field,
	r.regex_pattern, r.is_required, r.is_active, r.rule_order`

// GetActiveRulesByTarget returns the target's active rules ordered by
// rule_order ascending. Ties are broken by rule id so the order is stable
// across calls regardless of insertion order.
func (srs *SQLiteRuleStorage) GetActiveRulesByTarget(ctx context.Context, targetName string) ([]core.ExtractionRule, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM target_rules r
		INNER JOIN targets t ON r.target_id = t.id
		WHERE t.name = ? AND r.is_active = 1
		ORDER BY r.rule_order, r.id`, ruleSelectColumns)

	rows, err := srs.sqlite.ReadDB.QueryContext(ctx, query, targetName)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules for target %s: %w", targetName, err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// GetRulesByTarget returns all of the target's rules, active or not.
func (srs *SQLiteRuleStorage) GetRulesByTarget(ctx context.Context, targetName string) ([]core.ExtractionRule, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM target_rules r
		INNER JOIN targets t ON r.target_id = t.id
		WHERE t.name = ?
		ORDER BY r.rule_order, r.id`, ruleSelectColumns)

	rows, err := srs.sqlite.ReadDB.QueryContext(ctx, query, targetName)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules for target %s: %w", targetName, err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// CreateRule inserts a new extraction rule.
func (srs *SQLiteRuleStorage) CreateRule(ctx context.Context, rule *core.ExtractionRule) error {
	_, err := srs.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO target_rules
			(id, target_id, rule_name, source_field, regex_pattern, is_required, is_active, rule_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.TargetID, rule.RuleName, rule.SourceField,
		rule.RegexPattern, rule.IsRequired, rule.IsActive, rule.RuleOrder)
	if err != nil {
		return fmt.Errorf("failed to create rule %s: %w", rule.RuleName, err)
	}

	srs.logger.Infof("Created rule %s (order %d) for target %s", rule.RuleName, rule.RuleOrder, rule.TargetID)
	return nil
}

func scanRules(rows *sql.Rows) ([]core.ExtractionRule, error) {
	var rules []core.ExtractionRule
	for rows.Next() {
		var r core.ExtractionRule
		if err := rows.Scan(&r.ID, &r.TargetID, &r.TargetName, &r.RuleName,
			&r.SourceField, &r.RegexPattern, &r.IsRequired, &r.IsActive, &r.RuleOrder); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
