package storage

import "fmt"

// migrations are applied in order inside one transaction each. The schema
// is small enough that embedded DDL beats an external migration tool.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS targets (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT,
		created_at  TIMESTAMP NOT NULL,
		updated_at  TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS target_rules (
		id            TEXT PRIMARY KEY,
		target_id     TEXT NOT NULL REFERENCES targets(id),
		rule_name     TEXT NOT NULL,
		source_field  TEXT NOT NULL,
		regex_pattern TEXT NOT NULL,
		is_required   INTEGER NOT NULL DEFAULT 0,
		is_active     INTEGER NOT NULL DEFAULT 1,
		rule_order    INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_target_rules_target ON target_rules(target_id, is_active, rule_order)`,

	`CREATE TABLE IF NOT EXISTS audit_logs (
		id               TEXT PRIMARY KEY,
		target           TEXT NOT NULL,
		session_id       INTEGER NOT NULL,
		entry_id         INTEGER NOT NULL,
		statement        INTEGER NOT NULL,
		db_user          TEXT,
		user_host        TEXT,
		terminal         TEXT,
		os_user          TEXT,
		action           INTEGER,
		return_code      INTEGER,
		owner            TEXT,
		name             TEXT,
		auth_privileges  TEXT,
		auth_grantee     TEXT,
		new_owner        TEXT,
		new_name         TEXT,
		privilege_used   TEXT,
		sql_text         TEXT,
		bind_variables   TEXT,
		event_timestamp  TIMESTAMP,
		produced_at      TIMESTAMP,
		stream_partition INTEGER NOT NULL,
		stream_offset    TEXT NOT NULL,
		process_counter  INTEGER NOT NULL DEFAULT 1,
		processed_at     TIMESTAMP NOT NULL,
		consumed_at      TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_target ON audit_logs(target)`,

	`CREATE TABLE IF NOT EXISTS cases (
		id               TEXT PRIMARY KEY,
		audit_log_id     TEXT NOT NULL UNIQUE REFERENCES audit_logs(id),
		case_status      TEXT NOT NULL DEFAULT 'OPEN',
		valid            TEXT,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL,
		resolved_at      TIMESTAMP,
		resolved_by      TEXT,
		resolution_notes TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(case_status)`,

	`CREATE TABLE IF NOT EXISTS case_extractions (
		id            TEXT PRIMARY KEY,
		case_id       TEXT NOT NULL REFERENCES cases(id),
		audit_log_id  TEXT NOT NULL,
		rule_id       TEXT NOT NULL,
		rule_name     TEXT NOT NULL,
		regex_pattern TEXT NOT NULL,
		source_field  TEXT NOT NULL,
		field_value   TEXT,
		extracted_at  TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_case_extractions_case ON case_extractions(case_id)`,
}

// RunMigrations creates or upgrades the schema.
func (s *SQLite) RunMigrations() error {
	for i, stmt := range migrations {
		if _, err := s.WriteDB.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	s.Logger.Infof("Applied %d schema statements", len(migrations))
	return nil
}
