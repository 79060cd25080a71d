package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auditsync/core"

	"go.uber.org/zap"
)

// SQLiteEventStorage handles audit event persistence in SQLite
type SQLiteEventStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteEventStorage creates a new SQLite audit event storage handler
func NewSQLiteEventStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteEventStorage {
	return &SQLiteEventStorage{sqlite: sqlite, logger: logger}
}

// Upsert inserts the event, or updates the existing row and increments
// its process counter when the id is already present. Redelivery of the
// same logical event therefore leaves exactly one row whose counter
// records how many times it was processed.
func (ses *SQLiteEventStorage) Upsert(ctx context.Context, event *core.AuditEvent, partition int, offset string) error {
	now := time.Now().UTC()

	_, err := ses.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO audit_logs
			(id, target, session_id, entry_id, statement, db_user, user_host,
			 terminal, os_user, action, return_code, owner, name,
			 auth_privileges, auth_grantee, new_owner, new_name, privilege_used,
			 sql_text, bind_variables, event_timestamp, produced_at,
			 stream_partition, stream_offset, process_counter, processed_at, consumed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			target           = excluded.target,
			session_id       = excluded.session_id,
			entry_id         = excluded.entry_id,
			statement        = excluded.statement,
			db_user          = excluded.db_user,
			user_host        = excluded.user_host,
			terminal         = excluded.terminal,
			os_user          = excluded.os_user,
			action           = excluded.action,
			return_code      = excluded.return_code,
			owner            = excluded.owner,
			name             = excluded.name,
			auth_privileges  = excluded.auth_privileges,
			auth_grantee     = excluded.auth_grantee,
			new_owner        = excluded.new_owner,
			new_name         = excluded.new_name,
			privilege_used   = excluded.privilege_used,
			sql_text         = excluded.sql_text,
			bind_variables   = excluded.bind_variables,
			event_timestamp  = excluded.event_timestamp,
			produced_at      = excluded.produced_at,
			stream_partition = excluded.stream_partition,
			stream_offset    = excluded.stream_offset,
			process_counter  = audit_logs.process_counter + 1,
			consumed_at      = excluded.consumed_at`,
		event.ID, event.Target, event.SessionID, event.EntryID, event.Statement,
		event.DBUser, event.UserHost, event.Terminal, event.OSUser,
		event.Action, event.ReturnCode, event.Owner, event.Name,
		event.AuthPrivileges, event.AuthGrantee, event.NewOwner, event.NewName,
		event.PrivilegeUsed, event.SQLText, event.BindVariables,
		event.Timestamp, event.ProducedAt, partition, offset, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert audit event %s: %w", event.ID, err)
	}

	ses.logger.Debugf("Upserted audit event %s (partition %d, offset %s)", event.ID, partition, offset)
	return nil
}

// IsProcessed reports whether the event has been persisted at least once.
func (ses *SQLiteEventStorage) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int
	err := ses.sqlite.ReadDB.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM audit_logs WHERE id = ?", eventID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check audit event %s: %w", eventID, err)
	}
	return count > 0, nil
}

// ProcessCounter returns the event's reprocessing counter.
func (ses *SQLiteEventStorage) ProcessCounter(ctx context.Context, eventID string) (int64, error) {
	var counter int64
	err := ses.sqlite.ReadDB.QueryRowContext(ctx,
		"SELECT process_counter FROM audit_logs WHERE id = ?", eventID).Scan(&counter)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrEventNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read process counter for %s: %w", eventID, err)
	}
	return counter, nil
}
