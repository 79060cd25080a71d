package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"auditsync/core"

	"go.uber.org/zap"
)

// SQLiteTargetStorage handles target persistence in SQLite
type SQLiteTargetStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteTargetStorage creates a new SQLite target storage handler
func NewSQLiteTargetStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteTargetStorage {
	return &SQLiteTargetStorage{sqlite: sqlite, logger: logger}
}

// Exists reports whether a target with the given name is registered.
func (sts *SQLiteTargetStorage) Exists(ctx context.Context, name string) (bool, error) {
	var count int
	err := sts.sqlite.ReadDB.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM targets WHERE name = ?", name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check target existence: %w", err)
	}
	return count > 0, nil
}

// GetByName retrieves a target by its name.
func (sts *SQLiteTargetStorage) GetByName(ctx context.Context, name string) (*core.Target, error) {
	var t core.Target
	var description sql.NullString
	err := sts.sqlite.ReadDB.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM targets
		WHERE name = ?`, name).
		Scan(&t.ID, &t.Name, &description, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTargetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	t.Description = description.String
	return &t, nil
}

// Create inserts a new target.
func (sts *SQLiteTargetStorage) Create(ctx context.Context, target *core.Target) error {
	now := time.Now().UTC()
	if target.CreatedAt.IsZero() {
		target.CreatedAt = now
	}
	target.UpdatedAt = now

	_, err := sts.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO targets (id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		target.ID, target.Name, target.Description, target.CreatedAt, target.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateTarget
		}
		return fmt.Errorf("failed to create target: %w", err)
	}

	sts.logger.Infof("Created target %s (%s)", target.Name, target.ID)
	return nil
}

// List returns all registered targets ordered by name.
func (sts *SQLiteTargetStorage) List(ctx context.Context) ([]core.Target, error) {
	rows, err := sts.sqlite.ReadDB.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM targets
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	var targets []core.Target
	for rows.Next() {
		var t core.Target
		var description sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &description, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		t.Description = description.String
		targets = append(targets, t)
	}
	return targets, rows.Err()
}
