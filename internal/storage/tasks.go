package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/napa14-design/infrahub/internal/model"
)

// GetTask retrieves a scheduled task by ID. Returns nil when not found.
func (s *Store) GetTask(ctx context.Context, id string) (*model.ScheduledTask, error) {
	var t model.ScheduledTask
	var technician, notes, performed sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, site_id, asset_type, technician, notes,
			scheduled_date, performed_date, created_at
		FROM tasks
		WHERE id = ?`, id).Scan(
		&t.ID,
		&t.SiteID,
		&t.AssetType,
		&technician,
		&notes,
		&t.ScheduledDate,
		&performed,
		&t.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	t.Technician = technician.String
	t.Notes = notes.String
	t.PerformedDate = performed.String

	return &t, nil
}

// ListTasks returns scheduled tasks within the scope, newest schedule first.
func (s *Store) ListTasks(ctx context.Context, scope model.Scope) ([]model.ScheduledTask, error) {
	query := `
		SELECT id, site_id, asset_type, technician, notes,
			scheduled_date, performed_date, created_at
		FROM tasks`
	args := make([]interface{}, 0)
	if scope.SiteID != "" {
		query += " WHERE site_id = ?"
		args = append(args, scope.SiteID)
	}
	query += " ORDER BY scheduled_date DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.ScheduledTask
	for rows.Next() {
		var t model.ScheduledTask
		var technician, notes, performed sql.NullString

		err := rows.Scan(
			&t.ID,
			&t.SiteID,
			&t.AssetType,
			&technician,
			&notes,
			&t.ScheduledDate,
			&performed,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		t.Technician = technician.String
		t.Notes = notes.String
		t.PerformedDate = performed.String

		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// InsertTask inserts a new scheduled task. A pending task colliding with
// an existing pending task for the same (site, asset type, scheduled
// date) returns ErrDuplicatePendingTask.
func (s *Store) InsertTask(ctx context.Context, t *model.ScheduledTask) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, site_id, asset_type, technician, notes,
			scheduled_date, performed_date, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.SiteID,
		t.AssetType,
		nullable(t.Technician),
		nullable(t.Notes),
		t.ScheduledDate,
		nullable(t.PerformedDate),
		t.CreatedAt,
	)
	if err != nil {
		if isConstraintErr(err) {
			return ErrDuplicatePendingTask
		}
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// UpdateTask overwrites an existing task record.
func (s *Store) UpdateTask(ctx context.Context, t *model.ScheduledTask) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			site_id = ?,
			asset_type = ?,
			technician = ?,
			notes = ?,
			scheduled_date = ?,
			performed_date = ?
		WHERE id = ?`,
		t.SiteID,
		t.AssetType,
		nullable(t.Technician),
		nullable(t.Notes),
		t.ScheduledDate,
		nullable(t.PerformedDate),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// DeleteTask removes a task. Tasks are only ever deleted explicitly.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// HasLaterPendingTask reports whether a pending task for the same site
// and asset type is already scheduled after the given date. Used by the
// recurrence generator to avoid duplicate continuation chains.
func (s *Store) HasLaterPendingTask(ctx context.Context, siteID, assetType, afterDate string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tasks
		WHERE site_id = ?
		  AND asset_type = ?
		  AND performed_date IS NULL
		  AND scheduled_date > ?`,
		siteID, assetType, afterDate).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check pending tasks: %w", err)
	}
	return count > 0, nil
}

// nullable maps empty strings to NULL so the pending-task unique index
// sees NULL performed dates.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
