package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/napa14-design/infrahub/internal/model"
)

// UpsertAlert writes the alert keyed by its deterministic identity.
// Re-upserting refreshes title, message, severity and created_at but
// leaves the read flag alone: the sweep never unreads or deletes an
// alert, it only refreshes content while the violation lasts.
func (s *Store) UpsertAlert(ctx context.Context, a *model.Alert) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (
			id, kind, asset_id, site_id, severity,
			title, message, link, read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			severity = excluded.severity,
			title = excluded.title,
			message = excluded.message,
			link = excluded.link,
			created_at = excluded.created_at`,
		a.ID,
		string(a.Kind),
		a.AssetID,
		a.SiteID,
		string(a.Severity),
		a.Title,
		a.Message,
		nullable(a.Link),
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert alert: %w", err)
	}
	return nil
}

// ListAlerts returns alerts within the scope, optionally unread only,
// newest first.
func (s *Store) ListAlerts(ctx context.Context, scope model.Scope, unreadOnly bool) ([]model.Alert, error) {
	query := `
		SELECT id, kind, asset_id, site_id, severity,
			title, message, link, read, created_at
		FROM alerts`
	args := make([]interface{}, 0)

	where := ""
	if scope.SiteID != "" {
		where = " WHERE site_id = ?"
		args = append(args, scope.SiteID)
	}
	if unreadOnly {
		if where == "" {
			where = " WHERE read = 0"
		} else {
			where += " AND read = 0"
		}
	}
	query += where + " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var kind, severity string
		var link sql.NullString

		err := rows.Scan(
			&a.ID,
			&kind,
			&a.AssetID,
			&a.SiteID,
			&severity,
			&a.Title,
			&a.Message,
			&link,
			&a.Read,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		a.Kind = model.AssetKind(kind)
		a.Severity = model.AlertSeverity(severity)
		a.Link = link.String

		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// CountAlerts returns the total number of alert rows.
func (s *Store) CountAlerts(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}

// MarkAlertRead flips the read flag. This is the only alert mutation
// available to the user-facing layer.
func (s *Store) MarkAlertRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE alerts SET read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark alert read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("alert not found: %s", id)
	}
	return nil
}
