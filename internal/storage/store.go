package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/napa14-design/infrahub/internal/model"
)

// ErrDuplicatePendingTask is returned when inserting a pending task that
// collides with an existing pending task for the same site, asset type
// and scheduled date.
var ErrDuplicatePendingTask = errors.New("duplicate pending task")

// Store is the sqlite-backed record store for monitored assets,
// scheduled tasks and alerts. Alert writes are upserts keyed by the
// deterministic alert identity, so concurrent sweeps are last-write-wins
// safe.
type Store struct {
	logger *zap.Logger
	db     *sql.DB
}

// Open opens (or creates) the record store at the given path.
func Open(logger *zap.Logger, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		logger: logger,
		db:     db,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// initialize creates the necessary tables if they don't exist.
// The partial unique index over pending tasks closes the duplicate
// recurrence race: two concurrent completions can both pass the
// later-pending check, but only one insert lands.
func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS certificates (
			id TEXT PRIMARY KEY,
			site_id TEXT NOT NULL,
			name TEXT NOT NULL,
			expiry_date TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS filters (
			id TEXT PRIMARY KEY,
			site_id TEXT NOT NULL,
			location TEXT NOT NULL,
			next_service_date TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS reservoirs (
			id TEXT PRIMARY KEY,
			site_id TEXT NOT NULL,
			name TEXT NOT NULL,
			next_cleaning_date TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			site_id TEXT NOT NULL,
			asset_type TEXT NOT NULL,
			technician TEXT,
			notes TEXT,
			scheduled_date TEXT NOT NULL,
			performed_date TEXT,
			created_at DATETIME NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_pending_unique
			ON tasks(site_id, asset_type, scheduled_date)
			WHERE performed_date IS NULL;
		CREATE INDEX IF NOT EXISTS idx_tasks_site ON tasks(site_id);
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			asset_id TEXT NOT NULL,
			site_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			link TEXT,
			read INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_site ON alerts(site_id);
		CREATE INDEX IF NOT EXISTS idx_alerts_read ON alerts(read);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// scopeClause appends a site filter for non-admin scopes.
func scopeClause(query string, scope model.Scope, args []interface{}) (string, []interface{}) {
	if scope.SiteID != "" {
		query += " WHERE site_id = ?"
		args = append(args, scope.SiteID)
	}
	return query, args
}

// ListCertificates returns certificates within the scope.
func (s *Store) ListCertificates(ctx context.Context, scope model.Scope) ([]model.Certificate, error) {
	query, args := scopeClause("SELECT id, site_id, name, expiry_date FROM certificates", scope, nil)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	defer rows.Close()

	var certs []model.Certificate
	for rows.Next() {
		var c model.Certificate
		if err := rows.Scan(&c.ID, &c.SiteID, &c.Name, &c.ExpiryDate); err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		certs = append(certs, c)
	}
	return certs, rows.Err()
}

// ListFilters returns filter elements within the scope.
func (s *Store) ListFilters(ctx context.Context, scope model.Scope) ([]model.Filter, error) {
	query, args := scopeClause("SELECT id, site_id, location, next_service_date FROM filters", scope, nil)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list filters: %w", err)
	}
	defer rows.Close()

	var filters []model.Filter
	for rows.Next() {
		var f model.Filter
		if err := rows.Scan(&f.ID, &f.SiteID, &f.Location, &f.NextServiceDate); err != nil {
			return nil, fmt.Errorf("failed to scan filter: %w", err)
		}
		filters = append(filters, f)
	}
	return filters, rows.Err()
}

// ListReservoirs returns reservoirs within the scope.
func (s *Store) ListReservoirs(ctx context.Context, scope model.Scope) ([]model.Reservoir, error) {
	query, args := scopeClause("SELECT id, site_id, name, next_cleaning_date FROM reservoirs", scope, nil)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservoirs: %w", err)
	}
	defer rows.Close()

	var reservoirs []model.Reservoir
	for rows.Next() {
		var r model.Reservoir
		if err := rows.Scan(&r.ID, &r.SiteID, &r.Name, &r.NextCleaningDate); err != nil {
			return nil, fmt.Errorf("failed to scan reservoir: %w", err)
		}
		reservoirs = append(reservoirs, r)
	}
	return reservoirs, rows.Err()
}

// SaveCertificate inserts or replaces a certificate record.
func (s *Store) SaveCertificate(ctx context.Context, c model.Certificate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO certificates (id, site_id, name, expiry_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			site_id = excluded.site_id,
			name = excluded.name,
			expiry_date = excluded.expiry_date`,
		c.ID, c.SiteID, c.Name, c.ExpiryDate,
	)
	if err != nil {
		return fmt.Errorf("failed to save certificate: %w", err)
	}
	return nil
}

// SaveFilter inserts or replaces a filter record.
func (s *Store) SaveFilter(ctx context.Context, f model.Filter) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO filters (id, site_id, location, next_service_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			site_id = excluded.site_id,
			location = excluded.location,
			next_service_date = excluded.next_service_date`,
		f.ID, f.SiteID, f.Location, f.NextServiceDate,
	)
	if err != nil {
		return fmt.Errorf("failed to save filter: %w", err)
	}
	return nil
}

// SaveReservoir inserts or replaces a reservoir record.
func (s *Store) SaveReservoir(ctx context.Context, r model.Reservoir) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reservoirs (id, site_id, name, next_cleaning_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			site_id = excluded.site_id,
			name = excluded.name,
			next_cleaning_date = excluded.next_cleaning_date`,
		r.ID, r.SiteID, r.Name, r.NextCleaningDate,
	)
	if err != nil {
		return fmt.Errorf("failed to save reservoir: %w", err)
	}
	return nil
}

// DB exposes the underlying handle so sibling stores (rules) can share
// the same database file and connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// isConstraintErr reports whether err is a sqlite uniqueness violation.
func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// now is pulled out so DATETIME columns always store UTC.
func now() time.Time {
	return time.Now().UTC()
}
