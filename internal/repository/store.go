// Package repository is the central analytical store: scan logs, snapshots,
// definitions, detected changes and baselines. It is the sole owner of the
// persisted schema; everything else goes through a Store.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/CosmoTheDev/procwatch/internal/database"
	"github.com/CosmoTheDev/procwatch/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvariant is returned for caller bugs the store refuses to persist,
// e.g. mismatched snapshot/definition batches.
var ErrInvariant = errors.New("invariant violation")

// Store provides all persistence operations over a database.DB. A Store is
// cheap; callers may create one per logical operation. Methods are safe for
// concurrent use (each call uses its own transport through database/sql).
type Store struct {
	db database.DB
}

// NewStore wraps db in a Store.
func NewStore(db database.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema applies pending migrations. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.Migrate(ctx)
}

// CreateScanLog inserts log and assigns its ID.
func (s *Store) CreateScanLog(ctx context.Context, log *models.ScanLog) error {
	id, err := s.db.Insert(ctx, "scan_logs", log)
	if err != nil {
		return fmt.Errorf("creating scan log: %w", err)
	}
	log.ID = id
	return nil
}

// UpdateScanLog persists the current state of log.
func (s *Store) UpdateScanLog(ctx context.Context, log *models.ScanLog) error {
	if err := s.db.Update(ctx, "scan_logs", log, "id = ?", log.ID); err != nil {
		return fmt.Errorf("updating scan log %d: %w", log.ID, err)
	}
	return nil
}

// GetScanLog returns one scan log by id.
func (s *Store) GetScanLog(ctx context.Context, id int64) (*models.ScanLog, error) {
	var log models.ScanLog
	err := s.db.Get(ctx, &log, `SELECT id, started_at, completed_at, status, trigger_source,
		triggered_by, total_tenants, total_environments, total_objects_scanned,
		total_changes_detected, total_errors, error_summary
		FROM scan_logs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading scan log %d: %w", id, err)
	}
	return &log, nil
}

// ListRecentScanLogs returns up to limit scan logs, newest first.
func (s *Store) ListRecentScanLogs(ctx context.Context, limit int) ([]models.ScanLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var logs []models.ScanLog
	err := s.db.Select(ctx, &logs, `SELECT id, started_at, completed_at, status, trigger_source,
		triggered_by, total_tenants, total_environments, total_objects_scanned,
		total_changes_detected, total_errors, error_summary
		FROM scan_logs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing scan logs: %w", err)
	}
	return logs, nil
}

// CreateScanEntry inserts entry and assigns its ID.
func (s *Store) CreateScanEntry(ctx context.Context, entry *models.ScanEntry) error {
	id, err := s.db.Insert(ctx, "scan_entries", entry)
	if err != nil {
		return fmt.Errorf("creating scan entry: %w", err)
	}
	entry.ID = id
	return nil
}

// UpdateScanEntry persists the terminal state of entry.
func (s *Store) UpdateScanEntry(ctx context.Context, entry *models.ScanEntry) error {
	if err := s.db.Update(ctx, "scan_entries", entry, "id = ?", entry.ID); err != nil {
		return fmt.Errorf("updating scan entry %d: %w", entry.ID, err)
	}
	return nil
}

// ListScanEntries returns the per-target entries of one scan.
func (s *Store) ListScanEntries(ctx context.Context, scanLogID int64) ([]models.ScanEntry, error) {
	var entries []models.ScanEntry
	err := s.db.Select(ctx, &entries, `SELECT id, scan_log_id, tenant_id, tenant_code, environment,
		started_at, completed_at, success, objects_found, objects_new, objects_modified,
		objects_deleted, error_message, duration_seconds
		FROM scan_entries WHERE scan_log_id = ? ORDER BY id`, scanLogID)
	if err != nil {
		return nil, fmt.Errorf("listing scan entries for log %d: %w", scanLogID, err)
	}
	return entries, nil
}
