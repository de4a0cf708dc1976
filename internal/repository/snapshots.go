package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/CosmoTheDev/procwatch/internal/database"
	"github.com/CosmoTheDev/procwatch/models"
)

const snapshotColumns = `id, scan_log_id, tenant_id, tenant_name, tenant_code, environment,
	full_name, schema_name, object_name, object_type, definition_hash,
	object_last_modified, snapshot_date, is_custom`

// BulkInsertSnapshots writes one target's snapshots and their definitions in
// a single transaction. snapshots and definitions must have equal length;
// definitions[i] belongs to snapshots[i]. Every inserted snapshot ends up
// with a definition row.
func (s *Store) BulkInsertSnapshots(ctx context.Context, scanLogID int64, snapshots []models.ObjectSnapshot, definitions []string) error {
	if len(snapshots) != len(definitions) {
		return fmt.Errorf("%w: %d snapshots but %d definitions", ErrInvariant, len(snapshots), len(definitions))
	}
	if len(snapshots) == 0 {
		return nil
	}
	return s.db.Tx(ctx, func(tx database.Executor) error {
		for i := range snapshots {
			snap := snapshots[i]
			snap.ID = 0
			snap.ScanLogID = scanLogID
			id, err := tx.Insert(ctx, "object_snapshots", snap)
			if err != nil {
				return fmt.Errorf("inserting snapshot %s: %w", snap.FullName, err)
			}
			def := models.SnapshotDefinition{SnapshotID: id, Definition: definitions[i]}
			if _, err := tx.Insert(ctx, "object_snapshot_definitions", def); err != nil {
				return fmt.Errorf("inserting definition for %s: %w", snap.FullName, err)
			}
		}
		return nil
	})
}

// LatestSnapshots returns, for each fullName of the given target, the single
// snapshot row with the greatest snapshotDate (ties broken by id).
func (s *Store) LatestSnapshots(ctx context.Context, tenantID int, environment string) ([]models.ObjectSnapshot, error) {
	var out []models.ObjectSnapshot
	err := s.db.Select(ctx, &out, `SELECT `+snapshotColumns+`
		FROM object_snapshots s
		WHERE s.tenant_id = ? AND s.environment = ?
		  AND s.id = (
			SELECT s2.id FROM object_snapshots s2
			WHERE s2.tenant_id = s.tenant_id
			  AND s2.environment = s.environment
			  AND s2.full_name = s.full_name
			ORDER BY s2.snapshot_date DESC, s2.id DESC
			LIMIT 1)
		ORDER BY s.full_name`, tenantID, environment)
	if err != nil {
		return nil, fmt.Errorf("loading latest snapshots for tenant %d/%s: %w", tenantID, environment, err)
	}
	return out, nil
}

// GetSnapshot returns one snapshot row by id.
func (s *Store) GetSnapshot(ctx context.Context, snapshotID int64) (*models.ObjectSnapshot, error) {
	var snap models.ObjectSnapshot
	err := s.db.Get(ctx, &snap, `SELECT `+snapshotColumns+`
		FROM object_snapshots WHERE id = ?`, snapshotID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %d: %w", snapshotID, err)
	}
	return &snap, nil
}

// GetSnapshotDefinition returns the definition text for one snapshot.
func (s *Store) GetSnapshotDefinition(ctx context.Context, snapshotID int64) (string, error) {
	var def models.SnapshotDefinition
	err := s.db.Get(ctx, &def, `SELECT id, snapshot_id, definition
		FROM object_snapshot_definitions WHERE snapshot_id = ?`, snapshotID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("loading definition for snapshot %d: %w", snapshotID, err)
	}
	return def.Definition, nil
}
