package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/CosmoTheDev/procwatch/internal/database"
	"github.com/CosmoTheDev/procwatch/models"
)

// ErrDuplicateBaselineName is returned when a baseline name is already taken
// (names are unique case-insensitively).
var ErrDuplicateBaselineName = errors.New("baseline name already exists")

const baselineColumns = `id, name, description, source_tenant_id, source_tenant_name,
	source_tenant_code, source_environment, total_objects, created_at, created_by`

// BaselineContent is a fully loaded baseline: metadata, objects, and each
// object's definition text keyed by baseline object id.
type BaselineContent struct {
	Baseline    models.Baseline
	Objects     []models.BaselineObject
	Definitions map[int64]string
}

// CreateBaseline inserts the baseline metadata row and assigns its ID.
func (s *Store) CreateBaseline(ctx context.Context, b *models.Baseline) error {
	id, err := s.db.Insert(ctx, "baselines", b)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", ErrDuplicateBaselineName, b.Name)
		}
		return fmt.Errorf("creating baseline %q: %w", b.Name, err)
	}
	b.ID = id
	return nil
}

// FreezeBaselineFromLatest clones the latest non-custom snapshots of
// (tenantID, environment) into the baseline's object and definition tables
// and updates total_objects. Returns the number of objects frozen.
func (s *Store) FreezeBaselineFromLatest(ctx context.Context, baselineID int64, tenantID int, environment string) (int, error) {
	latest, err := s.LatestSnapshots(ctx, tenantID, environment)
	if err != nil {
		return 0, err
	}

	count := 0
	err = s.db.Tx(ctx, func(tx database.Executor) error {
		for _, snap := range latest {
			if snap.IsCustom {
				continue
			}
			obj := models.BaselineObject{
				BaselineID:       baselineID,
				FullName:         snap.FullName,
				Schema:           snap.Schema,
				Name:             snap.Name,
				ObjectType:       snap.ObjectType,
				DefinitionHash:   snap.DefinitionHash,
				SourceSnapshotID: snap.ID,
			}
			if _, err := tx.Insert(ctx, "baseline_objects", obj); err != nil {
				return fmt.Errorf("freezing %s: %w", snap.FullName, err)
			}
			count++
		}
		if count == 0 {
			return nil
		}
		// Clone definition text set-based from the source snapshots.
		if err := tx.Exec(ctx, `INSERT INTO baseline_object_definitions (baseline_object_id, definition)
			SELECT bo.id, osd.definition
			FROM baseline_objects bo
			JOIN object_snapshot_definitions osd ON osd.snapshot_id = bo.source_snapshot_id
			WHERE bo.baseline_id = ?`, baselineID); err != nil {
			return fmt.Errorf("cloning baseline definitions: %w", err)
		}
		if err := tx.Exec(ctx, `UPDATE baselines SET total_objects = ? WHERE id = ?`, count, baselineID); err != nil {
			return fmt.Errorf("updating baseline totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListBaselines returns all baselines, newest first.
func (s *Store) ListBaselines(ctx context.Context) ([]models.Baseline, error) {
	var out []models.Baseline
	err := s.db.Select(ctx, &out, `SELECT `+baselineColumns+`
		FROM baselines ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing baselines: %w", err)
	}
	return out, nil
}

// GetBaseline returns one baseline by id.
func (s *Store) GetBaseline(ctx context.Context, id int64) (*models.Baseline, error) {
	var b models.Baseline
	err := s.db.Get(ctx, &b, `SELECT `+baselineColumns+` FROM baselines WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading baseline %d: %w", id, err)
	}
	return &b, nil
}

// DeleteBaseline removes the baseline and, via cascade, its objects and
// definitions.
func (s *Store) DeleteBaseline(ctx context.Context, id int64) error {
	if err := s.db.Exec(ctx, `DELETE FROM baselines WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting baseline %d: %w", id, err)
	}
	return nil
}

// ListBaselineObjects returns the frozen objects of one baseline.
func (s *Store) ListBaselineObjects(ctx context.Context, baselineID int64) ([]models.BaselineObject, error) {
	var out []models.BaselineObject
	err := s.db.Select(ctx, &out, `SELECT id, baseline_id, full_name, schema_name, object_name,
		object_type, definition_hash, source_snapshot_id
		FROM baseline_objects WHERE baseline_id = ? ORDER BY full_name`, baselineID)
	if err != nil {
		return nil, fmt.Errorf("listing baseline objects for %d: %w", baselineID, err)
	}
	return out, nil
}

// GetBaselineObjectDefinition returns the definition text of one frozen object.
func (s *Store) GetBaselineObjectDefinition(ctx context.Context, baselineObjectID int64) (string, error) {
	var def models.BaselineObjectDefinition
	err := s.db.Get(ctx, &def, `SELECT id, baseline_object_id, definition
		FROM baseline_object_definitions WHERE baseline_object_id = ?`, baselineObjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("loading definition for baseline object %d: %w", baselineObjectID, err)
	}
	return def.Definition, nil
}

// LoadBaselineWithDefinitions returns the baseline, its objects, and all
// definition texts in one round of queries.
func (s *Store) LoadBaselineWithDefinitions(ctx context.Context, baselineID int64) (*BaselineContent, error) {
	b, err := s.GetBaseline(ctx, baselineID)
	if err != nil {
		return nil, err
	}
	objects, err := s.ListBaselineObjects(ctx, baselineID)
	if err != nil {
		return nil, err
	}
	var defs []models.BaselineObjectDefinition
	err = s.db.Select(ctx, &defs, `SELECT d.id, d.baseline_object_id, d.definition
		FROM baseline_object_definitions d
		JOIN baseline_objects bo ON bo.id = d.baseline_object_id
		WHERE bo.baseline_id = ?`, baselineID)
	if err != nil {
		return nil, fmt.Errorf("loading baseline definitions for %d: %w", baselineID, err)
	}
	content := &BaselineContent{
		Baseline:    *b,
		Objects:     objects,
		Definitions: make(map[int64]string, len(defs)),
	}
	for _, d := range defs {
		content.Definitions[d.BaselineObjectID] = d.Definition
	}
	return content, nil
}

// isUniqueViolation sniffs driver-specific unique constraint errors.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || // sqlite
		strings.Contains(msg, "duplicate entry") // mysql
}
