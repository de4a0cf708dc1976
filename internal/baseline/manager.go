// Package baseline freezes named reference versions of a target's object set
// and compares them against live targets later.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CosmoTheDev/procwatch/internal/comparator"
	"github.com/CosmoTheDev/procwatch/internal/config"
	"github.com/CosmoTheDev/procwatch/internal/repository"
	"github.com/CosmoTheDev/procwatch/models"
)

// ErrEmptyBaseline is returned when the source target has no snapshots to
// freeze. The baseline row is not kept in that case.
var ErrEmptyBaseline = errors.New("no snapshots to freeze; run a scan of the target first")

// Manager owns the baseline lifecycle: create (freeze), list, inspect,
// compare against live, delete.
type Manager struct {
	cfg   *config.Config
	store *repository.Store
	comp  *comparator.Comparator
}

// NewManager creates a Manager over cfg and store.
func NewManager(cfg *config.Config, store *repository.Store) *Manager {
	return &Manager{cfg: cfg, store: store, comp: comparator.New(store)}
}

// Create freezes the latest non-custom snapshots of (tenantID, environment)
// under a unique name. Fails without leaving a row behind when the target has
// never been scanned.
func (m *Manager) Create(ctx context.Context, name, description string, tenantID int, environment, createdBy string) (*models.Baseline, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: baseline name is required", repository.ErrInvariant)
	}
	if !models.ValidEnvironment(environment) {
		return nil, fmt.Errorf("%w: unknown environment %q", repository.ErrInvariant, environment)
	}
	tenant := m.cfg.Tenant(tenantID)
	if tenant == nil {
		return nil, fmt.Errorf("%w: unknown tenant %d", repository.ErrInvariant, tenantID)
	}

	b := &models.Baseline{
		Name:              name,
		Description:       description,
		SourceTenantID:    tenant.ID,
		SourceTenantName:  tenant.Name,
		SourceTenantCode:  tenant.Code,
		SourceEnvironment: environment,
		CreatedAt:         time.Now().UTC(),
		CreatedBy:         createdBy,
	}
	if err := m.store.CreateBaseline(ctx, b); err != nil {
		return nil, err
	}

	count, err := m.store.FreezeBaselineFromLatest(ctx, b.ID, tenant.ID, environment)
	if err != nil {
		m.discard(ctx, b.ID)
		return nil, fmt.Errorf("freezing baseline %q: %w", name, err)
	}
	if count == 0 {
		m.discard(ctx, b.ID)
		return nil, fmt.Errorf("%w (%s/%s)", ErrEmptyBaseline, tenant.Code, environment)
	}
	b.TotalObjects = count

	slog.Info("Baseline created",
		"baseline", name,
		"source", tenant.Code+"/"+environment,
		"objects", count,
	)
	return b, nil
}

// discard removes a half-created baseline row; the cascade clears any objects.
func (m *Manager) discard(ctx context.Context, id int64) {
	if err := m.store.DeleteBaseline(context.WithoutCancel(ctx), id); err != nil {
		slog.Warn("Failed to discard incomplete baseline", "baseline_id", id, "error", err)
	}
}

// List returns all baselines, newest first.
func (m *Manager) List(ctx context.Context) ([]models.Baseline, error) {
	return m.store.ListBaselines(ctx)
}

// Get returns one baseline with its frozen objects.
func (m *Manager) Get(ctx context.Context, id int64) (*models.Baseline, []models.BaselineObject, error) {
	b, err := m.store.GetBaseline(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	objects, err := m.store.ListBaselineObjects(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return b, objects, nil
}

// Delete removes a baseline and its frozen content.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	if _, err := m.store.GetBaseline(ctx, id); err != nil {
		return err
	}
	return m.store.DeleteBaseline(ctx, id)
}

// CompareToLive matches the baseline's frozen objects against the latest
// non-custom snapshots of a live target. tenantID 0 targets the baseline's
// own source tenant and environment.
func (m *Manager) CompareToLive(ctx context.Context, baselineID int64, tenantID int, environment string) (*comparator.Summary, error) {
	content, err := m.store.LoadBaselineWithDefinitions(ctx, baselineID)
	if err != nil {
		return nil, err
	}
	if tenantID == 0 {
		tenantID = content.Baseline.SourceTenantID
		environment = content.Baseline.SourceEnvironment
	}
	if !models.ValidEnvironment(environment) {
		return nil, fmt.Errorf("%w: unknown environment %q", repository.ErrInvariant, environment)
	}

	frozen := make([]comparator.Entry, 0, len(content.Objects))
	for _, obj := range content.Objects {
		frozen = append(frozen, comparator.Entry{
			FullName:   obj.FullName,
			ObjectType: obj.ObjectType,
			Hash:       obj.DefinitionHash,
			Ref:        obj.ID,
		})
	}

	latest, err := m.store.LatestSnapshots(ctx, tenantID, environment)
	if err != nil {
		return nil, err
	}
	live := make([]comparator.Entry, 0, len(latest))
	liveCode := ""
	for _, snap := range latest {
		if snap.IsCustom {
			continue
		}
		liveCode = snap.TenantCode
		live = append(live, comparator.Entry{
			FullName:   snap.FullName,
			ObjectType: snap.ObjectType,
			Hash:       snap.DefinitionHash,
			Ref:        snap.ID,
		})
	}

	summary := comparator.CompareEntries(frozen, live)
	summary.SideA = comparator.Side{
		TenantID:    content.Baseline.SourceTenantID,
		TenantCode:  content.Baseline.SourceTenantCode,
		Environment: content.Baseline.SourceEnvironment,
	}
	summary.SideB = comparator.Side{TenantID: tenantID, TenantCode: liveCode, Environment: environment}
	return summary, nil
}

// DiffObject diffs one frozen definition against one live snapshot.
func (m *Manager) DiffObject(ctx context.Context, baselineObjectID, snapshotID int64) (*comparator.DiffResult, error) {
	frozen, err := m.store.GetBaselineObjectDefinition(ctx, baselineObjectID)
	if err != nil {
		return nil, err
	}
	live, err := m.store.GetSnapshotDefinition(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	result := comparator.Diff(frozen, live)
	return &result, nil
}
