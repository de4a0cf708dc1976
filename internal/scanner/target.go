package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/CosmoTheDev/procwatch/internal/config"
	"github.com/CosmoTheDev/procwatch/internal/detector"
	"github.com/CosmoTheDev/procwatch/internal/objdef"
	"github.com/CosmoTheDev/procwatch/models"
)

// scanTarget runs the full pipeline for one (tenant, environment):
// connect, extract, snapshot, detect, persist. Failures are recorded on the
// scan entry and in totals; they never abort the surrounding scan.
func (s *Scanner) scanTarget(ctx context.Context, scanLogID int64, tenant config.TenantConfig, env config.EnvironmentConfig, filter map[string]struct{}, totals *scanTotals) {
	targetKey := tenant.Code + "/" + env.Environment
	start := time.Now()
	entry := &models.ScanEntry{
		ScanLogID:   scanLogID,
		TenantID:    tenant.ID,
		TenantCode:  tenant.Code,
		Environment: env.Environment,
		StartedAt:   start.UTC(),
	}
	if err := s.store.CreateScanEntry(ctx, entry); err != nil {
		slog.Error("Failed to open scan entry", "target", targetKey, "error", err)
		totals.addError(fmt.Sprintf("%s: %v", targetKey, err))
		return
	}
	totals.targets.Add(1)

	tctx, cancel := context.WithTimeout(ctx, s.TargetDeadline)
	defer cancel()

	found, changed, err := s.extractAndPersist(tctx, entry, tenant, env, filter)

	completed := time.Now().UTC()
	entry.CompletedAt = &completed
	entry.DurationSeconds = time.Since(start).Seconds()
	if err != nil {
		entry.Success = false
		entry.ErrorMessage = s.targetErrorMessage(ctx, tctx, err)
		totals.addError(fmt.Sprintf("%s: %s", targetKey, entry.ErrorMessage))
		slog.Warn("Target scan failed", "target", targetKey, "error", entry.ErrorMessage)
	} else {
		entry.Success = true
		totals.objects.Add(int64(found))
		totals.changes.Add(int64(changed))
		slog.Info("Target scan complete",
			"target", targetKey,
			"objects", found,
			"changes", changed,
			"duration", entry.DurationSeconds,
		)
	}

	// Entry closure outlives both the target deadline and cancellation so a
	// cancelled in-flight target still lands in a terminal state.
	if uerr := s.store.UpdateScanEntry(context.WithoutCancel(ctx), entry); uerr != nil {
		slog.Error("Failed to close scan entry", "target", targetKey, "error", uerr)
		if err == nil {
			totals.addError(fmt.Sprintf("%s: %v", targetKey, uerr))
		}
	}
}

// extractAndPersist is the deadline-bounded body of one target scan. It fills
// the entry's object counters and returns (objectsFound, changesDetected).
func (s *Scanner) extractAndPersist(ctx context.Context, entry *models.ScanEntry, tenant config.TenantConfig, env config.EnvironmentConfig, filter map[string]struct{}) (int, int, error) {
	password, err := s.decrypt(env.Password)
	if err != nil {
		return 0, 0, fmt.Errorf("decrypting credentials: %w", err)
	}
	conn := models.ConnectionInfo{
		Host:     env.Host,
		Port:     env.Port,
		Database: env.Database,
		User:     env.User,
		Password: password,
	}

	info, err := s.extract.TestConnection(ctx, conn)
	if err != nil {
		return 0, 0, fmt.Errorf("connection test failed: %w", err)
	}
	slog.Debug("Connected to target", "target", tenant.Code+"/"+env.Environment, "server", info)

	objects, err := s.extract.ExtractAll(ctx, conn)
	if err != nil {
		return 0, 0, fmt.Errorf("extracting objects: %w", err)
	}

	registry := customRegistry(tenant)
	snapshotDate := time.Now().UTC()
	var snapshots []models.ObjectSnapshot
	var definitions []string
	for _, obj := range objects {
		fullName := obj.FullName()
		custom := s.isCustom(tenant, registry, fullName, obj.Name)
		// The inclusion filter governs base objects only; customs are
		// always snapshotted.
		if !custom && filter != nil {
			if _, tracked := filter[objdef.Key(fullName)]; !tracked {
				continue
			}
		}
		var lastModified *time.Time
		if !obj.LastModified.IsZero() {
			lm := obj.LastModified.UTC()
			lastModified = &lm
		}
		snapshots = append(snapshots, models.ObjectSnapshot{
			TenantID:           tenant.ID,
			TenantName:         tenant.Name,
			TenantCode:         tenant.Code,
			Environment:        env.Environment,
			FullName:           fullName,
			Schema:             obj.Schema,
			Name:               obj.Name,
			ObjectType:         obj.Kind,
			DefinitionHash:     objdef.Hash(obj.Definition),
			ObjectLastModified: lastModified,
			SnapshotDate:       snapshotDate,
			IsCustom:           custom,
		})
		definitions = append(definitions, obj.Definition)
	}

	// The previous generation must be read before this scan's snapshots
	// land, otherwise the diff compares the new set against itself.
	previous, err := s.store.LatestSnapshots(ctx, tenant.ID, env.Environment)
	if err != nil {
		return 0, 0, err
	}

	if err := s.store.BulkInsertSnapshots(ctx, entry.ScanLogID, snapshots, definitions); err != nil {
		return 0, 0, err
	}

	changes := detector.Detect(baseObjects(previous), baseObjects(snapshots))
	for i := range changes {
		changes[i].ScanLogID = entry.ScanLogID
		changes[i].TenantID = tenant.ID
		changes[i].TenantCode = tenant.Code
		changes[i].Environment = env.Environment
		changes[i].DetectedAt = snapshotDate
	}
	if err := s.store.BulkInsertChanges(ctx, changes); err != nil {
		return 0, 0, err
	}

	entry.ObjectsFound = len(snapshots)
	entry.ObjectsNew, entry.ObjectsModified, entry.ObjectsDeleted = detector.Counts(changes)
	return len(snapshots), len(changes), nil
}

// targetErrorMessage maps a pipeline error to the message stored on the entry,
// distinguishing the target deadline and whole-scan cancellation.
func (s *Scanner) targetErrorMessage(scanCtx, targetCtx context.Context, err error) string {
	switch {
	case scanCtx.Err() != nil:
		return "Cancelled"
	case errors.Is(err, context.DeadlineExceeded) || targetCtx.Err() == context.DeadlineExceeded:
		return fmt.Sprintf("Timeout after %s: %v", s.TargetDeadline, err)
	default:
		return err.Error()
	}
}

// customRegistry folds the tenant's explicit custom object names into a
// case-insensitive lookup set.
func customRegistry(tenant config.TenantConfig) map[string]struct{} {
	if len(tenant.CustomObjects) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(tenant.CustomObjects))
	for _, name := range tenant.CustomObjects {
		set[objdef.Key(name)] = struct{}{}
	}
	return set
}

// isCustom reports whether the object counts as tenant-custom: listed in the
// explicit registry, or (when convention matching is on) carrying the tenant
// code as a substring of its bare name.
func (s *Scanner) isCustom(tenant config.TenantConfig, registry map[string]struct{}, fullName, name string) bool {
	if registry != nil {
		if _, ok := registry[objdef.Key(fullName)]; ok {
			return true
		}
	}
	if s.cfg.CustomDetection.ByConvention && tenant.Code != "" {
		return strings.Contains(objdef.Key(name), objdef.Key(tenant.Code))
	}
	return false
}

// baseObjects filters a snapshot set down to non-custom objects. Custom
// objects are expected to differ per tenant and are excluded from change
// detection.
func baseObjects(snapshots []models.ObjectSnapshot) []models.ObjectSnapshot {
	out := make([]models.ObjectSnapshot, 0, len(snapshots))
	for _, snap := range snapshots {
		if !snap.IsCustom {
			out = append(out, snap)
		}
	}
	return out
}
