package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/CosmoTheDev/procwatch/internal/config"
	"github.com/CosmoTheDev/procwatch/internal/database"
	"github.com/CosmoTheDev/procwatch/internal/objdef"
	"github.com/CosmoTheDev/procwatch/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "procwatch.db"),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := NewStore(db)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return store
}

func newScanLog(t *testing.T, store *Store) *models.ScanLog {
	t.Helper()
	log := &models.ScanLog{
		StartedAt: time.Now().UTC(),
		Status:    models.ScanStatusRunning,
		Trigger:   models.TriggerManual,
	}
	if err := store.CreateScanLog(context.Background(), log); err != nil {
		t.Fatal(err)
	}
	return log
}

func snapshotFor(fullName, def string, at time.Time) (models.ObjectSnapshot, string) {
	return models.ObjectSnapshot{
		TenantID:       1,
		TenantCode:     "acme",
		Environment:    models.EnvProduction,
		FullName:       fullName,
		ObjectType:     models.KindProcedure,
		DefinitionHash: objdef.Hash(def),
		SnapshotDate:   at,
	}, def
}

func TestScanLogLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	log := newScanLog(t, store)
	if log.ID == 0 {
		t.Fatal("insert did not assign an id")
	}

	now := time.Now().UTC()
	log.CompletedAt = &now
	log.Status = models.ScanStatusCompleted
	log.TotalObjectsScanned = 42
	if err := store.UpdateScanLog(ctx, log); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetScanLog(ctx, log.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.ScanStatusCompleted || got.TotalObjectsScanned != 42 {
		t.Fatalf("round trip: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed_at lost")
	}

	if _, err := store.GetScanLog(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing log: err = %v", err)
	}
}

func TestListRecentScanLogsOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		log := &models.ScanLog{
			StartedAt: time.Date(2026, 8, 1+i, 0, 0, 0, 0, time.UTC),
			Status:    models.ScanStatusCompleted,
			Trigger:   models.TriggerScheduled,
		}
		if err := store.CreateScanLog(ctx, log); err != nil {
			t.Fatal(err)
		}
	}
	logs, err := store.ListRecentScanLogs(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 3 {
		t.Fatalf("len = %d, want 3", len(logs))
	}
	for i := 1; i < len(logs); i++ {
		if logs[i-1].StartedAt.Before(logs[i].StartedAt) {
			t.Fatalf("not newest-first: %+v", logs)
		}
	}
}

func TestBulkInsertSnapshotsLengthMismatch(t *testing.T) {
	store := newTestStore(t)
	log := newScanLog(t, store)
	snap, _ := snapshotFor("dbo.P", "SELECT 1", time.Now().UTC())

	err := store.BulkInsertSnapshots(context.Background(), log.ID,
		[]models.ObjectSnapshot{snap}, []string{"a", "b"})
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("err = %v, want ErrInvariant", err)
	}
}

func TestLatestSnapshotsPicksNewestPerObject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)

	log1 := newScanLog(t, store)
	s1, d1 := snapshotFor("dbo.GetOrders", "SELECT 1", day1)
	s2, d2 := snapshotFor("dbo.Stale", "SELECT 9", day1)
	if err := store.BulkInsertSnapshots(ctx, log1.ID, []models.ObjectSnapshot{s1, s2}, []string{d1, d2}); err != nil {
		t.Fatal(err)
	}

	// Second scan re-captures GetOrders under different name casing.
	log2 := newScanLog(t, store)
	s3, d3 := snapshotFor("DBO.GETORDERS", "SELECT 2", day2)
	if err := store.BulkInsertSnapshots(ctx, log2.ID, []models.ObjectSnapshot{s3}, []string{d3}); err != nil {
		t.Fatal(err)
	}

	latest, err := store.LatestSnapshots(ctx, 1, models.EnvProduction)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 2 {
		t.Fatalf("latest rows = %d, want 2 (case-insensitive identity): %+v", len(latest), latest)
	}
	byKey := map[string]models.ObjectSnapshot{}
	for _, snap := range latest {
		byKey[objdef.Key(snap.FullName)] = snap
	}
	if byKey["dbo.getorders"].DefinitionHash != objdef.Hash("SELECT 2") {
		t.Fatalf("latest GetOrders is not the day-2 snapshot: %+v", byKey)
	}

	// Definitions are retrievable per snapshot.
	def, err := store.GetSnapshotDefinition(ctx, byKey["dbo.getorders"].ID)
	if err != nil {
		t.Fatal(err)
	}
	if def != "SELECT 2" {
		t.Fatalf("definition = %q", def)
	}
	if _, err := store.GetSnapshotDefinition(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing definition: err = %v", err)
	}
}

func TestScanEntryUpdateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	log := newScanLog(t, store)

	entry := &models.ScanEntry{
		ScanLogID:   log.ID,
		TenantID:    1,
		TenantCode:  "acme",
		Environment: models.EnvStaging,
		StartedAt:   time.Now().UTC(),
	}
	if err := store.CreateScanEntry(ctx, entry); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	entry.CompletedAt = &now
	entry.Success = true
	entry.ObjectsFound = 7
	entry.DurationSeconds = 1.25
	if err := store.UpdateScanEntry(ctx, entry); err != nil {
		t.Fatal(err)
	}

	entries, err := store.ListScanEntries(ctx, log.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !entries[0].Success || entries[0].ObjectsFound != 7 {
		t.Fatalf("entries: %+v", entries)
	}
}

func TestChangesPendingAndMarkSent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	log := newScanLog(t, store)

	h1, h2 := objdef.Hash("a"), objdef.Hash("b")
	changes := []models.DetectedChange{
		{ScanLogID: log.ID, TenantID: 1, TenantCode: "acme", Environment: models.EnvProduction,
			FullName: "dbo.B", ObjectType: models.KindProcedure, ChangeType: models.ChangeModified,
			PreviousHash: &h1, CurrentHash: &h2, DetectedAt: time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)},
		{ScanLogID: log.ID, TenantID: 1, TenantCode: "acme", Environment: models.EnvProduction,
			FullName: "dbo.A", ObjectType: models.KindProcedure, ChangeType: models.ChangeCreated,
			CurrentHash: &h2, DetectedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)},
	}
	if err := store.BulkInsertChanges(ctx, changes); err != nil {
		t.Fatal(err)
	}

	pending, err := store.PendingNotifications(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d", len(pending))
	}
	// Oldest first.
	if pending[0].FullName != "dbo.A" {
		t.Fatalf("pending order: %+v", pending)
	}
	// A created change round-trips its nil previous hash.
	if pending[0].PreviousHash != nil || pending[0].CurrentHash == nil {
		t.Fatalf("hash nullability lost: %+v", pending[0])
	}

	if err := store.MarkNotificationSent(ctx, []int64{pending[0].ID}); err != nil {
		t.Fatal(err)
	}
	left, err := store.PendingNotifications(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].FullName != "dbo.B" {
		t.Fatalf("after mark: %+v", left)
	}

	listed, err := store.ListChanges(ctx, log.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 2 {
		t.Fatalf("listed = %d", len(listed))
	}
}

func TestCreateBaselineDuplicateName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &models.Baseline{Name: "Release", SourceTenantID: 1, SourceEnvironment: models.EnvProduction, CreatedAt: time.Now().UTC()}
	if err := store.CreateBaseline(ctx, b); err != nil {
		t.Fatal(err)
	}
	dup := &models.Baseline{Name: "release", SourceTenantID: 1, SourceEnvironment: models.EnvProduction, CreatedAt: time.Now().UTC()}
	if err := store.CreateBaseline(ctx, dup); !errors.Is(err, ErrDuplicateBaselineName) {
		t.Fatalf("err = %v, want ErrDuplicateBaselineName", err)
	}
}

func TestFreezeBaselineClonesDefinitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	log := newScanLog(t, store)

	s1, d1 := snapshotFor("dbo.Base", "SELECT 1", time.Now().UTC())
	s2, d2 := snapshotFor("dbo.acme_Custom", "SELECT 2", time.Now().UTC())
	s2.IsCustom = true
	if err := store.BulkInsertSnapshots(ctx, log.ID, []models.ObjectSnapshot{s1, s2}, []string{d1, d2}); err != nil {
		t.Fatal(err)
	}

	b := &models.Baseline{Name: "v1", SourceTenantID: 1, SourceEnvironment: models.EnvProduction, CreatedAt: time.Now().UTC()}
	if err := store.CreateBaseline(ctx, b); err != nil {
		t.Fatal(err)
	}
	count, err := store.FreezeBaselineFromLatest(ctx, b.ID, 1, models.EnvProduction)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("frozen = %d, want 1 (customs excluded)", count)
	}

	content, err := store.LoadBaselineWithDefinitions(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if content.Baseline.TotalObjects != 1 || len(content.Objects) != 1 {
		t.Fatalf("content: %+v", content)
	}
	if content.Definitions[content.Objects[0].ID] != "SELECT 1" {
		t.Fatalf("cloned definition: %+v", content.Definitions)
	}
}
