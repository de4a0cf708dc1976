package scanner

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CosmoTheDev/procwatch/internal/config"
	"github.com/CosmoTheDev/procwatch/internal/database"
	"github.com/CosmoTheDev/procwatch/internal/repository"
	"github.com/CosmoTheDev/procwatch/models"
)

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	db, err := database.New(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "procwatch.db"),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := repository.NewStore(db)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return store
}

// fakeExtractor serves catalogs keyed by the connection's database name.
type fakeExtractor struct {
	mu       sync.Mutex
	catalogs map[string][]models.ProgrammableObject
	connErr  map[string]error
	delay    time.Duration
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		catalogs: make(map[string][]models.ProgrammableObject),
		connErr:  make(map[string]error),
	}
}

func (f *fakeExtractor) setCatalog(database string, objects ...models.ProgrammableObject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalogs[database] = objects
}

func (f *fakeExtractor) TestConnection(ctx context.Context, conn models.ConnectionInfo) (string, error) {
	f.mu.Lock()
	err := f.connErr[conn.Database]
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	return "fake: " + conn.Database, nil
}

func (f *fakeExtractor) ExtractAll(ctx context.Context, conn models.ConnectionInfo) ([]models.ProgrammableObject, error) {
	f.mu.Lock()
	delay := f.delay
	objects := append([]models.ProgrammableObject(nil), f.catalogs[conn.Database]...)
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return objects, nil
}

func (f *fakeExtractor) ExtractSingle(ctx context.Context, conn models.ConnectionInfo, schema, name string) (*models.ProgrammableObject, error) {
	objects, err := f.ExtractAll(ctx, conn)
	if err != nil {
		return nil, err
	}
	for _, obj := range objects {
		if strings.EqualFold(obj.Schema, schema) && strings.EqualFold(obj.Name, name) {
			return &obj, nil
		}
	}
	return nil, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	calls   int
	pending []models.DetectedChange
}

func (f *fakeNotifier) Notify(ctx context.Context, log *models.ScanLog, entries []models.ScanEntry, pending []models.DetectedChange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.pending = append([]models.DetectedChange(nil), pending...)
}

func plainDecrypt(v string) (string, error) { return v, nil }

func proc(schema, name, body string) models.ProgrammableObject {
	return models.ProgrammableObject{
		Schema:       schema,
		Name:         name,
		Kind:         models.KindProcedure,
		Definition:   body,
		LastModified: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testConfig(tenants ...config.TenantConfig) *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{MaxParallelTenants: 2},
		Tenants:   tenants,
	}
}

func tenantWithDB(id int, code, dbName string) config.TenantConfig {
	return config.TenantConfig{
		ID:   id,
		Code: code,
		Name: strings.ToUpper(code),
		Environments: []config.EnvironmentConfig{{
			Environment: models.EnvDevelopment,
			Host:        "localhost",
			Port:        3306,
			Database:    dbName,
			User:        "scan",
			Password:    "pw",
		}},
	}
}

func TestFullScanBaselineThenChanges(t *testing.T) {
	store := newTestStore(t)
	ext := newFakeExtractor()
	ext.setCatalog("acmedb",
		proc("dbo", "GetOrders", "SELECT 1"),
		proc("dbo", "GetCustomers", "SELECT 2"),
	)
	cfg := testConfig(tenantWithDB(1, "acme", "acmedb"))
	s := New(cfg, store, ext, plainDecrypt, nil)

	ctx := context.Background()
	log, err := s.RunFullScan(ctx, models.TriggerManual, "test", 0, false)
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if log.Status != models.ScanStatusCompleted {
		t.Fatalf("first scan status = %q, want completed (%q)", log.Status, log.ErrorSummary)
	}
	if log.TotalObjectsScanned != 2 || log.TotalChangesDetected != 0 || log.TotalErrors != 0 {
		t.Fatalf("first scan totals: %+v", log)
	}

	// Second scan: one modified, one created, one deleted.
	ext.setCatalog("acmedb",
		proc("dbo", "GetOrders", "SELECT 1 -- v2"),
		proc("dbo", "GetInvoices", "SELECT 3"),
	)
	log2, err := s.RunFullScan(ctx, models.TriggerManual, "test", 0, false)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if log2.Status != models.ScanStatusCompleted {
		t.Fatalf("second scan status = %q", log2.Status)
	}
	if log2.TotalChangesDetected != 3 {
		t.Fatalf("second scan changes = %d, want 3", log2.TotalChangesDetected)
	}

	entries, err := store.ListScanEntries(ctx, log2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if !e.Success || e.ObjectsFound != 2 || e.ObjectsNew != 1 || e.ObjectsModified != 1 || e.ObjectsDeleted != 1 {
		t.Fatalf("entry counters: %+v", e)
	}
	if e.CompletedAt == nil || e.DurationSeconds < 0 {
		t.Fatalf("entry not closed: %+v", e)
	}

	changes, err := store.ListChanges(ctx, log2.ID)
	if err != nil {
		t.Fatal(err)
	}
	byType := map[string]string{}
	for _, c := range changes {
		byType[c.ChangeType] = c.FullName
	}
	if byType[models.ChangeModified] != "dbo.GetOrders" ||
		byType[models.ChangeCreated] != "dbo.GetInvoices" ||
		byType[models.ChangeDeleted] != "dbo.GetCustomers" {
		t.Fatalf("changes: %+v", changes)
	}
}

func TestTargetFailureDoesNotAbortScan(t *testing.T) {
	store := newTestStore(t)
	ext := newFakeExtractor()
	ext.setCatalog("gooddb", proc("dbo", "P1", "SELECT 1"))
	ext.connErr["baddb"] = errors.New("login failed for user 'scan'")
	cfg := testConfig(
		tenantWithDB(1, "good", "gooddb"),
		tenantWithDB(2, "bad", "baddb"),
	)
	s := New(cfg, store, ext, plainDecrypt, nil)

	log, err := s.RunFullScan(context.Background(), models.TriggerScheduled, "scheduler", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if log.Status != models.ScanStatusCompletedWithErrors {
		t.Fatalf("status = %q, want completed_with_errors", log.Status)
	}
	if log.TotalErrors != 1 || log.TotalObjectsScanned != 1 {
		t.Fatalf("totals: %+v", log)
	}
	if !strings.Contains(log.ErrorSummary, "bad/development") || !strings.Contains(log.ErrorSummary, "login failed") {
		t.Fatalf("error summary = %q", log.ErrorSummary)
	}

	entries, err := store.ListScanEntries(context.Background(), log.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.TenantCode == "bad" {
			if e.Success || e.ErrorMessage == "" || e.CompletedAt == nil {
				t.Fatalf("failed entry not closed properly: %+v", e)
			}
		}
	}
}

func TestTargetDeadlineTimeout(t *testing.T) {
	store := newTestStore(t)
	ext := newFakeExtractor()
	ext.setCatalog("slowdb", proc("dbo", "P1", "SELECT 1"))
	ext.delay = 500 * time.Millisecond
	cfg := testConfig(tenantWithDB(1, "slow", "slowdb"))
	s := New(cfg, store, ext, plainDecrypt, nil)
	s.TargetDeadline = 50 * time.Millisecond

	log, err := s.RunFullScan(context.Background(), models.TriggerManual, "test", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if log.Status != models.ScanStatusCompletedWithErrors || log.TotalErrors != 1 {
		t.Fatalf("log: %+v", log)
	}
	if !strings.Contains(log.ErrorSummary, "Timeout after") {
		t.Fatalf("error summary = %q, want timeout message", log.ErrorSummary)
	}
}

func TestScanCancellation(t *testing.T) {
	store := newTestStore(t)
	ext := newFakeExtractor()
	ext.setCatalog("acmedb", proc("dbo", "P1", "SELECT 1"))
	ext.delay = time.Second
	cfg := testConfig(tenantWithDB(1, "acme", "acmedb"))
	s := New(cfg, store, ext, plainDecrypt, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	log, err := s.RunFullScan(ctx, models.TriggerManual, "test", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if log.Status != models.ScanStatusFailed || log.ErrorSummary != "Cancelled" {
		t.Fatalf("log: status=%q summary=%q", log.Status, log.ErrorSummary)
	}

	// In-flight entries still reach a terminal state on disk.
	entries, err := store.ListScanEntries(context.Background(), log.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.CompletedAt == nil {
			t.Fatalf("entry left open after cancellation: %+v", e)
		}
		if e.Success {
			t.Fatalf("cancelled entry marked successful: %+v", e)
		}
	}
}

func TestInclusionFilterLimitsBaseObjects(t *testing.T) {
	store := newTestStore(t)
	ext := newFakeExtractor()
	ext.setCatalog("acmedb",
		proc("dbo", "Tracked", "SELECT 1"),
		proc("dbo", "Ignored", "SELECT 2"),
	)
	cfg := testConfig(tenantWithDB(1, "acme", "acmedb"))
	cfg.TrackedObjects = []config.TrackedObjectConfig{{FullName: "DBO.TRACKED"}}
	s := New(cfg, store, ext, plainDecrypt, nil)

	log, err := s.RunFullScan(context.Background(), models.TriggerManual, "test", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if log.TotalObjectsScanned != 1 {
		t.Fatalf("objects scanned = %d, want 1 (filter is case-insensitive)", log.TotalObjectsScanned)
	}

	// --all bypasses the registry.
	log2, err := s.RunFullScan(context.Background(), models.TriggerManual, "test", 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if log2.TotalObjectsScanned != 2 {
		t.Fatalf("scan --all objects = %d, want 2", log2.TotalObjectsScanned)
	}
}

func TestCustomObjectsSnapshottedButNotDiffed(t *testing.T) {
	store := newTestStore(t)
	ext := newFakeExtractor()
	ext.setCatalog("acmedb",
		proc("dbo", "GetOrders", "SELECT 1"),
		proc("dbo", "usp_acme_Report", "SELECT 2"), // custom by convention
	)
	cfg := testConfig(tenantWithDB(1, "acme", "acmedb"))
	cfg.CustomDetection.ByConvention = true
	s := New(cfg, store, ext, plainDecrypt, nil)

	ctx := context.Background()
	if _, err := s.RunFullScan(ctx, models.TriggerManual, "test", 0, false); err != nil {
		t.Fatal(err)
	}

	latest, err := store.LatestSnapshots(ctx, 1, models.EnvDevelopment)
	if err != nil {
		t.Fatal(err)
	}
	customs := 0
	for _, snap := range latest {
		if snap.IsCustom {
			customs++
			if snap.FullName != "dbo.usp_acme_Report" {
				t.Fatalf("unexpected custom object %q", snap.FullName)
			}
		}
	}
	if customs != 1 {
		t.Fatalf("custom snapshots = %d, want 1", customs)
	}

	// Modifying only the custom object yields no detected changes.
	ext.setCatalog("acmedb",
		proc("dbo", "GetOrders", "SELECT 1"),
		proc("dbo", "usp_acme_Report", "SELECT 2 -- v2"),
	)
	log2, err := s.RunFullScan(ctx, models.TriggerManual, "test", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if log2.TotalChangesDetected != 0 {
		t.Fatalf("custom-only change leaked into detection: %+v", log2)
	}
}

func TestExplicitCustomRegistry(t *testing.T) {
	store := newTestStore(t)
	ext := newFakeExtractor()
	ext.setCatalog("acmedb", proc("dbo", "SpecialProc", "SELECT 1"))
	tenant := tenantWithDB(1, "acme", "acmedb")
	tenant.CustomObjects = []string{"dbo.specialproc"}
	cfg := testConfig(tenant)
	s := New(cfg, store, ext, plainDecrypt, nil)

	ctx := context.Background()
	if _, err := s.RunFullScan(ctx, models.TriggerManual, "test", 0, false); err != nil {
		t.Fatal(err)
	}
	latest, err := store.LatestSnapshots(ctx, 1, models.EnvDevelopment)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 1 || !latest[0].IsCustom {
		t.Fatalf("registry entry not marked custom: %+v", latest)
	}
}

func TestRunSingleScanValidation(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig(tenantWithDB(1, "acme", "acmedb"))
	s := New(cfg, store, newFakeExtractor(), plainDecrypt, nil)

	if _, err := s.RunSingleScan(context.Background(), 99, "", models.TriggerOnDemand, "api", false); err == nil {
		t.Fatal("expected error for unknown tenant")
	}
	if _, err := s.RunSingleScan(context.Background(), 1, "qa", models.TriggerOnDemand, "api", false); err == nil {
		t.Fatal("expected error for invalid environment name")
	}
	if _, err := s.RunSingleScan(context.Background(), 1, models.EnvProduction, models.TriggerOnDemand, "api", false); err == nil {
		t.Fatal("expected error for unconfigured environment")
	}
}

func TestNotifierReceivesPendingAndMarksSent(t *testing.T) {
	store := newTestStore(t)
	ext := newFakeExtractor()
	ext.setCatalog("acmedb", proc("dbo", "GetOrders", "SELECT 1"))
	cfg := testConfig(tenantWithDB(1, "acme", "acmedb"))
	notifier := &fakeNotifier{}
	s := New(cfg, store, ext, plainDecrypt, notifier)

	ctx := context.Background()
	if _, err := s.RunFullScan(ctx, models.TriggerManual, "test", 0, false); err != nil {
		t.Fatal(err)
	}
	ext.setCatalog("acmedb", proc("dbo", "GetOrders", "SELECT 1 -- v2"))
	if _, err := s.RunFullScan(ctx, models.TriggerManual, "test", 0, false); err != nil {
		t.Fatal(err)
	}

	notifier.mu.Lock()
	calls, pending := notifier.calls, len(notifier.pending)
	notifier.mu.Unlock()
	if calls != 2 {
		t.Fatalf("notifier calls = %d, want 2", calls)
	}
	if pending != 1 {
		t.Fatalf("pending changes in last notification = %d, want 1", pending)
	}

	// Delivery flagged: nothing pending afterwards.
	left, err := store.PendingNotifications(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Fatalf("changes still pending after notification: %+v", left)
	}
}

func TestDecryptFailureFailsTarget(t *testing.T) {
	store := newTestStore(t)
	ext := newFakeExtractor()
	ext.setCatalog("acmedb", proc("dbo", "P1", "SELECT 1"))
	cfg := testConfig(tenantWithDB(1, "acme", "acmedb"))
	s := New(cfg, store, ext, func(string) (string, error) {
		return "", errors.New("master key not set")
	}, nil)

	log, err := s.RunFullScan(context.Background(), models.TriggerManual, "test", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if log.Status != models.ScanStatusCompletedWithErrors || !strings.Contains(log.ErrorSummary, "master key") {
		t.Fatalf("log: %+v", log)
	}
}
