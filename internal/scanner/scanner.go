// Package scanner drives scans across (tenant × environment) targets with
// bounded parallelism, per-target deadlines and partial-failure accounting.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CosmoTheDev/procwatch/internal/config"
	"github.com/CosmoTheDev/procwatch/internal/extractor"
	"github.com/CosmoTheDev/procwatch/internal/objdef"
	"github.com/CosmoTheDev/procwatch/internal/repository"
	"github.com/CosmoTheDev/procwatch/models"
)

const (
	// defaultTargetDeadline caps connect + extract + repository writes for
	// one target. Fixed by contract; tests shrink it through the field.
	defaultTargetDeadline = 90 * time.Second

	// errorSummaryMaxLines caps how many per-target error strings the scan
	// log retains.
	errorSummaryMaxLines = 20

	defaultMaxParallelTenants = 5
)

// Notifier receives the aggregated result of one finished scan. The scanner
// calls it exactly once per scan and never retries it.
type Notifier interface {
	Notify(ctx context.Context, log *models.ScanLog, entries []models.ScanEntry, pending []models.DetectedChange)
}

// DecryptFunc resolves a possibly-encrypted config credential to plain text.
type DecryptFunc func(opaque string) (string, error)

// Scanner orchestrates full and single scans.
type Scanner struct {
	cfg      *config.Config
	store    *repository.Store
	extract  extractor.Extractor
	decrypt  DecryptFunc
	notifier Notifier // optional

	// TargetDeadline bounds one target's connect+extract+write window.
	TargetDeadline time.Duration
}

// New creates a Scanner. notifier may be nil.
func New(cfg *config.Config, store *repository.Store, extract extractor.Extractor, decrypt DecryptFunc, notifier Notifier) *Scanner {
	return &Scanner{
		cfg:            cfg,
		store:          store,
		extract:        extract,
		decrypt:        decrypt,
		notifier:       notifier,
		TargetDeadline: defaultTargetDeadline,
	}
}

// RunFullScan scans every configured tenant and environment. Up to
// maxParallel tenants run concurrently; each tenant's environments run
// sequentially. The returned ScanLog always carries a terminal status.
func (s *Scanner) RunFullScan(ctx context.Context, trigger, triggeredBy string, maxParallel int, scanAll bool) (*models.ScanLog, error) {
	if maxParallel <= 0 {
		maxParallel = s.cfg.Scheduler.MaxParallelTenants
	}
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallelTenants
	}
	return s.run(ctx, trigger, triggeredBy, maxParallel, scanAll, s.cfg.Tenants)
}

// RunSingleScan scans one tenant, optionally restricted to one environment
// (empty means all of the tenant's environments).
func (s *Scanner) RunSingleScan(ctx context.Context, tenantID int, environment, trigger, triggeredBy string, scanAll bool) (*models.ScanLog, error) {
	tenant := s.cfg.Tenant(tenantID)
	if tenant == nil {
		return nil, fmt.Errorf("%w: unknown tenant %d", repository.ErrInvariant, tenantID)
	}
	selected := *tenant
	if environment != "" {
		if !models.ValidEnvironment(environment) {
			return nil, fmt.Errorf("%w: unknown environment %q", repository.ErrInvariant, environment)
		}
		selected.Environments = nil
		for _, env := range tenant.Environments {
			if env.Environment == environment {
				selected.Environments = append(selected.Environments, env)
			}
		}
		if len(selected.Environments) == 0 {
			return nil, fmt.Errorf("%w: tenant %q has no %s environment", repository.ErrInvariant, tenant.Code, environment)
		}
	}
	return s.run(ctx, trigger, triggeredBy, 1, scanAll, []config.TenantConfig{selected})
}

func (s *Scanner) run(ctx context.Context, trigger, triggeredBy string, maxParallel int, scanAll bool, tenants []config.TenantConfig) (*models.ScanLog, error) {
	log := &models.ScanLog{
		StartedAt:   time.Now().UTC(),
		Status:      models.ScanStatusRunning,
		Trigger:     trigger,
		TriggeredBy: triggeredBy,
	}
	if err := s.store.CreateScanLog(ctx, log); err != nil {
		return nil, fmt.Errorf("creating scan log: %w", err)
	}

	slog.Info("Scan starting",
		"scan_log_id", log.ID,
		"trigger", trigger,
		"tenants", len(tenants),
		"max_parallel", maxParallel,
	)

	totals := &scanTotals{}
	var g errgroup.Group
	g.SetLimit(maxParallel)
	for _, tenant := range tenants {
		tenant := tenant
		filter := s.baseFilter(tenant, scanAll)
		g.Go(func() error {
			s.warnShortTenantCode(tenant)
			// Environments of one tenant run sequentially so a single
			// target's database resources stay bounded.
			for _, env := range tenant.Environments {
				if ctx.Err() != nil {
					return nil
				}
				s.scanTarget(ctx, log.ID, tenant, env, filter, totals)
			}
			return nil
		})
	}
	_ = g.Wait()

	now := time.Now().UTC()
	log.CompletedAt = &now
	log.TotalTenants = len(tenants)
	log.TotalEnvironments = int(totals.targets.Load())
	log.TotalObjectsScanned = int(totals.objects.Load())
	log.TotalChangesDetected = int(totals.changes.Load())
	log.TotalErrors = int(totals.errors.Load())

	switch {
	case ctx.Err() != nil:
		log.Status = models.ScanStatusFailed
		log.ErrorSummary = "Cancelled"
	case log.TotalErrors > 0:
		log.Status = models.ScanStatusCompletedWithErrors
		log.ErrorSummary = totals.summary()
	default:
		log.Status = models.ScanStatusCompleted
	}

	// Final writes outlive cancellation so the log reaches a terminal state
	// on disk even for cancelled scans.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.store.UpdateScanLog(persistCtx, log); err != nil {
		slog.Error("Failed to persist final scan log state", "scan_log_id", log.ID, "error", err)
		return log, fmt.Errorf("persisting scan log %d: %w", log.ID, err)
	}

	slog.Info("Scan finished",
		"scan_log_id", log.ID,
		"status", log.Status,
		"objects", log.TotalObjectsScanned,
		"changes", log.TotalChangesDetected,
		"errors", log.TotalErrors,
	)

	s.notifyAfterScan(persistCtx, log)
	return log, nil
}

// notifyAfterScan hands the finished scan to the notifier and marks delivered
// changes. Notification failures never fail a scan.
func (s *Scanner) notifyAfterScan(ctx context.Context, log *models.ScanLog) {
	if s.notifier == nil {
		return
	}
	entries, err := s.store.ListScanEntries(ctx, log.ID)
	if err != nil {
		slog.Warn("Skipping notification: cannot load scan entries", "scan_log_id", log.ID, "error", err)
		return
	}
	pending, err := s.store.PendingNotifications(ctx)
	if err != nil {
		slog.Warn("Skipping notification: cannot load pending changes", "scan_log_id", log.ID, "error", err)
		return
	}
	s.notifier.Notify(ctx, log, entries, pending)
	if len(pending) == 0 {
		return
	}
	ids := make([]int64, len(pending))
	for i, c := range pending {
		ids[i] = c.ID
	}
	if err := s.store.MarkNotificationSent(ctx, ids); err != nil {
		slog.Warn("Failed to mark notifications sent", "count", len(ids), "error", err)
	}
}

// baseFilter builds the per-tenant inclusion filter: nil means scan
// everything. Otherwise it is the union of global registry entries and the
// tenant's own, keyed case-insensitively.
func (s *Scanner) baseFilter(tenant config.TenantConfig, scanAll bool) map[string]struct{} {
	if scanAll || len(s.cfg.TrackedObjects) == 0 {
		return nil
	}
	filter := make(map[string]struct{})
	for _, tracked := range s.cfg.TrackedObjects {
		if tracked.TenantID == 0 || tracked.TenantID == tenant.ID {
			filter[objdef.Key(tracked.FullName)] = struct{}{}
		}
	}
	return filter
}

func (s *Scanner) warnShortTenantCode(tenant config.TenantConfig) {
	if s.cfg.CustomDetection.ByConvention && len(tenant.Code) > 0 && len(tenant.Code) < 3 {
		slog.Warn("Short tenant code may over-match custom objects by convention",
			"tenant", tenant.Code)
	}
}

// scanTotals aggregates counters across concurrently scanned targets.
type scanTotals struct {
	targets atomic.Int64
	objects atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64

	mu    sync.Mutex
	lines []string
}

// addError records one target failure. Only the first errorSummaryMaxLines
// messages are retained for the summary; the error count is exact.
func (t *scanTotals) addError(line string) {
	t.errors.Add(1)
	t.mu.Lock()
	if len(t.lines) < errorSummaryMaxLines {
		t.lines = append(t.lines, line)
	}
	t.mu.Unlock()
}

// summary is read only after the scatter-gather join.
func (t *scanTotals) summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
