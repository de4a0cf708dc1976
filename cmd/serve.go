package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/procwatch/internal/config"
	"github.com/CosmoTheDev/procwatch/internal/database"
	"github.com/CosmoTheDev/procwatch/internal/extractor"
	"github.com/CosmoTheDev/procwatch/internal/gateway"
	"github.com/CosmoTheDev/procwatch/internal/notify"
	"github.com/CosmoTheDev/procwatch/internal/queue"
	"github.com/CosmoTheDev/procwatch/internal/repository"
	"github.com/CosmoTheDev/procwatch/internal/scanner"
	"github.com/CosmoTheDev/procwatch/internal/secrets"
	"github.com/CosmoTheDev/procwatch/models"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the procwatch daemon: scheduled scans plus the REST API",
	Long: `Starts the long-running daemon. It scans all targets on the configured
interval, serves on-demand scan requests through a bounded queue, and
exposes a local HTTP API (default: http://127.0.0.1:6390).

Quick API reference:
  GET    /health                       liveness check
  GET    /api/status                   daemon status and queue depth
  POST   /api/scans                    queue an on-demand scan (429 when full)
  GET    /api/scans                    recent scan history (?limit=N)
  GET    /api/scans/{id}               one scan with its per-target entries
  GET    /api/scans/{id}/changes       changes recorded by one scan
  GET    /api/compare                  compare two targets
  GET    /api/diff                     line diff between two snapshots
  GET    /api/baselines                list baselines
  POST   /api/baselines                freeze a new baseline
  DELETE /api/baselines/{id}           delete a baseline
  GET    /api/baselines/{id}/compare   compare a baseline against live`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0,
		"HTTP port to listen on (default 6390, overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if servePort > 0 {
		cfg.Gateway.Port = servePort
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	store := repository.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s := scanner.New(cfg, store,
		extractor.NewMySQL(time.Duration(cfg.Scheduler.ConnectionTimeoutSeconds)*time.Second),
		secrets.Decrypt,
		notify.NewDispatcher(cfg.Notify),
	)
	q := queue.New(cfg.Queue.Capacity)

	// Scheduled full scans.
	interval := cfg.Scheduler.IntervalMinutes
	if interval <= 0 {
		interval = 360
	}
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %dm", interval), func() {
		if _, err := s.RunFullScan(ctx, models.TriggerScheduled, "scheduler", 0, false); err != nil && ctx.Err() == nil {
			slog.Error("Scheduled scan failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("registering scan schedule: %w", err)
	}
	c.Start()
	defer c.Stop()
	slog.Info("Scheduler started", "interval_minutes", interval)

	if cfg.Scheduler.RunOnStartup {
		go func() {
			if _, err := s.RunFullScan(ctx, models.TriggerScheduled, "startup", 0, false); err != nil && ctx.Err() == nil {
				slog.Error("Startup scan failed", "error", err)
			}
		}()
	}

	// On-demand scan worker: drains the queue one request at a time.
	go runQueueWorker(ctx, q, s)

	if cfg.Gateway.Port == 0 {
		slog.Info("Gateway disabled (port 0); serving scheduler only")
		<-ctx.Done()
		return nil
	}
	return gateway.New(cfg, store, q).Start(ctx)
}

// runQueueWorker executes queued on-demand scans sequentially until ctx ends.
func runQueueWorker(ctx context.Context, q *queue.Queue, s *scanner.Scanner) {
	for {
		req, err := q.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Error("Queue worker stopped", "error", err)
			}
			return
		}
		slog.Info("Processing queued scan",
			"tenant_id", req.TenantID,
			"environment", req.Environment,
			"requested_by", req.RequestedBy,
			"waited", time.Since(req.EnqueuedAt).Round(time.Millisecond),
		)
		if _, err := s.RunSingleScan(ctx, req.TenantID, req.Environment, models.TriggerOnDemand, req.RequestedBy, req.ScanAll); err != nil && ctx.Err() == nil {
			slog.Error("Queued scan failed", "tenant_id", req.TenantID, "error", err)
		}
	}
}
