package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/procwatch/internal/config"
	"github.com/CosmoTheDev/procwatch/internal/database"
	"github.com/CosmoTheDev/procwatch/internal/extractor"
	"github.com/CosmoTheDev/procwatch/internal/notify"
	"github.com/CosmoTheDev/procwatch/internal/repository"
	"github.com/CosmoTheDev/procwatch/internal/scanner"
	"github.com/CosmoTheDev/procwatch/internal/secrets"
	"github.com/CosmoTheDev/procwatch/models"
)

var (
	scanTenantID    int
	scanEnvironment string
	scanAll         bool
	scanParallel    int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan targets and record object snapshots and changes",
	Long: `Connects to the configured tenant databases, extracts every tracked
procedure, view and function, stores a snapshot of each definition, and
reports what changed since the previous scan.

Examples:
  procwatch scan
  procwatch scan --tenant 3
  procwatch scan --tenant 3 --environment production
  procwatch scan --all`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTenantID, "tenant", 0, "scan a single tenant by id (default: all tenants)")
	scanCmd.Flags().StringVar(&scanEnvironment, "environment", "", "restrict a single-tenant scan to one environment")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "ignore the tracked-object registry and scan every object")
	scanCmd.Flags().IntVar(&scanParallel, "parallel", 0, "max tenants scanned concurrently (default: from config)")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nCancelling scan...")
		cancel()
	}()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if len(cfg.Tenants) == 0 {
		return fmt.Errorf("no tenants configured; run 'procwatch config init' and edit the config file")
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

	var log *models.ScanLog
	if scanTenantID > 0 {
		log, err = s.RunSingleScan(ctx, scanTenantID, scanEnvironment, models.TriggerManual, "cli", scanAll)
	} else {
		if scanEnvironment != "" {
			return fmt.Errorf("--environment requires --tenant")
		}
		log, err = s.RunFullScan(ctx, models.TriggerManual, "cli", scanParallel, scanAll)
	}
	if err != nil {
		return err
	}

	printScanSummary(log)
	if log.Status == models.ScanStatusFailed {
		return fmt.Errorf("scan failed: %s", log.ErrorSummary)
	}
	return nil
}

func printScanSummary(log *models.ScanLog) {
	fmt.Println(headerStyle.Render("=== Scan Summary ==="))
	fmt.Printf("Scan #%d  %s\n", log.ID, statusStyle(log.Status).Render(log.Status))
	fmt.Printf("Targets:  %d tenants / %d environments\n", log.TotalTenants, log.TotalEnvironments)
	fmt.Printf("Objects:  %d scanned, %d changes detected\n", log.TotalObjectsScanned, log.TotalChangesDetected)
	if log.TotalErrors > 0 {
		fmt.Printf("Errors:   %d\n%s\n", log.TotalErrors, errorStyle.Render(log.ErrorSummary))
	}
	if log.CompletedAt != nil {
		fmt.Println(dimStyle.Render(fmt.Sprintf("Duration: %.1fs", log.CompletedAt.Sub(log.StartedAt).Seconds())))
	}
}
