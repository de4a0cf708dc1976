package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/procwatch/internal/config"
	"github.com/CosmoTheDev/procwatch/internal/database"
	"github.com/CosmoTheDev/procwatch/internal/repository"
	"github.com/CosmoTheDev/procwatch/models"
)

var logsLimit int

var logsCmd = &cobra.Command{
	Use:   "logs [scan-id]",
	Short: "Show recent scan history, or one scan in detail",
	Long: `Without arguments, lists recent scans newest first. With a scan id,
shows the per-target entries and the changes that scan recorded.

Examples:
  procwatch logs
  procwatch logs --limit 50
  procwatch logs 42`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().IntVar(&logsLimit, "limit", 20, "how many scans to list")
}

func runLogs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
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

	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid scan id %q", args[0])
		}
		return printScanDetail(ctx, store, id)
	}

	logs, err := store.ListRecentScanLogs(ctx, logsLimit)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		fmt.Println(dimStyle.Render("No scans recorded yet. Run 'procwatch scan'."))
		return nil
	}
	fmt.Println(headerStyle.Render("=== Scan History ==="))
	for _, log := range logs {
		duration := "-"
		if log.CompletedAt != nil {
			duration = fmt.Sprintf("%.1fs", log.CompletedAt.Sub(log.StartedAt).Seconds())
		}
		fmt.Printf("#%-5d %s  %-21s %-9s objects=%-5d changes=%-4d errors=%-3d %s\n",
			log.ID,
			log.StartedAt.Format("2006-01-02 15:04:05"),
			statusStyle(log.Status).Render(log.Status),
			log.Trigger,
			log.TotalObjectsScanned,
			log.TotalChangesDetected,
			log.TotalErrors,
			dimStyle.Render(duration))
	}
	return nil
}

func printScanDetail(ctx context.Context, store *repository.Store, id int64) error {
	log, err := store.GetScanLog(ctx, id)
	if err != nil {
		return err
	}
	entries, err := store.ListScanEntries(ctx, id)
	if err != nil {
		return err
	}
	changes, err := store.ListChanges(ctx, id)
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("=== Scan #%d ===", log.ID)))
	fmt.Printf("Status:   %s\nTrigger:  %s (%s)\nStarted:  %s\n",
		statusStyle(log.Status).Render(log.Status), log.Trigger, log.TriggeredBy,
		log.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Totals:   %d tenants / %d environments, %d objects, %d changes, %d errors\n\n",
		log.TotalTenants, log.TotalEnvironments, log.TotalObjectsScanned,
		log.TotalChangesDetected, log.TotalErrors)

	fmt.Println(headerStyle.Render("Targets"))
	for _, e := range entries {
		mark := successStyle.Render("ok    ")
		detail := fmt.Sprintf("objects=%d new=%d modified=%d deleted=%d",
			e.ObjectsFound, e.ObjectsNew, e.ObjectsModified, e.ObjectsDeleted)
		if !e.Success {
			mark = errorStyle.Render("failed")
			detail = e.ErrorMessage
		}
		fmt.Printf("  %s %s/%s  %s  %s\n", mark, e.TenantCode, e.Environment,
			detail, dimStyle.Render(fmt.Sprintf("%.1fs", e.DurationSeconds)))
	}

	if len(changes) > 0 {
		fmt.Println()
		fmt.Println(headerStyle.Render("Changes"))
		for _, c := range changes {
			fmt.Printf("  %s %-12s %s  %s\n",
				changeStyle(c.ChangeType).Render(fmt.Sprintf("%-8s", c.ChangeType)),
				"["+models.KindLabel(c.ObjectType)+"]",
				c.FullName,
				dimStyle.Render(c.TenantCode+"/"+c.Environment))
		}
	}
	return nil
}
