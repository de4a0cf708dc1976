package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/procwatch/internal/comparator"
	"github.com/CosmoTheDev/procwatch/internal/config"
	"github.com/CosmoTheDev/procwatch/internal/database"
	"github.com/CosmoTheDev/procwatch/internal/extractor"
	"github.com/CosmoTheDev/procwatch/internal/objdef"
	"github.com/CosmoTheDev/procwatch/internal/repository"
	"github.com/CosmoTheDev/procwatch/internal/scanner"
	"github.com/CosmoTheDev/procwatch/internal/secrets"
	"github.com/CosmoTheDev/procwatch/models"
)

var (
	compareTenantA int
	compareEnvA    string
	compareTenantB int
	compareEnvB    string
	compareKind    string
	compareDiff    string
	compareRefresh bool
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare object definitions between two targets",
	Long: `Compares the latest snapshots of two targets by definition hash and
lists identical, different, and one-sided objects. With --diff, prints the
line-level difference for one object.

Examples:
  procwatch compare --tenant-a 1 --env-a production --tenant-b 2 --env-b production
  procwatch compare --tenant-a 1 --env-a staging --tenant-b 1 --env-b production --kind P
  procwatch compare --tenant-a 1 --env-a production --tenant-b 2 --env-b production --diff dbo.GetOrders`,
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().IntVar(&compareTenantA, "tenant-a", 0, "first tenant id (required)")
	compareCmd.Flags().StringVar(&compareEnvA, "env-a", "", "first environment (required)")
	compareCmd.Flags().IntVar(&compareTenantB, "tenant-b", 0, "second tenant id (required)")
	compareCmd.Flags().StringVar(&compareEnvB, "env-b", "", "second environment (required)")
	compareCmd.Flags().StringVar(&compareKind, "kind", "", "restrict to one object kind (P, V, FN, TF, IF)")
	compareCmd.Flags().StringVar(&compareDiff, "diff", "", "print the line diff for one object (schema.name)")
	compareCmd.Flags().BoolVar(&compareRefresh, "refresh", false, "scan both targets first so the comparison is current")
	_ = compareCmd.MarkFlagRequired("tenant-a")
	_ = compareCmd.MarkFlagRequired("env-a")
	_ = compareCmd.MarkFlagRequired("tenant-b")
	_ = compareCmd.MarkFlagRequired("env-b")
}

func runCompare(cmd *cobra.Command, args []string) error {
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

	sideA, err := resolveSide(cfg, compareTenantA, compareEnvA)
	if err != nil {
		return err
	}
	sideB, err := resolveSide(cfg, compareTenantB, compareEnvB)
	if err != nil {
		return err
	}

	// Refresh is best-effort: a stale comparison with a warning beats no
	// comparison at all.
	if compareRefresh {
		s := scanner.New(cfg, store,
			extractor.NewMySQL(time.Duration(cfg.Scheduler.ConnectionTimeoutSeconds)*time.Second),
			secrets.Decrypt, nil)
		for _, side := range []comparator.Side{sideA, sideB} {
			if _, err := s.RunSingleScan(ctx, side.TenantID, side.Environment, models.TriggerCompare, "compare", false); err != nil {
				slog.Warn("Refresh scan failed; comparing stored snapshots",
					"tenant_id", side.TenantID, "environment", side.Environment, "error", err)
				fmt.Println(warnStyle.Render(fmt.Sprintf(
					"Warning: could not refresh %s/%s; using stored snapshots", side.TenantCode, side.Environment)))
			}
		}
	}

	comp := comparator.New(store)
	summary, err := comp.Compare(ctx, sideA, sideB, compareKind)
	if err != nil {
		return err
	}

	if compareDiff != "" {
		return printObjectDiff(ctx, comp, summary, compareDiff)
	}
	printCompareSummary(summary)
	return nil
}

func resolveSide(cfg *config.Config, tenantID int, environment string) (comparator.Side, error) {
	tenant := cfg.Tenant(tenantID)
	if tenant == nil {
		return comparator.Side{}, fmt.Errorf("unknown tenant %d", tenantID)
	}
	if !models.ValidEnvironment(environment) {
		return comparator.Side{}, fmt.Errorf("unknown environment %q (valid: development, staging, production)", environment)
	}
	return comparator.Side{TenantID: tenant.ID, TenantCode: tenant.Code, Environment: environment}, nil
}

func printCompareSummary(summary *comparator.Summary) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("=== %s/%s vs %s/%s ===",
		summary.SideA.TenantCode, summary.SideA.Environment,
		summary.SideB.TenantCode, summary.SideB.Environment)))
	fmt.Printf("Identical: %d  Different: %d  Only in A: %d  Only in B: %d\n\n",
		summary.Identical, summary.Different, summary.OnlyInA, summary.OnlyInB)
	for _, r := range summary.Results {
		if r.Status == comparator.StatusIdentical {
			continue
		}
		fmt.Printf("%s  %-12s %s\n",
			statusMark(r.Status), "["+models.KindLabel(r.ObjectType)+"]", r.FullName)
	}
	if summary.Different == 0 && summary.OnlyInA == 0 && summary.OnlyInB == 0 {
		fmt.Println(successStyle.Render("Targets are identical."))
	}
}

func statusMark(status string) string {
	switch status {
	case comparator.StatusDifferent:
		return modifiedStyle.Render("≠")
	case comparator.StatusOnlyInA:
		return deletedStyle.Render("A")
	case comparator.StatusOnlyInB:
		return createdStyle.Render("B")
	default:
		return " "
	}
}

func printObjectDiff(ctx context.Context, comp *comparator.Comparator, summary *comparator.Summary, fullName string) error {
	for _, r := range summary.Results {
		if !objdef.KeysEqual(r.FullName, fullName) {
			continue
		}
		switch r.Status {
		case comparator.StatusIdentical:
			fmt.Println(successStyle.Render(fullName + " is identical on both targets."))
			return nil
		case comparator.StatusOnlyInA, comparator.StatusOnlyInB:
			return fmt.Errorf("%s exists on only one target (%s)", fullName, r.Status)
		}
		diff, err := comp.DiffSnapshots(ctx, r.RefA, r.RefB)
		if err != nil {
			return err
		}
		fmt.Println(headerStyle.Render("=== " + fullName + " ==="))
		fmt.Printf("+%d lines, -%d lines\n\n%s", diff.LinesAdded, diff.LinesRemoved, diff.Text())
		return nil
	}
	return fmt.Errorf("object %q not found on either target", fullName)
}
