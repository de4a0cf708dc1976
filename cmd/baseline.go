package cmd

import (
	"context"
	"fmt"
	"os/user"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/procwatch/internal/baseline"
	"github.com/CosmoTheDev/procwatch/internal/comparator"
	"github.com/CosmoTheDev/procwatch/internal/config"
	"github.com/CosmoTheDev/procwatch/internal/database"
	"github.com/CosmoTheDev/procwatch/internal/repository"
	"github.com/CosmoTheDev/procwatch/models"
)

var (
	baselineName        string
	baselineDescription string
	baselineTenantID    int
	baselineEnvironment string
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Freeze and compare named baselines",
	Long: `A baseline is a frozen copy of one target's non-custom object
definitions, taken from its latest snapshots. Baselines survive later scans
unchanged, so a release state can be compared against live targets at any
time.`,
}

var baselineCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Freeze the latest snapshots of a target under a name",
	Example: `  procwatch baseline create --name v2.4.0 --tenant 1 --environment production
  procwatch baseline create --name pre-upgrade --description "before 2.5 rollout" --tenant 1 --environment staging`,
	RunE: runBaselineCreate,
}

var baselineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all baselines",
	RunE:  runBaselineList,
}

var baselineShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a baseline and its frozen objects",
	Args:  cobra.ExactArgs(1),
	RunE:  runBaselineShow,
}

var baselineCompareCmd = &cobra.Command{
	Use:   "compare <id>",
	Short: "Compare a baseline against a live target's latest snapshots",
	Long: `Compares the frozen definitions against the latest snapshots of a live
target. Without --tenant, the baseline's own source target is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runBaselineCompare,
}

var baselineDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a baseline and its frozen content",
	Args:  cobra.ExactArgs(1),
	RunE:  runBaselineDelete,
}

func init() {
	baselineCreateCmd.Flags().StringVar(&baselineName, "name", "", "baseline name, unique case-insensitively (required)")
	baselineCreateCmd.Flags().StringVar(&baselineDescription, "description", "", "free-form description")
	baselineCreateCmd.Flags().IntVar(&baselineTenantID, "tenant", 0, "source tenant id (required)")
	baselineCreateCmd.Flags().StringVar(&baselineEnvironment, "environment", "", "source environment (required)")
	_ = baselineCreateCmd.MarkFlagRequired("name")
	_ = baselineCreateCmd.MarkFlagRequired("tenant")
	_ = baselineCreateCmd.MarkFlagRequired("environment")

	baselineCompareCmd.Flags().IntVar(&baselineTenantID, "tenant", 0, "live tenant id (default: the baseline's source)")
	baselineCompareCmd.Flags().StringVar(&baselineEnvironment, "environment", "", "live environment (default: the baseline's source)")

	baselineCmd.AddCommand(
		baselineCreateCmd,
		baselineListCmd,
		baselineShowCmd,
		baselineCompareCmd,
		baselineDeleteCmd,
	)
}

// openBaselineManager loads config, opens the store, and builds a Manager.
func openBaselineManager(ctx context.Context) (*baseline.Manager, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	store := repository.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	return baseline.NewManager(cfg, store), func() { db.Close() }, nil
}

func runBaselineCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	m, closeDB, err := openBaselineManager(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	createdBy := "cli"
	if u, err := user.Current(); err == nil && u.Username != "" {
		createdBy = u.Username
	}
	b, err := m.Create(ctx, baselineName, baselineDescription, baselineTenantID, baselineEnvironment, createdBy)
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Baseline %q created: %d objects frozen from %s/%s (id %d)",
		b.Name, b.TotalObjects, b.SourceTenantCode, b.SourceEnvironment, b.ID)))
	return nil
}

func runBaselineList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	m, closeDB, err := openBaselineManager(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	baselines, err := m.List(ctx)
	if err != nil {
		return err
	}
	if len(baselines) == 0 {
		fmt.Println(dimStyle.Render("No baselines. Create one with 'procwatch baseline create'."))
		return nil
	}
	fmt.Println(headerStyle.Render("=== Baselines ==="))
	for _, b := range baselines {
		fmt.Printf("#%-4d %-24s %s/%s  %d objects  %s\n",
			b.ID, b.Name, b.SourceTenantCode, b.SourceEnvironment,
			b.TotalObjects, dimStyle.Render(b.CreatedAt.Format("2006-01-02 15:04")))
	}
	return nil
}

func runBaselineShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid baseline id %q", args[0])
	}
	ctx := context.Background()
	m, closeDB, err := openBaselineManager(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	b, objects, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println(headerStyle.Render(fmt.Sprintf("=== Baseline %q ===", b.Name)))
	fmt.Printf("Source:  %s/%s\nCreated: %s by %s\nObjects: %d\n",
		b.SourceTenantCode, b.SourceEnvironment,
		b.CreatedAt.Format("2006-01-02 15:04"), b.CreatedBy, b.TotalObjects)
	if b.Description != "" {
		fmt.Printf("Notes:   %s\n", b.Description)
	}
	fmt.Println()
	for _, obj := range objects {
		fmt.Printf("  %-12s %s\n", "["+models.KindLabel(obj.ObjectType)+"]", obj.FullName)
	}
	return nil
}

func runBaselineCompare(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid baseline id %q", args[0])
	}
	ctx := context.Background()
	m, closeDB, err := openBaselineManager(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	summary, err := m.CompareToLive(ctx, id, baselineTenantID, baselineEnvironment)
	if err != nil {
		return err
	}
	fmt.Println(headerStyle.Render(fmt.Sprintf("=== baseline %s/%s vs live %s/%s ===",
		summary.SideA.TenantCode, summary.SideA.Environment,
		summary.SideB.TenantCode, summary.SideB.Environment)))
	fmt.Printf("Unchanged: %d  Drifted: %d  Removed: %d  Added: %d\n\n",
		summary.Identical, summary.Different, summary.OnlyInA, summary.OnlyInB)
	for _, r := range summary.Results {
		switch r.Status {
		case comparator.StatusDifferent:
			fmt.Printf("%s %s\n", modifiedStyle.Render("~ drifted"), r.FullName)
		case comparator.StatusOnlyInA:
			fmt.Printf("%s %s\n", deletedStyle.Render("- removed"), r.FullName)
		case comparator.StatusOnlyInB:
			fmt.Printf("%s %s\n", createdStyle.Render("+ added  "), r.FullName)
		}
	}
	if summary.Different == 0 && summary.OnlyInA == 0 && summary.OnlyInB == 0 {
		fmt.Println(successStyle.Render("Live target matches the baseline."))
	}
	return nil
}

func runBaselineDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid baseline id %q", args[0])
	}
	ctx := context.Background()
	m, closeDB, err := openBaselineManager(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := m.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Baseline %d deleted.", id)))
	return nil
}
