package cli

import (
	"github.com/spf13/cobra"

	"github.com/BartekS5/casemigrate/internal/etl"
	"github.com/BartekS5/casemigrate/internal/filter"
	"github.com/BartekS5/casemigrate/internal/migration"
	"github.com/BartekS5/casemigrate/internal/resource"
	"github.com/BartekS5/casemigrate/internal/store/memory"
	"github.com/BartekS5/casemigrate/pkg/logger"
)

type MigrateOptions struct {
	Name        string
	Resources   []string
	Filters     []string
	BatchSize   int
	DryRun      bool
	MaxPages    int
	MetricsFile string
}

func NewMigrateCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Tracked migration runs",
	}
	cmd.AddCommand(newMigrateRunCmd(open), newMigrateStatusCmd(open), newMigrateListCmd(open), newMigrateCancelCmd(open))
	return cmd
}

func newMigrateRunCmd(open opener) *cobra.Command {
	opts := &MigrateOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create a migration and run it to completion",
		RunE: func(c *cobra.Command, args []string) error {
			return runMigration(c, open, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "Migration name (defaults to the resource list)")
	cmd.Flags().StringArrayVarP(&opts.Resources, "resource", "r", nil, "Resource type to migrate (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Filters, "filter", "f", nil, "Filter as key=value (repeatable)")
	cmd.Flags().IntVarP(&opts.BatchSize, "batch-size", "b", 0, "Items per page (defaults to BATCH_SIZE)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Fetch and transform without storing anything")
	cmd.Flags().IntVar(&opts.MaxPages, "max-pages", 0, "Stop each resource after this many pages")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	cmd.MarkFlagRequired("resource")
	return cmd
}

func runMigration(c *cobra.Command, open opener, opts *MigrateOptions) error {
	ctx := c.Context()
	filters, err := filter.ParseAssignments(opts.Filters)
	if err != nil {
		return err
	}
	d, err := open(ctx, needs{sql: !opts.DryRun, api: true})
	if err != nil {
		return err
	}
	defer d.Close()
	defer writeMetrics(d.Metrics, opts.MetricsFile)

	repo := d.Migrations
	if opts.DryRun || repo == nil {
		repo = memory.NewMigrations()
	}
	tracker := migration.NewTracker(repo)

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = d.BatchSize
	}
	types := make([]interface{}, len(opts.Resources))
	for i, r := range opts.Resources {
		types[i] = r
	}
	m, err := tracker.Create(ctx, migration.CreateInput{
		Name:          opts.Name,
		ResourceTypes: types,
		Filters:       filters,
		BatchSize:     batchSize,
	})
	if err != nil {
		return err
	}
	logger.Infof("Created migration %s for %v", m.ID, m.ResourceTypes)

	registry := resource.NewRegistry(d.Records, repo)
	pipeline := etl.NewEnhancedPipeline(tracker, registry, &etl.APIExtractor{Client: d.Source}, etl.NewStoreLoader(d.Records), d.Metrics, opts.DryRun)
	pipeline.MaxPages = opts.MaxPages

	summary, runErr := pipeline.Run(ctx, m.ID)
	if err := printJSON(c.OutOrStdout(), map[string]interface{}{
		"migration_id": m.ID,
		"summary":      summary,
	}); err != nil {
		return err
	}
	return runErr
}

func newMigrateStatusCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "status <migration-id>",
		Short: "Show a migration and its batches",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			d, err := open(c.Context(), needs{sql: true})
			if err != nil {
				return err
			}
			defer d.Close()

			tracker := migration.NewTracker(d.Migrations)
			m, err := tracker.Get(c.Context(), args[0])
			if err != nil {
				return err
			}
			batches, err := tracker.Batches(c.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), map[string]interface{}{
				"migration": m,
				"batches":   batches,
			})
		},
	}
}

func newMigrateListCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List migrations",
		RunE: func(c *cobra.Command, args []string) error {
			d, err := open(c.Context(), needs{sql: true})
			if err != nil {
				return err
			}
			defer d.Close()

			list, err := migration.NewTracker(d.Migrations).List(c.Context())
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), list)
		},
	}
}

func newMigrateCancelCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <migration-id>",
		Short: "Cancel a pending or running migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			d, err := open(c.Context(), needs{sql: true})
			if err != nil {
				return err
			}
			defer d.Close()

			if err := migration.NewTracker(d.Migrations).Cancel(c.Context(), args[0]); err != nil {
				return err
			}
			logger.Infof("Migration %s cancelled", args[0])
			return nil
		},
	}
}
