package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/BartekS5/casemigrate/internal/apperr"
	"github.com/BartekS5/casemigrate/internal/config"
	"github.com/BartekS5/casemigrate/internal/export"
	"github.com/BartekS5/casemigrate/internal/resource"
	"github.com/BartekS5/casemigrate/internal/sessions"
	"github.com/BartekS5/casemigrate/internal/verification"
	"github.com/BartekS5/casemigrate/pkg/logger"
	"github.com/BartekS5/casemigrate/pkg/models"
	"github.com/BartekS5/casemigrate/pkg/utils"
)

func newResourcesCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "List resource types with their storage target and live migratability",
		RunE: func(c *cobra.Command, args []string) error {
			d, err := open(c.Context(), needs{sql: true})
			if err != nil {
				return err
			}
			defer d.Close()

			registry := resource.NewRegistry(d.Records, d.Migrations)
			w := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tTABLE\tDEPENDS ON\tMIGRATABLE")
			for _, rt := range resource.All {
				table, err := resource.TableName(rt)
				if err != nil {
					table = "-"
				}
				dep := "-"
				if t, ok := rt.Dependency(); ok {
					dep = t.Name()
				}
				ok, err := registry.IsMigratable(c.Context(), rt)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", rt.Name(), table, dep, ok)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			cases, err := registry.CanEnrichCases(c.Context())
			if err != nil {
				return err
			}
			sess, err := registry.CanEnrichSessions(c.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "\ncan enrich cases: %v\ncan enrich sessions: %v\n", cases, sess)
			return nil
		},
	}
}

func newSessionsCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Shallow session operations",
	}
	var metricsFile string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Derive shallow sessions from migrated cases",
		RunE: func(c *cobra.Command, args []string) error {
			d, err := open(c.Context(), needs{})
			if err != nil {
				return err
			}
			defer d.Close()
			defer writeMetrics(d.Metrics, metricsFile)

			stats, err := sessions.NewGenerator(d.Records, d.Metrics).Generate(c.Context())
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), stats)
		},
	}
	generate.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	cmd.AddCommand(generate)
	return cmd
}

func newVerifyCmd(open opener) *cobra.Command {
	var (
		resourceName string
		sample       int
		statusOnly   bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare a sample of stored rows with the source API",
		RunE: func(c *cobra.Command, args []string) error {
			d, err := open(c.Context(), needs{api: !statusOnly})
			if err != nil {
				return err
			}
			defer d.Close()

			v := verification.NewVerifier(d.Records, d.Source, d.Metrics)
			if statusOnly {
				counts, err := v.Status(c.Context(), resourceName)
				if err != nil {
					return err
				}
				return printJSON(c.OutOrStdout(), counts)
			}
			report, err := v.Verify(c.Context(), resourceName, sample)
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVarP(&resourceName, "resource", "r", "", "Resource type to verify")
	cmd.Flags().IntVarP(&sample, "sample", "s", verification.DefaultSampleSize, "Rows to sample")
	cmd.Flags().BoolVar(&statusOnly, "status", false, "Only count rows per verification status")
	cmd.MarkFlagRequired("resource")
	return cmd
}

type exportOptions struct {
	Resource string
	Format   string
	Mapping  string
	Out      string
}

const shallowSessionsExport = "shallow_sessions"

func newExportCmd(open opener) *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored rows as CSV or JSON",
		RunE: func(c *cobra.Command, args []string) error {
			d, err := open(c.Context(), needs{})
			if err != nil {
				return err
			}
			defer d.Close()

			table, mapping, err := exportTarget(opts)
			if err != nil {
				return err
			}
			rows, err := d.Records.All(c.Context(), table)
			if err != nil {
				return err
			}

			var w io.Writer = c.OutOrStdout()
			if opts.Out != "" {
				f, err := os.Create(opts.Out)
				if err != nil {
					return errors.Wrap(err, "creating export file")
				}
				defer f.Close()
				w = f
			}

			switch opts.Format {
			case "csv":
				err = export.WriteCSV(w, mapping, rows)
			case "json":
				err = export.WriteJSON(w, mapping, rows)
			default:
				err = apperr.New(apperr.InvalidInput, "unknown export format %q", opts.Format)
			}
			if err != nil {
				return err
			}
			logger.Infof("Exported %d rows from %s", len(rows), table)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Resource, "resource", "r", "", "Resource type, or shallow_sessions")
	cmd.Flags().StringVar(&opts.Format, "format", "csv", "Output format: csv or json")
	cmd.Flags().StringVarP(&opts.Mapping, "mapping", "m", "", "YAML export mapping file")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "Output file (defaults to stdout)")
	cmd.MarkFlagRequired("resource")
	return cmd
}

// exportTarget picks the table and header mapping for an export. A mapping
// file entry wins over the built-in mapping.
func exportTarget(opts *exportOptions) (string, models.HeaderMapping, error) {
	var file *models.ExportMapping
	if opts.Mapping != "" {
		m, err := config.LoadMapping(opts.Mapping)
		if err != nil {
			return "", nil, err
		}
		file = m
	}

	if utils.Snake(opts.Resource) == shallowSessionsExport {
		if h, ok := lookupMapping(file, func(k string) bool { return utils.Snake(k) == shallowSessionsExport }); ok {
			return models.TableShallowSessions, h, nil
		}
		return models.TableShallowSessions, export.ShallowSessionMapping, nil
	}

	rt, err := resource.Resolve(opts.Resource)
	if err != nil {
		return "", nil, err
	}
	table, err := resource.TableName(rt)
	if err != nil {
		return "", nil, err
	}
	if h, ok := lookupMapping(file, func(k string) bool {
		t, err := resource.Resolve(k)
		return err == nil && t == rt
	}); ok {
		return table, h, nil
	}
	h, ok := export.DefaultMapping(rt)
	if !ok {
		return "", nil, apperr.Unsupported("export", rt.Name())
	}
	return table, h, nil
}

// lookupMapping returns the entry of the first matching key in sorted
// order, so "case" wins over "cases" when a file carries both.
func lookupMapping(file *models.ExportMapping, match func(string) bool) (models.HeaderMapping, bool) {
	if file == nil {
		return nil, false
	}
	keys := make([]string, 0, len(file.Exports))
	for k := range file.Exports {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if match(k) {
			return file.Exports[k], true
		}
	}
	return nil, false
}
