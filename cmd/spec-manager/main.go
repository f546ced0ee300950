// Command spec-manager maintains the OpenAPI specs stored in Postgres that
// yas-mcp serves with --swagger-file db:<name>.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/ubermorgenland/yas-mcp/pkg/database"
	"github.com/ubermorgenland/yas-mcp/pkg/logger"
	"github.com/ubermorgenland/yas-mcp/pkg/models"
	"github.com/ubermorgenland/yas-mcp/pkg/repository"
	"github.com/ubermorgenland/yas-mcp/pkg/server"
	"github.com/ubermorgenland/yas-mcp/pkg/services"
)

type globalFlags struct {
	configFile  string
	databaseURL string
	logLevel    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "spec-manager",
		Short:         "Manage OpenAPI specs stored in the yas-mcp database",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (database.url and logging are read from it)")
	root.PersistentFlags().StringVar(&flags.databaseURL, "database-url", "", "PostgreSQL URL (default $YAS_MCP_DATABASE_URL or $DATABASE_URL)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		importCmd(&flags),
		importDirCmd(&flags),
		seedCmd(&flags),
		listCmd(&flags),
		showCmd(&flags),
		deleteCmd(&flags),
		setActiveCmd(&flags, "activate", true),
		setActiveCmd(&flags, "deactivate", false),
		migrateCmd(&flags),
	)
	return root
}

// withService opens the database, migrates it and hands a spec service to fn
func withService(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, svc *services.SpecService) error) error {
	ctx := cmd.Context()
	db, lg, err := openDatabase(ctx, flags)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, services.NewSpecService(repository.NewOpenAPISpecRepository(db), lg))
}

func openDatabase(ctx context.Context, flags *globalFlags) (*sql.DB, *log.Logger, error) {
	cfg, err := server.LoadConfig(flags.configFile, "")
	if err != nil {
		return nil, nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.databaseURL != "" {
		cfg.Database.URL = flags.databaseURL
	}
	if cfg.Database.URL == "" {
		return nil, nil, server.NewError(server.ErrorTypeConfig,
			"no database configured", "pass --database-url or set DATABASE_URL")
	}

	lg, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	db, err := database.OpenAndMigrate(ctx, cfg.Database.URL, lg)
	if err != nil {
		return nil, nil, err
	}
	return db, lg, nil
}

func importCmd(flags *globalFlags) *cobra.Command {
	var opts services.ImportOptions
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import one OpenAPI spec file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, flags, func(ctx context.Context, svc *services.SpecService) error {
				spec, err := svc.ImportFile(ctx, args[0], opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%s %s) at %s\n",
					spec.Name, spec.DisplayTitle(), spec.DisplayVersion(), spec.EndpointPath)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "spec name (default: file name without extension)")
	cmd.Flags().StringVar(&opts.EndpointPath, "endpoint", "", "endpoint path (default: /<name>)")
	cmd.Flags().BoolVar(&opts.Inactive, "inactive", false, "store the spec deactivated")
	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "overwrite a spec with the same name")
	return cmd
}

func importDirCmd(flags *globalFlags) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import-dir <dir>",
		Short: "Import every JSON and YAML spec in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, flags, func(ctx context.Context, svc *services.SpecService) error {
				results, err := svc.ImportDir(ctx, args[0], replace)
				if err != nil {
					return err
				}
				return printResults(cmd.OutOrStdout(), results)
			})
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "overwrite specs with the same name")
	return cmd
}

func seedCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <seed.yaml>",
		Short: "Load the specs listed in a seed file",
		Long: `Load the specs listed in a seed file. Existing specs with the same
name are replaced. Example seed file:

  specs:
    - file: specs/petstore.yaml
      name: petstore
      endpoint_path: /pets
    - file: specs/weather.json
      active: false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, flags, func(ctx context.Context, svc *services.SpecService) error {
				results, err := svc.Seed(ctx, args[0])
				if err != nil {
					return err
				}
				return printResults(cmd.OutOrStdout(), results)
			})
		},
	}
}

func listCmd(flags *globalFlags) *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored specs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, flags, func(ctx context.Context, svc *services.SpecService) error {
				specs, err := svc.List(ctx, activeOnly)
				if err != nil {
					return err
				}
				printSpecs(cmd.OutOrStdout(), specs)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only list active specs")
	return cmd
}

func showCmd(flags *globalFlags) *cobra.Command {
	var content bool
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one stored spec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, flags, func(ctx context.Context, svc *services.SpecService) error {
				spec, err := svc.Get(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if content {
					_, err := io.WriteString(out, spec.SpecContent)
					return err
				}
				printSpecs(out, []*models.OpenAPISpec{spec})
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&content, "content", false, "print the raw spec document")
	return cmd
}

func deleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a stored spec",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, flags, func(ctx context.Context, svc *services.SpecService) error {
				if err := svc.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func setActiveCmd(flags *globalFlags, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: fmt.Sprintf("Mark a stored spec as %sd", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, flags, func(ctx context.Context, svc *services.SpecService) error {
				if err := svc.SetActive(ctx, args[0], active); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: active=%t\n", args[0], active)
				return nil
			})
		},
	}
}

func migrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDatabase(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func printSpecs(w io.Writer, specs []*models.OpenAPISpec) {
	if len(specs) == 0 {
		fmt.Fprintln(w, "No specs stored")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "TITLE", "VERSION", "ENDPOINT", "FORMAT", "SIZE", "ACTIVE", "UPDATED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, s := range specs {
		t.Row(
			s.Name,
			s.DisplayTitle(),
			s.DisplayVersion(),
			s.EndpointPath,
			s.FileFormat,
			strconv.Itoa(s.FileSize),
			strconv.FormatBool(s.IsActive),
			s.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	fmt.Fprintln(w, t.String())
}

// printResults reports a batch import and fails when any file failed
func printResults(w io.Writer, results []services.ImportResult) error {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "%s %s: %v\n", failStyle.Render("FAIL"), r.File, r.Err)
			continue
		}
		fmt.Fprintf(w, "%s %s -> %s (%s)\n", okStyle.Render("OK  "), r.File, r.Spec.Name, r.Spec.EndpointPath)
	}
	fmt.Fprintf(w, "%d imported, %d failed\n", len(results)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d specs failed to import", failed, len(results))
	}
	return nil
}
