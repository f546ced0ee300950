// Command mcp-config-builder walks the operations of an OpenAPI document and
// writes an adjustments file selecting the ones to expose as tools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/ubermorgenland/yas-mcp/pkg/adjuster"
	"github.com/ubermorgenland/yas-mcp/pkg/loader"
	"github.com/ubermorgenland/yas-mcp/pkg/logger"
	"github.com/ubermorgenland/yas-mcp/pkg/openapi2mcp"
	"github.com/ubermorgenland/yas-mcp/pkg/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		output   string
		logLevel string
	)
	cmd := &cobra.Command{
		Use:          "mcp-config-builder <spec>",
		Short:        "Interactively choose which operations become MCP tools",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			lg, err := logger.New(server.LoggingConfig{Level: logLevel, Format: "compact"})
			if err != nil {
				return err
			}

			// every operation is offered, so compile without adjustments
			compiler := openapi2mcp.NewCompiler(adjuster.New(lg), lg,
				openapi2mcp.WithSpecReader(loader.NewSpecLoader(lg).Load))
			tools, err := compiler.Init(cmd.Context(), args[0], "")
			if err != nil {
				return err
			}
			if len(tools) == 0 {
				return fmt.Errorf("%s has no operations", args[0])
			}

			rl, err := readline.NewEx(&readline.Config{
				InterruptPrompt: "^C",
				EOFPrompt:       "quit",
			})
			if err != nil {
				return err
			}
			defer rl.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d operations in %s\n", len(tools), args[0])
			b := &builder{in: rl, out: out}
			adj, err := b.run(tools)
			if err != nil {
				return err
			}

			selected := 0
			for _, r := range adj.Routes {
				selected += len(r.Methods)
			}
			// an empty route list would expose everything
			if selected == 0 {
				return fmt.Errorf("no operations selected, %s not written", output)
			}
			if err := adjuster.Save(output, adj); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nWrote %s: %d of %d operations selected, %d descriptions overridden\n",
				output, selected, len(tools), len(adj.Descriptions))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "adjustments.yaml", "adjustments file to write")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")
	return cmd
}
